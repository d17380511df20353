package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/tripscore/internal/evaluator"
	"github.com/verte-zerg/tripscore/internal/model"
	"github.com/verte-zerg/tripscore/internal/stats"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "tripscore.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	clock := time.Unix(0, 0)
	st.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return st
}

func sampleResult() stats.Result {
	return stats.Result{
		Partition: stats.Partition{Name: "day"},
		Rates: map[string]float64{
			stats.MetricDelivery: 0.9,
			stats.MetricFinal:    0.25,
		},
		Counters: stats.Counters{
			Records:      10,
			Delivered:    9,
			Evaluated:    8,
			Final:        2,
			FinalByLevel: map[model.Level]int{model.LevelEasy: 2},
		},
		Cells: []stats.Cell{
			{Tier: evaluator.TierCommonsense, Key: "is_not_absent", Label: "Complete Information", Level: model.LevelEasy, Days: 3, Passed: 4, Eligible: 5},
			{Tier: evaluator.TierHard, Key: "valid_cost", Label: "Budget", Level: model.LevelHard, Days: 7, Passed: 1, Eligible: 3},
		},
	}
}

func TestEvaluationRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.InsertEvaluation(ctx, sampleResult(), "plans.jsonl")
	if err != nil {
		t.Fatalf("insert evaluation: %v", err)
	}

	run, res, err := st.GetEvaluation(ctx, id[:8])
	if err != nil {
		t.Fatalf("get evaluation: %v", err)
	}
	if run.ID != id || run.Kind != KindEval || run.SetType != "day" || run.Source != "plans.jsonl" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if res.Partition.Name != "day" {
		t.Fatalf("unexpected partition %q", res.Partition.Name)
	}
	if res.Rates[stats.MetricFinal] != 0.25 {
		t.Fatalf("unexpected final rate %v", res.Rates[stats.MetricFinal])
	}
	if res.Counters.Delivered != 9 || res.Counters.FinalByLevel[model.LevelEasy] != 2 {
		t.Fatalf("unexpected counters: %+v", res.Counters)
	}
	if len(res.Cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(res.Cells))
	}
	if got := res.Cells[1]; got.Tier != evaluator.TierHard || got.Level != model.LevelHard || got.Fraction() != "1/3" {
		t.Fatalf("unexpected cell: %+v", got)
	}
}

func TestGetEvaluationNotFound(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, _, err := st.GetEvaluation(ctx, "deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	id, err := st.InsertScore(ctx, KindSpatial, "ref.jsonl", map[string]float64{"delta": 0.1})
	if err != nil {
		t.Fatalf("insert score: %v", err)
	}
	if _, _, err := st.GetEvaluation(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected score runs to be ignored, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	evalID, err := st.InsertEvaluation(ctx, sampleResult(), "a.jsonl")
	if err != nil {
		t.Fatalf("insert evaluation: %v", err)
	}
	orderingID, err := st.InsertScore(ctx, KindOrdering, "b.jsonl", map[string]float64{"mean": 0.8, "plans": 4})
	if err != nil {
		t.Fatalf("insert score: %v", err)
	}
	mitigationID, err := st.InsertScore(ctx, KindMitigation, "c.csv", map[string]float64{"rate": 0.5})
	if err != nil {
		t.Fatalf("insert score: %v", err)
	}

	all, err := st.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	if all[0].ID != mitigationID || all[1].ID != orderingID || all[2].ID != evalID {
		t.Fatalf("expected newest first, got %s %s %s", all[0].Kind, all[1].Kind, all[2].Kind)
	}
	if all[1].Metrics["mean"] != 0.8 {
		t.Fatalf("unexpected metrics: %v", all[1].Metrics)
	}
	if !all[0].CreatedAt.After(all[2].CreatedAt) {
		t.Fatalf("expected increasing creation times")
	}

	latest, err := st.ListRuns(ctx, KindEval, 1)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(latest) != 1 || latest[0].ID != evalID {
		t.Fatalf("unexpected eval runs: %+v", latest)
	}
}
