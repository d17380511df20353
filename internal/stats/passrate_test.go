package stats

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/verte-zerg/tripscore/internal/evaluator"
	"github.com/verte-zerg/tripscore/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func query(level model.Level, days int, categories map[string]string) model.Query {
	lc := map[string]json.RawMessage{}
	for _, c := range model.Categories {
		lc[c] = json.RawMessage("null")
	}
	for k, v := range categories {
		lc[k] = json.RawMessage(`"` + v + `"`)
	}
	raw, _ := json.Marshal(map[string]any{"level": level, "days": days, "local_constraint": lc})
	return model.Query{Level: level, Days: days, LocalConstraint: lc, Raw: raw}
}

func passingCommonsense() model.Outcomes {
	out := model.Outcomes{}
	for _, key := range CommonsenseKeys {
		out[key] = model.Annotated(model.Bool(true), nil)
	}
	return out
}

func evaluated(idx int, q model.Query, cs, hard model.Outcomes) evaluator.PlanResult {
	return evaluator.PlanResult{Index: idx, Status: evaluator.StatusEvaluated, Delivered: true, Query: q, Commonsense: cs, Hard: hard}
}

func testPartition() Partition {
	return Partition{Name: "test", Delivery: 10, CommonsenseMicro: 100, CommonsenseMacro: 10, HardMicro: 20, HardMacro: 10, Final: 10}
}

func TestCalculateRatesAndCounters(t *testing.T) {
	qMedium := query(model.LevelMedium, 3, map[string]string{model.CategoryCuisine: "Thai"})
	qHard := query(model.LevelHard, 5, map[string]string{model.CategoryHouseRule: "pets", model.CategoryEvent: "concert"})
	qEasy := query(model.LevelEasy, 7, nil)

	failingCS := passingCommonsense()
	failingCS["is_valid_restaurants"] = model.Multi(true, false)

	results := []evaluator.PlanResult{
		evaluated(0, qMedium, passingCommonsense(), model.Outcomes{
			"valid_cost":    model.Annotated(model.Bool(true), nil),
			"valid_cuisine": model.Annotated(model.Bool(true), nil),
		}),
		evaluated(1, qHard, passingCommonsense(), model.Outcomes{
			"valid_cost":      model.Annotated(model.Bool(false), model.String("over budget")),
			"valid_room_rule": model.Annotated(model.Bool(true), nil),
		}),
		evaluated(2, qEasy, failingCS, model.Outcomes{"valid_cost": model.Annotated(model.Bool(true), nil)}),
		evaluated(3, qEasy, passingCommonsense(), nil),
		{Index: 4, Status: evaluator.StatusDegenerate, Query: qEasy},
		{Index: 5, Status: evaluator.StatusFailed, Delivered: true, Query: qEasy},
	}
	elig := CountEligibility([]model.Query{qMedium, qHard, qEasy, qEasy, qEasy, qEasy}, quietLogger())

	res, err := Calculate(results, elig, testPartition(), quietLogger())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	c := res.Counters
	if c.Delivered != 5 || c.Evaluated != 4 || c.Degenerate != 1 || c.Failed != 1 {
		t.Fatalf("unexpected counters: %+v", c)
	}
	// 10 keys x 3 fully passing plans + 9 true keys + 1 true verdict in the multi.
	if c.CommonsensePass != 40 {
		t.Fatalf("expected 40 commonsense passes, got %d", c.CommonsensePass)
	}
	if c.HardPass != 4 {
		t.Fatalf("expected 4 hard passes, got %d", c.HardPass)
	}
	// Plan 3 has no hard outcomes and is left out of macro counts.
	if c.CommonsenseMacro != 2 || c.HardMacro != 2 || c.Final != 1 {
		t.Fatalf("unexpected macro counts: cs=%d hard=%d final=%d", c.CommonsenseMacro, c.HardMacro, c.Final)
	}
	if c.FinalByLevel[model.LevelMedium] != 1 {
		t.Fatalf("expected medium final pass, got %v", c.FinalByLevel)
	}

	expect := map[string]float64{
		MetricDelivery:         0.5,
		MetricCommonsenseMicro: 0.4,
		MetricCommonsenseMacro: 0.2,
		MetricHardMicro:        0.2,
		MetricHardMacro:        0.2,
		MetricFinal:            0.1,
	}
	for name, want := range expect {
		if got := res.Rates[name]; got != want {
			t.Fatalf("%s: expected %v, got %v", name, want, got)
		}
	}
}

func TestCalculateCellDenominators(t *testing.T) {
	qMedium := query(model.LevelMedium, 3, map[string]string{model.CategoryCuisine: "Thai", model.CategoryTransportation: "no flight"})
	qMedium2 := query(model.LevelMedium, 3, map[string]string{model.CategoryRoomType: "shared room"})
	qHard := query(model.LevelHard, 3, map[string]string{model.CategoryTransportation: "no self-driving"})
	qUnconstrained := query(model.LevelMedium, 3, nil)

	hardOut := model.Outcomes{
		"valid_cost":           model.Single(true),
		"valid_cuisine":        model.Single(true),
		"valid_transportation": model.Single(true),
	}
	results := []evaluator.PlanResult{
		evaluated(0, qMedium, passingCommonsense(), hardOut),
		evaluated(1, qMedium2, passingCommonsense(), model.Outcomes{"valid_room_type": model.Single(false)}),
		evaluated(2, qHard, passingCommonsense(), hardOut),
		evaluated(3, qUnconstrained, passingCommonsense(), model.Outcomes{"valid_cost": model.Single(true)}),
	}
	elig := CountEligibility([]model.Query{qMedium, qMedium2, qHard, qUnconstrained}, quietLogger())
	if got := elig.Plans[model.LevelMedium][3]; got != 2 {
		t.Fatalf("expected queries without categories left out of plan count, got %d", got)
	}
	res, err := Calculate(results, elig, testPartition(), quietLogger())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	find := func(tier evaluator.Tier, level model.Level, key string) Cell {
		for _, c := range res.Cells {
			if c.Tier == tier && c.Level == level && c.Days == 3 && c.Key == key {
				return c
			}
		}
		t.Fatalf("cell %s/%s/%s not found", tier, level, key)
		return Cell{}
	}

	tests := []struct {
		tier  evaluator.Tier
		level model.Level
		key   string
		want  string
	}{
		// The unconstrained medium plan counts as passed but not as eligible.
		{evaluator.TierCommonsense, model.LevelMedium, "is_not_absent", "3/2"},
		{evaluator.TierHard, model.LevelMedium, "valid_cost", "2/2"},
		{evaluator.TierHard, model.LevelMedium, "valid_cuisine", "1/1"},
		{evaluator.TierHard, model.LevelMedium, "valid_room_type", "0/1"},
		// Medium transportation falls back to the plan count.
		{evaluator.TierHard, model.LevelMedium, "valid_transportation", "1/2"},
		{evaluator.TierHard, model.LevelHard, "valid_transportation", "1/1"},
		// Hard plans use the category count even when it is zero.
		{evaluator.TierHard, model.LevelHard, "valid_cuisine", "1/0"},
		{evaluator.TierHard, model.LevelHard, "valid_event_type", "0/0"},
		{evaluator.TierCommonsense, model.LevelEasy, "is_not_absent", "0/0"},
	}
	for _, tc := range tests {
		if got := find(tc.tier, tc.level, tc.key).Fraction(); got != tc.want {
			t.Fatalf("%s %s %s: expected %s, got %s", tc.tier, tc.level, tc.key, tc.want, got)
		}
	}
	if total := res.Hard.Get(model.LevelMedium, 3, "valid_cuisine").Total; total != 1 {
		t.Fatalf("expected table total 1, got %d", total)
	}
}

func TestCalculateRatesStayInRange(t *testing.T) {
	q := query(model.LevelHard, 7, map[string]string{model.CategoryCuisine: "Thai"})
	var results []evaluator.PlanResult
	for i := 0; i < 25; i++ {
		results = append(results, evaluated(i, q, passingCommonsense(), model.Outcomes{"valid_cost": model.Single(true)}))
	}
	res, err := Calculate(results, CountEligibility([]model.Query{q}, quietLogger()), testPartition(), quietLogger())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	for name, r := range res.Rates {
		if r < 0 || r > 1 {
			t.Fatalf("%s out of range: %v", name, r)
		}
	}

	empty, err := Calculate(nil, NewEligibility(), Partition{Name: "zero"}, quietLogger())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	for name, r := range empty.Rates {
		if r != 0 {
			t.Fatalf("%s: expected 0 with zero denominators, got %v", name, r)
		}
	}
}

func TestMacroCountNeverIncreasesWhenAVerdictFails(t *testing.T) {
	q := query(model.LevelMedium, 5, nil)
	base := []evaluator.PlanResult{
		evaluated(0, q, passingCommonsense(), model.Outcomes{"valid_cost": model.Single(true)}),
		evaluated(1, q, passingCommonsense(), model.Outcomes{"valid_cost": model.Single(true)}),
	}
	before, err := Calculate(base, NewEligibility(), testPartition(), quietLogger())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	flipped := passingCommonsense()
	flipped["is_valid_event"] = model.Annotated(model.Bool(false), nil)
	base[1].Commonsense = flipped
	after, err := Calculate(base, NewEligibility(), testPartition(), quietLogger())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if after.Counters.CommonsenseMacro > before.Counters.CommonsenseMacro {
		t.Fatalf("macro count increased: %d -> %d", before.Counters.CommonsenseMacro, after.Counters.CommonsenseMacro)
	}
	if after.Counters.Final != 1 {
		t.Fatalf("expected 1 final pass, got %d", after.Counters.Final)
	}
}

func TestCalculateSkipsUnexpectedPartition(t *testing.T) {
	q := model.Query{Level: "impossible", Days: 4}
	res, err := Calculate([]evaluator.PlanResult{evaluated(0, q, passingCommonsense(), nil)}, NewEligibility(), testPartition(), quietLogger())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if res.Counters.Evaluated != 0 || res.Counters.Failed != 1 || res.Counters.Delivered != 1 {
		t.Fatalf("unexpected counters: %+v", res.Counters)
	}
}

func TestCountEligibilitySkipsInvalidQueries(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	good := query(model.LevelHard, 3, map[string]string{"house-rule": "no parties"})
	badLevel := query("extreme", 3, nil)
	missing := model.Query{Raw: json.RawMessage(`{"level": "easy"}`)}

	elig := CountEligibility([]model.Query{good, badLevel, missing}, logger)
	if elig.Plans[model.LevelHard][3] != 1 {
		t.Fatalf("expected one hard plan, got %d", elig.Plans[model.LevelHard][3])
	}
	if elig.Category[model.LevelHard][3]["valid_room_rule"] != 1 {
		t.Fatalf("expected house-rule to count toward valid_room_rule")
	}
	out := logs.String()
	if !bytes.Contains([]byte(out), []byte("unexpected level or days")) {
		t.Fatalf("expected taxonomy diagnostic, got %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("missing level, days or local_constraint")) {
		t.Fatalf("expected missing-field diagnostic, got %q", out)
	}
}

func TestLookupPartition(t *testing.T) {
	p, err := LookupPartition(DefaultPartitions(), "Day")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if p.Final != 307 || p.Delivery != 295 {
		t.Fatalf("unexpected day partition: %+v", p)
	}
	if _, err := LookupPartition(DefaultPartitions(), "validation"); err == nil {
		t.Fatalf("expected error for unknown set type")
	}
}
