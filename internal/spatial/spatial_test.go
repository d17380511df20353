package spatial

import (
	"bytes"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tripscore/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestDecayScore(t *testing.T) {
	d := DefaultDecay()
	assert.Equal(t, 1.0, d.Score(0))
	assert.Equal(t, 0.75, d.Score(2500))
	assert.Equal(t, 0.5, d.Score(5000))
	assert.InDelta(t, 0.5*math.Exp(-1), d.Score(10000), 1e-9)
	assert.InDelta(t, 0.1839, d.Score(10000), 1e-4)
}

func TestDecayScoreIsMonotonic(t *testing.T) {
	d := DefaultDecay()
	prev := d.Score(0)
	for dist := 100.0; dist <= 30000; dist += 100 {
		s := d.Score(dist)
		require.LessOrEqual(t, s, prev, "distance %v", dist)
		require.Greater(t, s, 0.0)
		prev = s
	}
}

func TestDistances(t *testing.T) {
	list := "Museum, nearest transit: Central Station, 120m away; " +
		"Park, nearest transit: Oak St, 45.5 m away;" +
		"Cafe, no transit info;" +
		"Tower, nearest transit: unknown"
	assert.Equal(t, []float64{120, 45.5}, Distances(list))
	assert.Empty(t, Distances(""))
}

func TestPlanScore(t *testing.T) {
	d := DefaultDecay()
	plan := []model.DayEntry{
		{PointsOfInterest: "A, nearest transit: X, 0m; B, nearest transit: Y, 5000m"},
		{PointsOfInterest: "C, without transit"},
		{PointsOfInterest: "D, nearest transit: Z, 2500m"},
	}
	// Day one averages 0.75, day two is skipped, day three scores 0.75.
	assert.InDelta(t, 0.75, d.PlanScore(plan), 1e-9)
	assert.Equal(t, 0.0, d.PlanScore(nil))
	assert.Equal(t, 0.0, d.PlanScore(plan[1:2]))
}

func writeFile(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestFileScore(t *testing.T) {
	path := writeFile(t, "plans.jsonl",
		`{"plan": [{"point_of_interest_list": "A, nearest transit: X, 0m"}]}`,
		`{"results": {"plan": [{"point_of_interest_list": "B, nearest transit: X, 5000m"}]}}`,
		`{"query": "no plan here"}`,
	)
	d := DefaultDecay()

	nested, err := d.FileScore(path, "results", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, nested.Plans)
	assert.InDelta(t, (1.0+0.5+0)/3, nested.Mean, 1e-9)

	flat, err := d.FileScore(path, "", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, flat.Plans)
	assert.InDelta(t, 1.0/3, flat.Mean, 1e-9)
}

func TestCompareFiles(t *testing.T) {
	ref := writeFile(t, "ref.jsonl", `{"plan": [{"point_of_interest_list": "A, nearest transit: X, 0m"}]}`)
	gen := writeFile(t, "gen.jsonl", `{"plan": [{"point_of_interest_list": "A, nearest transit: X, 2500m"}]}`)

	got, err := DefaultDecay().CompareFiles(ref, gen, "", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Reference.Mean)
	assert.Equal(t, 0.75, got.Generated.Mean)
	assert.InDelta(t, 0.25, got.Delta, 1e-9)
}

func TestFileScoreEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.jsonl")
	got, err := DefaultDecay().FileScore(path, "", discardLogger())
	require.NoError(t, err)
	assert.Equal(t, FileSummary{}, got)
}
