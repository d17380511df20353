package ordering

import (
	"bytes"
	"log/slog"
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

func sampleDay() model.DayEntry {
	return model.DayEntry{
		PointsOfInterest: "Harbor Inn, stay from 08:00 to 09:00; City Museum, visit from 10:00 to 12:00; " +
			"Blue Cafe, lunch at 12:30; Old Tower, visit from 14:00 to 15:00;  ; Harbor Inn, stay from 20:00",
		Accommodation: "Harbor Inn, Lisbon",
		Breakfast:     "-",
		Lunch:         "Blue Cafe, Lisbon",
		Dinner:        "-",
	}
}

func TestSequence(t *testing.T) {
	assert.Equal(t, "xzyzx", Sequence(sampleDay()))
}

func TestSequenceMealBeforeAccommodation(t *testing.T) {
	day := model.DayEntry{
		PointsOfInterest: "Grand Hotel Restaurant, dinner",
		Accommodation:    "Grand Hotel, Rome",
		Dinner:           "Grand Hotel Restaurant, Rome",
	}
	assert.Equal(t, "y", Sequence(day))
}

func TestSequenceEmptyNamesMatchEverySegment(t *testing.T) {
	day := model.DayEntry{
		PointsOfInterest: "Inn, stay; Park, visit",
		Accommodation:    "Inn, Rome",
	}
	assert.Equal(t, "yy", Sequence(day), "missing meals mark every segment as a restaurant")

	day = model.DayEntry{
		PointsOfInterest: "Park; Zoo",
		Breakfast:        "Cafe, Rome",
		Lunch:            "Bistro, Rome",
		Dinner:           "Trattoria, Rome",
	}
	assert.Equal(t, "xx", Sequence(day), "missing accommodation marks every other segment as a stay")
	assert.Equal(t, "", Sequence(model.DayEntry{}))
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		gen, ref string
		want     int
	}{
		{"xyz", "xyz", 0},
		{"xyz", "xyy", 1},
		{"xy", "x", 1},
		{"x", "z", 1},
		{"", "xyz", 3},
		{"", "", 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, EditDistance(tc.gen, tc.ref), "%q vs %q", tc.gen, tc.ref)
	}
}

func TestDayScore(t *testing.T) {
	assert.Equal(t, 1.0, DayScore("xzyzx", "xzyzx"))
	assert.InDelta(t, 1-1.0/3.0, DayScore("xyz", "xyy"), 1e-9)
	assert.InDelta(t, 0.5, DayScore("xy", "x"), 1e-9)
}

func TestPlanScore(t *testing.T) {
	day := sampleDay()
	assert.Equal(t, 1.0, PlanScore([]model.DayEntry{day, day}, []model.DayEntry{day, day}))

	other := model.DayEntry{
		PointsOfInterest: "Harbor Inn; Blue Cafe; Old Tower",
		Accommodation:    "Harbor Inn",
		Breakfast:        "-",
		Lunch:            "Blue Cafe",
		Dinner:           "-",
	}
	empty := model.DayEntry{}
	// Day two has an empty reference sequence and is skipped; day three has
	// no counterpart.
	score := PlanScore([]model.DayEntry{other, empty}, []model.DayEntry{other, other, other})
	assert.Equal(t, 1.0, score)

	assert.Equal(t, 0.0, PlanScore([]model.DayEntry{empty}, []model.DayEntry{other}))
	assert.Equal(t, 0.0, PlanScore(nil, []model.DayEntry{other}))
}

func writeLines(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestScoreFiles(t *testing.T) {
	ref := writeLines(t, "ref.jsonl",
		`{"plan": [{"point_of_interest_list": "Inn; Cafe; Park", "accommodation": "Inn", "breakfast": "-", "lunch": "Cafe", "dinner": "-"}]}`,
		`{"plan": [{"point_of_interest_list": "Inn; Cafe; Cafe", "accommodation": "Inn", "breakfast": "-", "lunch": "Cafe", "dinner": "-"}]}`,
		`{"plan": []}`,
		`not json`,
		`{"plan": [{"point_of_interest_list": "Inn", "accommodation": "Inn"}]}`,
	)
	gen := writeLines(t, "gen.jsonl",
		`{"plan": "[{\"point_of_interest_list\": \"Inn; Cafe; Park\", \"accommodation\": \"Inn\", \"breakfast\": \"-\", \"lunch\": \"Cafe\", \"dinner\": \"-\"}]"}`,
		`{"plan": [{"point_of_interest_list": "Inn; Cafe; Park", "accommodation": "Inn", "breakfast": "-", "lunch": "Cafe", "dinner": "-"}]}`,
		`{"plan": [{"point_of_interest_list": "Inn", "accommodation": "Inn"}]}`,
		`{"plan": [{"point_of_interest_list": "Inn", "accommodation": "Inn"}]}`,
	)

	sum, err := ScoreFiles(ref, gen, discardLogger())
	require.NoError(t, err)
	// Line 3 has an empty reference plan, line 4 a malformed reference and
	// line 5 no generated counterpart.
	assert.Equal(t, 2, sum.Plans)
	assert.InDelta(t, (1.0+(1-1.0/3.0))/2, sum.Mean, 1e-9)
}

func TestScoreFilesMissingInput(t *testing.T) {
	_, err := ScoreFiles(filepath.Join(t.TempDir(), "missing.jsonl"), "also-missing.jsonl", discardLogger())
	assert.Error(t, err)
}
