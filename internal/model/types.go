// Package model defines shared data structures.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Level is the difficulty tier of a benchmark query.
type Level string

// Benchmark difficulty tiers.
const (
	LevelEasy   Level = "easy"
	LevelMedium Level = "medium"
	LevelHard   Level = "hard"
)

// Levels lists every difficulty tier in report order.
var Levels = []Level{LevelEasy, LevelMedium, LevelHard}

// DayCounts lists every trip length in report order.
var DayCounts = []int{3, 5, 7}

// ValidLevel reports whether level belongs to the taxonomy.
func ValidLevel(level Level) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

// ValidDays reports whether days belongs to the taxonomy.
func ValidDays(days int) bool {
	for _, d := range DayCounts {
		if d == days {
			return true
		}
	}
	return false
}

// Local-constraint categories as they appear in query specifications.
const (
	CategoryHouseRule      = "house rule"
	CategoryCuisine        = "cuisine"
	CategoryRoomType       = "room type"
	CategoryTransportation = "transportation"
	CategoryEvent          = "event"
	CategoryAttraction     = "attraction"
)

// Categories lists local-constraint categories in report order.
var Categories = []string{
	CategoryHouseRule,
	CategoryCuisine,
	CategoryRoomType,
	CategoryTransportation,
	CategoryEvent,
	CategoryAttraction,
}

// NormalizeCategory maps "house-rule", "House_Rule" and "house rule" to one name.
func NormalizeCategory(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("-", " ", "_", " ").Replace(name)
}

// Query is the benchmark query specification a plan answers.
type Query struct {
	Level           Level
	Days            int
	LocalConstraint map[string]json.RawMessage
	// Raw is the normalized query JSON handed to evaluators.
	Raw json.RawMessage
}

// Specified reports whether a local-constraint category carries a value.
func (q Query) Specified(category string) bool {
	for name, value := range q.LocalConstraint {
		if NormalizeCategory(name) != category {
			continue
		}
		trimmed := bytes.TrimSpace(value)
		if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			return true
		}
	}
	return false
}

// DayEntry is one day of an itinerary.
type DayEntry struct {
	PointsOfInterest string
	Accommodation    string
	Breakfast        string
	Lunch            string
	Dinner           string
	// Raw preserves every field of the entry for evaluators.
	Raw json.RawMessage
}

// UnmarshalJSON reads the scoring fields and keeps the raw entry.
// Non-string values for the scoring fields read as empty strings.
func (d *DayEntry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*d = DayEntry{
		PointsOfInterest: stringField(fields, "point_of_interest_list"),
		Accommodation:    stringField(fields, "accommodation"),
		Breakfast:        stringField(fields, "breakfast"),
		Lunch:            stringField(fields, "lunch"),
		Dinner:           stringField(fields, "dinner"),
		Raw:              append(json.RawMessage(nil), data...),
	}
	return nil
}

// MarshalJSON returns the raw entry when present.
func (d DayEntry) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	return json.Marshal(map[string]string{
		"point_of_interest_list": d.PointsOfInterest,
		"accommodation":          d.Accommodation,
		"breakfast":              d.Breakfast,
		"lunch":                  d.Lunch,
		"dinner":                 d.Dinner,
	})
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// PlanRecord is one generated itinerary submission.
type PlanRecord struct {
	Query Query
	Plan  []DayEntry
	// Fields holds the top-level record fields after decoding.
	Fields map[string]json.RawMessage
}
