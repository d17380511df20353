// Package stats aggregates constraint outcomes into pass rates and reports.
package stats

import (
	"fmt"
	"sort"

	"github.com/verte-zerg/tripscore/internal/model"
)

// Counts holds the verdict tallies of one constraint in one partition.
// Total is the eligible-plan denominator, assigned by Finalize.
type Counts struct {
	True  int `json:"true" yaml:"true"`
	False int `json:"false" yaml:"false"`
	Total int `json:"total" yaml:"total"`
}

// Table maps level → days → constraint key → counts.
type Table map[model.Level]map[int]map[string]*Counts

// NewTable returns a table with every level and day of the taxonomy.
func NewTable() Table {
	t := make(Table, len(model.Levels))
	for _, level := range model.Levels {
		t[level] = make(map[int]map[string]*Counts, len(model.DayCounts))
		for _, d := range model.DayCounts {
			t[level][d] = map[string]*Counts{}
		}
	}
	return t
}

// Add folds one plan's outcomes into the partition (level, days).
// Keys are created on first sight. A malformed outcome aborts with
// model.ErrOutcomeShape and leaves the table unchanged.
func (t Table) Add(level model.Level, days int, outcomes model.Outcomes) error {
	partition, ok := t[level][days]
	if !ok {
		return fmt.Errorf("unexpected partition level=%q days=%d", level, days)
	}
	type tally struct {
		key         string
		pass, fails int
	}
	tallies := make([]tally, 0, len(outcomes))
	for key, outcome := range outcomes {
		pass, fails, err := outcome.Count()
		if err != nil {
			return fmt.Errorf("constraint %q: %w", key, err)
		}
		tallies = append(tallies, tally{key: key, pass: pass, fails: fails})
	}
	for _, tl := range tallies {
		c, ok := partition[tl.key]
		if !ok {
			c = &Counts{}
			partition[tl.key] = c
		}
		c.True += tl.pass
		c.False += tl.fails
	}
	return nil
}

// Get returns the counts for a key, or nil when never seen.
func (t Table) Get(level model.Level, days int, key string) *Counts {
	return t[level][days][key]
}

// SumTrue adds the passing verdicts of keys across every partition.
func (t Table) SumTrue(keys []string) int {
	total := 0
	for _, byDay := range t {
		for _, byKey := range byDay {
			for _, key := range keys {
				if c, ok := byKey[key]; ok {
					total += c.True
				}
			}
		}
	}
	return total
}

// Keys returns every key seen in any partition, sorted.
func (t Table) Keys() []string {
	seen := map[string]struct{}{}
	for _, byDay := range t {
		for _, byKey := range byDay {
			for key := range byKey {
				seen[key] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
