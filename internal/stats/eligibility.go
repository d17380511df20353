package stats

import (
	"log/slog"

	"github.com/verte-zerg/tripscore/internal/evaluator"
	"github.com/verte-zerg/tripscore/internal/model"
	"github.com/verte-zerg/tripscore/internal/record"
)

// Eligibility holds the per-partition denominators derived from the queries.
type Eligibility struct {
	// Plans counts validated queries naming at least one local-constraint
	// category, per partition.
	Plans map[model.Level]map[int]int
	// Category counts queries specifying each category, keyed by the hard
	// constraint that checks it.
	Category map[model.Level]map[int]map[string]int
}

// NewEligibility returns zeroed counters for the whole taxonomy.
func NewEligibility() Eligibility {
	e := Eligibility{
		Plans:    map[model.Level]map[int]int{},
		Category: map[model.Level]map[int]map[string]int{},
	}
	for _, level := range model.Levels {
		e.Plans[level] = map[int]int{}
		e.Category[level] = map[int]map[string]int{}
		for _, d := range model.DayCounts {
			e.Plans[level][d] = 0
			e.Category[level][d] = map[string]int{}
		}
	}
	return e
}

// CountEligibility tallies the local-constraint denominators over every
// loaded query, whether or not its plan was evaluated.
func CountEligibility(queries []model.Query, logger *slog.Logger) Eligibility {
	if logger == nil {
		logger = slog.Default()
	}
	e := NewEligibility()
	for i, q := range queries {
		if err := record.ValidateQuery(q); err != nil {
			logger.Warn("skipping query: missing level, days or local_constraint", "index", i, "error", err)
			continue
		}
		if !model.ValidLevel(q.Level) || !model.ValidDays(q.Days) {
			logger.Warn("skipping query: unexpected level or days", "index", i, "level", q.Level, "days", q.Days)
			continue
		}
		e.Add(q)
	}
	return e
}

// Add counts one validated query. A query with every category unset adds
// nothing.
func (e Eligibility) Add(q model.Query) {
	specified := false
	for _, category := range model.Categories {
		if !q.Specified(category) {
			continue
		}
		specified = true
		key, _ := CategoryKey(category)
		e.Category[q.Level][q.Days][key]++
	}
	if specified {
		e.Plans[q.Level][q.Days]++
	}
}

// Denominator returns the eligible count for a constraint in a partition.
// Category constraints use the number of queries naming that category for
// hard plans and for medium plans except transportation; everything else
// uses the partition's plan count.
func (e Eligibility) Denominator(tier evaluator.Tier, level model.Level, days int, key string) int {
	if tier == evaluator.TierHard && isCategoryKey(key) {
		if level == model.LevelHard || (level == model.LevelMedium && key != "valid_transportation") {
			return e.Category[level][days][key]
		}
	}
	return e.Plans[level][days]
}
