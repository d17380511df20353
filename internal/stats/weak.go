package stats

import (
	"sort"

	"github.com/verte-zerg/tripscore/internal/evaluator"
)

// ConstraintSummary totals one constraint across every partition.
type ConstraintSummary struct {
	Tier     evaluator.Tier
	Key      string
	Label    string
	Passed   int
	Eligible int
}

// Ratio returns passed/eligible, or 1 when nothing was eligible.
func (c ConstraintSummary) Ratio() float64 {
	if c.Eligible == 0 {
		return 1.0
	}
	return float64(c.Passed) / float64(c.Eligible)
}

// WeakestConstraints selects the lowest pass-ratio constraints from cells.
// Constraints with no eligible plans are left out.
func WeakestConstraints(cells []Cell, top int) []ConstraintSummary {
	type id struct {
		tier evaluator.Tier
		key  string
	}
	byKey := map[id]*ConstraintSummary{}
	var order []id
	for _, cell := range cells {
		k := id{tier: cell.Tier, key: cell.Key}
		s, ok := byKey[k]
		if !ok {
			s = &ConstraintSummary{Tier: cell.Tier, Key: cell.Key, Label: cell.Label}
			byKey[k] = s
			order = append(order, k)
		}
		s.Passed += cell.Passed
		s.Eligible += cell.Eligible
	}

	candidates := make([]ConstraintSummary, 0, len(order))
	for _, k := range order {
		if byKey[k].Eligible > 0 {
			candidates = append(candidates, *byKey[k])
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].Ratio(), candidates[j].Ratio()
		if ri == rj {
			return candidates[i].Label < candidates[j].Label
		}
		return ri < rj
	})
	if top <= 0 || top > len(candidates) {
		top = len(candidates)
	}
	return candidates[:top]
}
