// Package ordering scores how closely the visit order of a generated plan
// follows a reference plan.
package ordering

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/verte-zerg/tripscore/internal/model"
	"github.com/verte-zerg/tripscore/internal/record"
)

// Symbols of a day sequence.
const (
	SymbolAccommodation = 'x'
	SymbolRestaurant    = 'y'
	SymbolAttraction    = 'z'
)

// Sequence turns a day's point-of-interest list into a string over x, y and
// z. A segment naming one of the day's meals is a restaurant, one naming the
// accommodation is a stay, and anything else is an attraction. An empty
// meal or accommodation name is contained in every segment.
func Sequence(day model.DayEntry) string {
	meals := []string{baseName(day.Breakfast), baseName(day.Lunch), baseName(day.Dinner)}
	stay := baseName(day.Accommodation)

	var b strings.Builder
	for _, segment := range strings.Split(day.PointsOfInterest, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		switch {
		case containsAny(segment, meals):
			b.WriteByte(SymbolRestaurant)
		case containsAny(segment, []string{stay}):
			b.WriteByte(SymbolAccommodation)
		default:
			b.WriteByte(SymbolAttraction)
		}
	}
	return b.String()
}

// baseName strips the location suffix from "Name, City".
func baseName(value string) string {
	name, _, _ := strings.Cut(value, ",")
	return strings.TrimSpace(name)
}

func containsAny(segment string, names []string) bool {
	for _, name := range names {
		if strings.Contains(segment, name) {
			return true
		}
	}
	return false
}

// EditDistance returns the uniform-cost weighted edit distance between a
// generated and a reference sequence. The first row and column of the table
// are unreachable, so every step pays the substitution cost of the cell it
// lands on. When either sequence is empty the distance is the longer length.
func EditDistance(gen, ref string) int {
	m, n := len(gen), len(ref)
	if m == 0 || n == 0 {
		return max(m, n)
	}
	unreachable := m + n + 1

	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 1; j <= n; j++ {
		prev[j] = unreachable
	}
	for i := 1; i <= m; i++ {
		curr[0] = unreachable
		for j := 1; j <= n; j++ {
			cost := 1
			if gen[i-1] == ref[j-1] {
				cost = 0
			}
			curr[j] = cost + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}
	return prev[n]
}

// DayScore returns 1 - distance/longest length for two non-empty sequences.
func DayScore(gen, ref string) float64 {
	longest := max(len(gen), len(ref))
	if longest == 0 {
		return 0
	}
	return 1 - float64(EditDistance(gen, ref))/float64(longest)
}

// PlanScore averages the day scores over the days both plans share. Days
// where either sequence is empty are skipped; no comparable day scores 0.
func PlanScore(ref, gen []model.DayEntry) float64 {
	days := min(len(ref), len(gen))
	total, compared := 0.0, 0
	for i := 0; i < days; i++ {
		refSeq, genSeq := Sequence(ref[i]), Sequence(gen[i])
		if refSeq == "" || genSeq == "" {
			continue
		}
		total += DayScore(genSeq, refSeq)
		compared++
	}
	if compared == 0 {
		return 0
	}
	return total / float64(compared)
}

// Summary is the outcome of scoring a pair of files.
type Summary struct {
	Plans int     `json:"plans" yaml:"plans"`
	Mean  float64 `json:"mean" yaml:"mean"`
}

// ScoreFiles pairs the records of two JSONL files by line number and
// averages the plan scores. Pairs where either plan is missing or empty are
// skipped.
func ScoreFiles(refPath, genPath string, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	refs, err := record.Load(refPath, logger)
	if err != nil {
		return Summary{}, err
	}
	gens, err := record.Load(genPath, logger)
	if err != nil {
		return Summary{}, err
	}

	byLine := make(map[int]record.Entry, len(refs))
	for _, e := range refs {
		byLine[e.Line] = e
	}

	var sum Summary
	total := 0.0
	for _, gen := range gens {
		ref, ok := byLine[gen.Line]
		if !ok {
			continue
		}
		refPlan, err := planOf(ref)
		if err != nil {
			logger.Warn("skipping reference record", "line", ref.Line, "error", err)
			continue
		}
		genPlan, err := planOf(gen)
		if err != nil {
			logger.Warn("skipping generated record", "line", gen.Line, "error", err)
			continue
		}
		if len(refPlan) == 0 || len(genPlan) == 0 {
			logger.Debug("skipping pair without plan", "line", gen.Line)
			continue
		}
		total += PlanScore(refPlan, genPlan)
		sum.Plans++
	}
	if sum.Plans > 0 {
		sum.Mean = total / float64(sum.Plans)
	}
	return sum, nil
}

func planOf(e record.Entry) ([]model.DayEntry, error) {
	plan, _, err := record.PlanOf(e.Raw, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	return plan, nil
}
