package stats

import (
	"fmt"
	"log/slog"

	"github.com/verte-zerg/tripscore/internal/evaluator"
	"github.com/verte-zerg/tripscore/internal/model"
)

// Metric names as reported.
const (
	MetricDelivery         = "Delivery Rate"
	MetricCommonsenseMicro = "Commonsense Constraint Micro Pass Rate"
	MetricCommonsenseMacro = "Commonsense Constraint Macro Pass Rate"
	MetricHardMicro        = "Hard Constraint Micro Pass Rate"
	MetricHardMacro        = "Hard Constraint Macro Pass Rate"
	MetricFinal            = "Final Pass Rate"
)

// MetricNames lists the headline metrics in report order.
var MetricNames = []string{
	MetricDelivery,
	MetricCommonsenseMicro,
	MetricCommonsenseMacro,
	MetricHardMicro,
	MetricHardMacro,
	MetricFinal,
}

// Counters are the raw numerators behind the rates.
type Counters struct {
	Records          int                 `json:"records" yaml:"records"`
	Delivered        int                 `json:"delivered" yaml:"delivered"`
	Evaluated        int                 `json:"evaluated" yaml:"evaluated"`
	Degenerate       int                 `json:"degenerate" yaml:"degenerate"`
	Failed           int                 `json:"failed" yaml:"failed"`
	CommonsensePass  int                 `json:"commonsense_pass" yaml:"commonsense_pass"`
	HardPass         int                 `json:"hard_pass" yaml:"hard_pass"`
	CommonsenseMacro int                 `json:"commonsense_macro" yaml:"commonsense_macro"`
	HardMacro        int                 `json:"hard_macro" yaml:"hard_macro"`
	Final            int                 `json:"final" yaml:"final"`
	FinalByLevel     map[model.Level]int `json:"final_by_level" yaml:"final_by_level"`
}

// Cell is one "passed/eligible" entry of the breakdown.
type Cell struct {
	Tier     evaluator.Tier `json:"tier" yaml:"tier"`
	Key      string         `json:"key" yaml:"key"`
	Label    string         `json:"label" yaml:"label"`
	Level    model.Level    `json:"level" yaml:"level"`
	Days     int            `json:"days" yaml:"days"`
	Passed   int            `json:"passed" yaml:"passed"`
	Eligible int            `json:"eligible" yaml:"eligible"`
}

// Fraction renders the cell as "passed/eligible".
func (c Cell) Fraction() string {
	return fmt.Sprintf("%d/%d", c.Passed, c.Eligible)
}

// Result is a finalized evaluation run.
type Result struct {
	Partition   Partition          `json:"partition" yaml:"partition"`
	Rates       map[string]float64 `json:"rates" yaml:"rates"`
	Counters    Counters           `json:"counters" yaml:"counters"`
	Commonsense Table              `json:"-" yaml:"-"`
	Hard        Table              `json:"-" yaml:"-"`
	Cells       []Cell             `json:"cells" yaml:"cells"`
}

// Calculate folds plan results into tables and derives the rates. It must
// only be called once every plan of the input has been evaluated.
func Calculate(results []evaluator.PlanResult, elig Eligibility, partition Partition, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := Result{
		Partition:   partition,
		Commonsense: NewTable(),
		Hard:        NewTable(),
		Counters:    Counters{Records: len(results), FinalByLevel: map[model.Level]int{}},
	}
	for _, level := range model.Levels {
		res.Counters.FinalByLevel[level] = 0
	}

	for _, pr := range results {
		if pr.Delivered {
			res.Counters.Delivered++
		}
		switch pr.Status {
		case evaluator.StatusDegenerate:
			res.Counters.Degenerate++
			continue
		case evaluator.StatusFailed:
			res.Counters.Failed++
			continue
		}
		level, days := pr.Query.Level, pr.Query.Days
		if !model.ValidLevel(level) || !model.ValidDays(days) {
			logger.Warn("skipping plan: unexpected level or days", "index", pr.Index, "level", level, "days", days)
			res.Counters.Failed++
			continue
		}
		if err := res.Commonsense.Add(level, days, pr.Commonsense); err != nil {
			return Result{}, fmt.Errorf("plan %d commonsense outcomes: %w", pr.Index, err)
		}
		if err := res.Hard.Add(level, days, pr.Hard); err != nil {
			return Result{}, fmt.Errorf("plan %d hard outcomes: %w", pr.Index, err)
		}
		res.Counters.Evaluated++
		res.countMacro(pr)
	}

	res.Counters.CommonsensePass = res.Commonsense.SumTrue(CommonsenseKeys)
	res.Counters.HardPass = res.Hard.SumTrue(HardKeys)
	res.Cells = append(res.buildCells(evaluator.TierCommonsense, res.Commonsense, CommonsenseKeys, elig),
		res.buildCells(evaluator.TierHard, res.Hard, HardKeys, elig)...)

	c := res.Counters
	res.Rates = map[string]float64{
		MetricDelivery:         rate(c.Delivered, partition.Delivery),
		MetricCommonsenseMicro: rate(c.CommonsensePass, partition.CommonsenseMicro),
		MetricCommonsenseMacro: rate(c.CommonsenseMacro, partition.CommonsenseMacro),
		MetricHardMicro:        rate(c.HardPass, partition.HardMicro),
		MetricHardMacro:        rate(c.HardMacro, partition.HardMacro),
		MetricFinal:            rate(c.Final, partition.Final),
	}
	return res, nil
}

// countMacro counts whole-plan passes. Plans without hard outcomes do not
// take part in any macro count.
func (r *Result) countMacro(pr evaluator.PlanResult) {
	if len(pr.Commonsense) == 0 || pr.Hard == nil {
		return
	}
	csPass := allPass(pr.Commonsense)
	hardPass := allPass(pr.Hard)
	if csPass {
		r.Counters.CommonsenseMacro++
	}
	if hardPass {
		r.Counters.HardMacro++
	}
	if csPass && hardPass {
		r.Counters.Final++
		r.Counters.FinalByLevel[pr.Query.Level]++
	}
}

func allPass(outcomes model.Outcomes) bool {
	for _, o := range outcomes {
		if o.Failing() {
			return false
		}
	}
	return true
}

func (r *Result) buildCells(tier evaluator.Tier, table Table, keys []string, elig Eligibility) []Cell {
	cells := make([]Cell, 0, len(model.Levels)*len(model.DayCounts)*len(keys))
	for _, level := range model.Levels {
		for _, days := range model.DayCounts {
			for _, key := range keys {
				cell := Cell{Tier: tier, Key: key, Label: Label(key), Level: level, Days: days}
				if c := table.Get(level, days, key); c != nil {
					c.Total = elig.Denominator(tier, level, days, key)
					cell.Passed = c.True
					cell.Eligible = c.Total
				}
				cells = append(cells, cell)
			}
		}
	}
	return cells
}

func rate(n, d int) float64 {
	if d <= 0 || n <= 0 {
		return 0
	}
	r := float64(n) / float64(d)
	if r > 1 {
		return 1
	}
	return r
}
