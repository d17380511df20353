// Package evaluator runs the commonsense and hard constraint evaluators over
// plan records.
package evaluator

import (
	"context"

	"github.com/verte-zerg/tripscore/internal/model"
)

// Tier names a family of constraints.
type Tier string

// Constraint tiers.
const (
	TierCommonsense Tier = "commonsense"
	TierHard        Tier = "hard"
)

// Gate checks that must pass before hard constraints are evaluated.
const (
	GateNotAbsent = "is_not_absent"
	GateSandbox   = "is_valid_information_in_sandbox"
)

// Evaluator maps a query and a plan to per-constraint outcomes.
type Evaluator interface {
	Evaluate(ctx context.Context, query model.Query, plan []model.DayEntry) (model.Outcomes, error)
}

// IndexedEvaluator is implemented by evaluators that look outcomes up by the
// plan's position in the adapter input. The adapter prefers it over Evaluate.
type IndexedEvaluator interface {
	EvaluateIndex(ctx context.Context, index int, query model.Query, plan []model.DayEntry) (model.Outcomes, error)
}

// Func adapts a function to Evaluator.
type Func func(ctx context.Context, query model.Query, plan []model.DayEntry) (model.Outcomes, error)

// Evaluate implements Evaluator.
func (f Func) Evaluate(ctx context.Context, query model.Query, plan []model.DayEntry) (model.Outcomes, error) {
	return f(ctx, query, plan)
}

// Status describes what happened to one plan.
type Status int

// Plan statuses.
const (
	StatusEvaluated Status = iota
	StatusDegenerate
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusEvaluated:
		return "evaluated"
	case StatusDegenerate:
		return "degenerate"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PlanResult is the evaluation of one input record.
type PlanResult struct {
	Index     int
	Status    Status
	Delivered bool
	Query     model.Query
	// Commonsense is nil when evaluation did not run.
	Commonsense model.Outcomes
	// Hard is nil when the gate checks did not both pass.
	Hard model.Outcomes
	Err  error
}

// Input is one record handed to the adapter. Err carries a decode failure.
type Input struct {
	Record model.PlanRecord
	Err    error
}

// gateOpen reports whether hard constraints should be evaluated.
func gateOpen(commonsense model.Outcomes) bool {
	if commonsense == nil {
		return false
	}
	for _, key := range []string{GateNotAbsent, GateSandbox} {
		outcome, ok := commonsense[key]
		if !ok {
			return false
		}
		first := outcome.First()
		if first == nil || !*first {
			return false
		}
	}
	return true
}
