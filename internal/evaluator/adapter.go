package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/tripscore/internal/model"
)

// minPlanDays is the smallest plan length that is evaluated at all.
const minPlanDays = 3

// Adapter evaluates plans with the commonsense evaluator and, when the gate
// checks pass, the hard evaluator.
type Adapter struct {
	Commonsense Evaluator
	Hard        Evaluator
	Workers     int
	Logger      *slog.Logger
}

// Run evaluates every input. Per-plan failures are logged and recorded in the
// result; only an outcome-shape error or context cancellation stops the run.
// Results are returned in input order.
func (a *Adapter) Run(ctx context.Context, inputs []Input) ([]PlanResult, error) {
	if a.Commonsense == nil || a.Hard == nil {
		return nil, fmt.Errorf("commonsense and hard evaluators are required")
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := a.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]PlanResult, len(inputs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range inputs {
		i := i
		g.Go(func() error {
			res, err := a.evaluate(gCtx, i, inputs[i])
			if err != nil {
				return err
			}
			if res.Status == StatusFailed {
				logger.Warn("skipping plan", "index", i, "error", res.Err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *Adapter) evaluate(ctx context.Context, idx int, in Input) (PlanResult, error) {
	res := PlanResult{Index: idx, Query: in.Record.Query}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if in.Err != nil {
		res.Status = StatusFailed
		res.Err = in.Err
		return res, nil
	}
	if len(in.Record.Plan) < minPlanDays {
		res.Status = StatusDegenerate
		return res, nil
	}
	res.Delivered = true

	commonsense, err := call(ctx, a.Commonsense, idx, in.Record)
	if err != nil {
		return failed(res, TierCommonsense, err)
	}
	res.Commonsense = commonsense

	if gateOpen(commonsense) {
		hard, err := call(ctx, a.Hard, idx, in.Record)
		if err != nil {
			return failed(res, TierHard, err)
		}
		res.Hard = hard
	}
	res.Status = StatusEvaluated
	return res, nil
}

func call(ctx context.Context, ev Evaluator, idx int, rec model.PlanRecord) (model.Outcomes, error) {
	if indexed, ok := ev.(IndexedEvaluator); ok {
		return indexed.EvaluateIndex(ctx, idx, rec.Query, rec.Plan)
	}
	return ev.Evaluate(ctx, rec.Query, rec.Plan)
}

func failed(res PlanResult, tier Tier, err error) (PlanResult, error) {
	if errors.Is(err, model.ErrOutcomeShape) {
		return res, fmt.Errorf("plan %d: %s evaluator: %w", res.Index, tier, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}
	res.Status = StatusFailed
	res.Commonsense = nil
	res.Hard = nil
	res.Err = fmt.Errorf("%s evaluator: %w", tier, err)
	return res, nil
}
