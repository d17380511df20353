package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/verte-zerg/tripscore/internal/model"
)

// Record fields holding precomputed outcomes.
const (
	RecordedCommonsenseField = "commonsense_constraint"
	RecordedHardField        = "hard_constraint"
)

// ErrNoIndex is returned when a Recorded evaluator is called without the
// input position it needs to find the stored outcomes.
var ErrNoIndex = errors.New("recorded outcomes are looked up by input index")

// Recorded replays outcomes stored in the records themselves, keyed by the
// record's position in the adapter input.
type Recorded struct {
	field   string
	byIndex map[int]json.RawMessage
}

// NewRecorded returns an evaluator reading the given record field.
func NewRecorded(field string) *Recorded {
	return &Recorded{field: field, byIndex: map[int]json.RawMessage{}}
}

// RecordedPair returns commonsense and hard evaluators primed with the
// records of inputs. Inputs carrying a decode error are skipped.
func RecordedPair(inputs []Input) (*Recorded, *Recorded) {
	cs := NewRecorded(RecordedCommonsenseField)
	hard := NewRecorded(RecordedHardField)
	for i, in := range inputs {
		if in.Err != nil {
			continue
		}
		cs.Register(i, in.Record)
		hard.Register(i, in.Record)
	}
	return cs, hard
}

// Register makes the outcomes stored in rec available at the given index.
func (r *Recorded) Register(index int, rec model.PlanRecord) {
	if raw, ok := rec.Fields[r.field]; ok {
		r.byIndex[index] = raw
	}
}

// EvaluateIndex implements IndexedEvaluator. A record without the field
// yields nil.
func (r *Recorded) EvaluateIndex(_ context.Context, index int, _ model.Query, _ []model.DayEntry) (model.Outcomes, error) {
	raw, ok := r.byIndex[index]
	if !ok {
		return nil, nil
	}
	var outcomes model.Outcomes
	if err := json.Unmarshal(raw, &outcomes); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", r.field, err)
	}
	return outcomes, nil
}

// Evaluate implements Evaluator. Without an index nothing can be looked up.
func (r *Recorded) Evaluate(context.Context, model.Query, []model.DayEntry) (model.Outcomes, error) {
	return nil, ErrNoIndex
}
