package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrOutcomeShape signals an evaluator result that is not a boolean, an
// annotated pair or a list of booleans.
var ErrOutcomeShape = errors.New("unexpected constraint outcome shape")

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

// Outcome variants.
const (
	OutcomeAbsent OutcomeKind = iota
	OutcomeSingle
	OutcomeAnnotated
	OutcomeMulti
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAbsent:
		return "absent"
	case OutcomeSingle:
		return "single"
	case OutcomeAnnotated:
		return "annotated"
	case OutcomeMulti:
		return "multi"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one named constraint against one plan.
type Outcome struct {
	Kind    OutcomeKind
	Value   *bool
	Message *string
	Values  []bool
}

// Outcomes maps constraint names to their results.
type Outcomes map[string]Outcome

// Single returns a bare boolean verdict.
func Single(v bool) Outcome {
	return Outcome{Kind: OutcomeSingle, Value: &v}
}

// Annotated returns a verdict with an optional diagnostic message.
// A nil value means the check was not applicable.
func Annotated(v *bool, msg *string) Outcome {
	return Outcome{Kind: OutcomeAnnotated, Value: v, Message: msg}
}

// Multi returns one verdict per checked item.
func Multi(values ...bool) Outcome {
	return Outcome{Kind: OutcomeMulti, Values: values}
}

// Absent returns an outcome for a check that was not attempted.
func Absent() Outcome {
	return Outcome{Kind: OutcomeAbsent}
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }

// First returns the leading verdict of a Single or Annotated outcome.
func (o Outcome) First() *bool {
	switch o.Kind {
	case OutcomeSingle, OutcomeAnnotated:
		return o.Value
	default:
		return nil
	}
}

// Count returns the number of passing and failing verdicts.
func (o Outcome) Count() (passed, failed int, err error) {
	switch o.Kind {
	case OutcomeAbsent:
		return 0, 0, nil
	case OutcomeSingle:
		if o.Value == nil {
			return 0, 0, fmt.Errorf("%w: single outcome without value", ErrOutcomeShape)
		}
		if *o.Value {
			return 1, 0, nil
		}
		return 0, 1, nil
	case OutcomeAnnotated:
		if o.Value == nil {
			return 0, 0, nil
		}
		if *o.Value {
			return 1, 0, nil
		}
		return 0, 1, nil
	case OutcomeMulti:
		for _, v := range o.Values {
			if v {
				passed++
			} else {
				failed++
			}
		}
		return passed, failed, nil
	default:
		return 0, 0, fmt.Errorf("%w: %s", ErrOutcomeShape, o.Kind)
	}
}

// Failing reports whether the outcome holds at least one false verdict.
func (o Outcome) Failing() bool {
	_, failed, err := o.Count()
	return err == nil && failed > 0
}

// UnmarshalJSON decodes true/false, null, [bool|null, string|null] and [bool...].
func (o *Outcome) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*o = Absent()
		return nil
	}
	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		*o = Single(b)
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return fmt.Errorf("%w: %s", ErrOutcomeShape, truncate(trimmed))
	}
	if pair, ok := decodePair(items); ok {
		*o = pair
		return nil
	}
	values := make([]bool, 0, len(items))
	for _, item := range items {
		var v bool
		if err := json.Unmarshal(item, &v); err != nil || isNull(item) {
			return fmt.Errorf("%w: %s", ErrOutcomeShape, truncate(trimmed))
		}
		values = append(values, v)
	}
	*o = Multi(values...)
	return nil
}

// MarshalJSON encodes the outcome in the same shapes UnmarshalJSON accepts.
func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OutcomeAbsent:
		return []byte("null"), nil
	case OutcomeSingle:
		if o.Value == nil {
			return nil, fmt.Errorf("%w: single outcome without value", ErrOutcomeShape)
		}
		return json.Marshal(*o.Value)
	case OutcomeAnnotated:
		return json.Marshal([]any{o.Value, o.Message})
	case OutcomeMulti:
		values := o.Values
		if values == nil {
			values = []bool{}
		}
		return json.Marshal(values)
	default:
		return nil, fmt.Errorf("%w: %s", ErrOutcomeShape, o.Kind)
	}
}

func decodePair(items []json.RawMessage) (Outcome, bool) {
	if len(items) != 2 {
		return Outcome{}, false
	}
	var msg *string
	if !isNull(items[1]) {
		var s string
		if err := json.Unmarshal(items[1], &s); err != nil {
			return Outcome{}, false
		}
		msg = &s
	}
	if isNull(items[0]) {
		return Annotated(nil, msg), true
	}
	var v bool
	if err := json.Unmarshal(items[0], &v); err != nil {
		return Outcome{}, false
	}
	return Annotated(&v, msg), true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func truncate(raw []byte) string {
	const limit = 80
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
