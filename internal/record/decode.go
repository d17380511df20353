package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/verte-zerg/tripscore/internal/model"
)

// queryField holds the benchmark query when a record wraps it.
const queryField = "JSON"

// ErrNotObject is returned when a record is not a JSON object.
var ErrNotObject = errors.New("record is not a JSON object")

// Decode turns a raw record into a PlanRecord. Fields that arrive as
// JSON-encoded strings are decoded a second time.
func Decode(raw json.RawMessage) (model.PlanRecord, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return model.PlanRecord{}, err
	}

	queryFields := fields
	if rawQuery, ok := fields[queryField]; ok {
		queryFields, err = decodeObject(rawQuery)
		if err != nil {
			return model.PlanRecord{}, fmt.Errorf("failed to decode query: %w", err)
		}
	}
	query, err := DecodeQuery(queryFields)
	if err != nil {
		return model.PlanRecord{}, err
	}

	plan, err := DecodePlan(fields)
	if err != nil {
		return model.PlanRecord{}, err
	}
	return model.PlanRecord{Query: query, Plan: plan, Fields: fields}, nil
}

// DecodePlan reads the "plan" field of a record. A missing plan is empty.
func DecodePlan(fields map[string]json.RawMessage) ([]model.DayEntry, error) {
	rawPlan, ok := fields["plan"]
	if !ok || isNull(rawPlan) {
		return nil, nil
	}
	rawPlan, err := unwrapString(rawPlan)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	var plan []model.DayEntry
	if err := json.Unmarshal(rawPlan, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return plan, nil
}

// PlanOf returns the plan of a raw record. When key is set and the record
// holds an object under it, the plan is read from that object. found is false
// when the record has no plan at all.
func PlanOf(raw json.RawMessage, key string) (plan []model.DayEntry, found bool, err error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, false, err
	}
	if key != "" {
		if nested, ok := fields[key]; ok {
			fields, err = decodeObject(nested)
			if err != nil {
				return nil, false, fmt.Errorf("failed to decode %s: %w", key, err)
			}
		}
	}
	if rawPlan, ok := fields["plan"]; !ok || isNull(rawPlan) {
		return nil, false, nil
	}
	plan, err = DecodePlan(fields)
	if err != nil {
		return nil, false, err
	}
	return plan, true, nil
}

// DecodeQuery builds a Query from its top-level fields. The level, days and
// local_constraint fields are not required here; see ValidateQuery.
func DecodeQuery(fields map[string]json.RawMessage) (model.Query, error) {
	normalized := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		normalized[k] = v
	}
	if rawLC, ok := fields["local_constraint"]; ok {
		unwrapped, err := unwrapString(rawLC)
		if err != nil {
			return model.Query{}, fmt.Errorf("failed to decode local_constraint: %w", err)
		}
		normalized["local_constraint"] = unwrapped
	}

	var query model.Query
	if raw, ok := normalized["level"]; ok {
		var level string
		if err := json.Unmarshal(raw, &level); err == nil {
			query.Level = model.Level(level)
		}
	}
	if raw, ok := normalized["days"]; ok {
		var days float64
		if err := json.Unmarshal(raw, &days); err == nil && days == float64(int(days)) {
			query.Days = int(days)
		}
	}
	if raw, ok := normalized["local_constraint"]; ok {
		var lc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &lc); err == nil {
			query.LocalConstraint = lc
		}
	}

	encoded, err := json.Marshal(normalized)
	if err != nil {
		return model.Query{}, fmt.Errorf("failed to encode query: %w", err)
	}
	query.Raw = encoded
	return query, nil
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	raw, err := unwrapString(raw)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrNotObject
	}
	return fields, nil
}

// unwrapString decodes a JSON string holding JSON text into that text.
// Values that are not strings are returned unchanged.
func unwrapString(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, err
	}
	if !json.Valid([]byte(inner)) {
		return nil, fmt.Errorf("string field does not hold JSON: %.40q", inner)
	}
	return json.RawMessage(inner), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
