package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/verte-zerg/tripscore/internal/model"
)

const querySchemaURL = "tripscore://query.schema.json"

// querySchema covers the fields the statistics need; anything else in the
// query is passed through to evaluators untouched.
const querySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["level", "days", "local_constraint"],
  "properties": {
    "level": {"type": "string"},
    "days": {"type": "integer"},
    "local_constraint": {"type": "object"}
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(querySchemaURL, strings.NewReader(querySchema)); err != nil {
			compileErr = fmt.Errorf("add query schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(querySchemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile query schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// ValidateQuery checks that a query carries level, days and a mapping
// local_constraint. It does not check the values against the taxonomy.
func ValidateQuery(q model.Query) error {
	s, err := schema()
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(q.Raw, &payload); err != nil {
		return fmt.Errorf("invalid query JSON: %w", err)
	}
	if err := s.Validate(payload); err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	return nil
}
