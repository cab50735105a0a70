// Package validate checks rulespec documents against their JSON Schema
// before they reach the compiler.
package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ppiankov/invariant/internal/model"
)

const schemaURL = "https://invariant.schemas.local/rulespec.schema.json"

// RulespecSchema is the JSON Schema (draft 2020-12) of a rulespec document
const RulespecSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": ["object", "null"],
  "additionalProperties": false,
  "properties": {
    "claims": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "selector"],
        "properties": {
          "name": {"type": "string"},
          "selector": {"type": "string"}
        }
      }
    },
    "predicates": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["claim", "rule"],
        "properties": {
          "claim": {"type": "string"},
          "rule": {"$ref": "#/$defs/rule"},
          "value": true,
          "source": {"enum": ["task_prompt", "memory", "", null]},
          "notes": {"type": ["string", "null"]},
          "when": {"$ref": "#/$defs/check"}
        }
      }
    }
  },
  "$defs": {
    "rule": {
      "enum": ["exists", "not_exists", "equals", "contains", "not_contains", "any_of",
               "none_of", "greater_than", "less_than", "min_length", "max_length", "matches"]
    },
    "check": {
      "type": ["object", "null"],
      "additionalProperties": false,
      "required": ["claim", "rule"],
      "properties": {
        "claim": {"type": "string"},
        "rule": {"$ref": "#/$defs/rule"},
        "value": true
      }
    }
  }
}`

// Problem is one schema violation
type Problem struct {
	Location string // JSON pointer into the document
	Message  string
}

// SchemaError lists every violation found in a document
type SchemaError struct {
	Problems []Problem
}

func (e *SchemaError) Error() string {
	if len(e.Problems) == 0 {
		return "rulespec does not match schema"
	}
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		loc := p.Location
		if loc == "" {
			loc = "/"
		}
		parts[i] = fmt.Sprintf("%s: %s", loc, p.Message)
	}
	return "rulespec does not match schema: " + strings.Join(parts, "; ")
}

// Validator checks rulespec documents against RulespecSchema
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the rulespec schema
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(RulespecSchema)); err != nil {
		return nil, fmt.Errorf("rulespec schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("rulespec schema compile failed: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks a decoded rulespec document. Violations are returned as
// a *SchemaError.
func (v *Validator) Validate(doc model.Value) error {
	err := v.schema.Validate(doc.Interface())
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("validate rulespec: %w", err)
	}

	problems := leaves(verr, nil)
	sort.SliceStable(problems, func(i, j int) bool { return problems[i].Location < problems[j].Location })
	return &SchemaError{Problems: problems}
}

// ValidateBytes parses a YAML or JSON rulespec and validates it
func (v *Validator) ValidateBytes(data []byte) error {
	doc, err := model.ParseDocument(data)
	if err != nil {
		return fmt.Errorf("parse rulespec: %w", err)
	}
	return v.Validate(doc)
}

// leaves collects the innermost causes, which carry the specific messages
func leaves(e *jsonschema.ValidationError, out []Problem) []Problem {
	if len(e.Causes) == 0 {
		return append(out, Problem{Location: e.InstanceLocation, Message: e.Message})
	}
	for _, c := range e.Causes {
		out = leaves(c, out)
	}
	return out
}
