package mcpd

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidationResult holds the outcome of validating an argument map against a
// tool's input schema. Errors accumulates every mismatch found; validation
// never stops at the first one.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// inputSchema is the restricted JSON-Schema subset the validator understands.
// Anything beyond type, required and enum is accepted and ignored.
type inputSchema struct {
	Type       string                    `json:"type"`
	Required   []string                  `json:"required"`
	Properties map[string]propertySchema `json:"properties"`
}

type propertySchema struct {
	Type string `json:"type"`
	Enum []any  `json:"enum"`
}

// ValidateSchema checks args against schema. Only object-root schemas are
// enforced; an absent, non-object, or unparseable schema is trivially valid.
// For object schemas every name in required must be present in args, every
// declared property present in args must match its declared primitive type
// (string, number, integer, boolean), and string values must match a declared
// enum. Validation does not recurse into nested objects or arrays.
func ValidateSchema(schema json.RawMessage, args map[string]any) ValidationResult {
	if len(schema) == 0 {
		return ValidationResult{Valid: true}
	}

	var sch inputSchema
	if err := json.Unmarshal(schema, &sch); err != nil {
		return ValidationResult{Valid: true}
	}
	if sch.Type != "object" {
		return ValidationResult{Valid: true}
	}

	var errs []string

	for _, name := range sch.Required {
		if _, ok := args[name]; !ok {
			errs = append(errs, fmt.Sprintf("missing required field: %s", name))
		}
	}

	for name, prop := range sch.Properties {
		value, ok := args[name]
		if !ok {
			continue
		}
		errs = validateField(name, prop, value, errs)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func validateField(name string, prop propertySchema, value any, errs []string) []string {
	switch prop.Type {
	case "string":
		if _, ok := value.(string); !ok {
			errs = append(errs, fmt.Sprintf("field %q must be a string", name))
		}
	case "number":
		if !isNumber(value) {
			errs = append(errs, fmt.Sprintf("field %q must be a number", name))
		}
	case "integer":
		if !isInteger(value) {
			errs = append(errs, fmt.Sprintf("field %q must be an integer", name))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			errs = append(errs, fmt.Sprintf("field %q must be a boolean", name))
		}
	}

	// Enum membership is only enforced for textual values.
	if s, ok := value.(string); ok && len(prop.Enum) > 0 {
		found := false
		for _, e := range prop.Enum {
			if es, ok := e.(string); ok && es == s {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("field %q has invalid enum value", name))
		}
	}

	return errs
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		// JSON numbers always decode to float64; accept whole values.
		return v == math.Trunc(v)
	}
	return false
}
