package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FunctionSchema renders a tool's declared parameters as a JSON Schema
// object suitable for native function calling.
func FunctionSchema(info ToolInfo) map[string]interface{} {
	properties := make(map[string]interface{}, len(info.Parameters))
	for _, p := range info.Parameters {
		prop := map[string]interface{}{
			"type": schemaType(p.Type),
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Items) > 0 {
			prop["items"] = p.Items
		}
		properties[p.Name] = prop
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if required := RequiredFields(info); len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RequiredFields returns the tool's required parameter names, sorted.
func RequiredFields(info ToolInfo) []string {
	var required []string
	for _, p := range info.Parameters {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)
	return required
}

// ValidationError reports why a tool call's arguments were rejected before
// invocation. It is a recoverable failure, not a run-ending error.
type ValidationError struct {
	Tool        string   `json:"tool"`
	Missing     []string `json:"missing,omitempty"`
	FieldErrors []string `json:"field_errors,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.FieldErrors) > 0 {
		parts = append(parts, strings.Join(e.FieldErrors, "; "))
	}
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, strings.Join(parts, "; "))
}

// ValidateArgs checks args against the tool's declared schema. A nil return
// means the call may proceed.
func ValidateArgs(info ToolInfo, args map[string]interface{}) *ValidationError {
	verr := &ValidationError{Tool: info.Name}

	for _, p := range info.Parameters {
		value, present := args[p.Name]
		if !present || value == nil {
			if p.Required && p.Default == nil {
				verr.Missing = append(verr.Missing, p.Name)
			}
			continue
		}
		if p.Type != "" && !typeMatches(p.Type, value) {
			verr.FieldErrors = append(verr.FieldErrors,
				fmt.Sprintf("%s: expected %s, got %T", p.Name, schemaType(p.Type), value))
			continue
		}
		if len(p.Enum) > 0 {
			if s, ok := value.(string); !ok || !contains(p.Enum, s) {
				verr.FieldErrors = append(verr.FieldErrors,
					fmt.Sprintf("%s: must be one of %s", p.Name, strings.Join(p.Enum, ", ")))
			}
		}
	}

	sort.Strings(verr.Missing)
	if len(verr.Missing) == 0 && len(verr.FieldErrors) == 0 {
		return nil
	}
	return verr
}

func schemaType(t string) string {
	switch strings.ToLower(t) {
	case "", "string", "str":
		return "string"
	case "int", "integer":
		return "integer"
	case "float", "number", "double":
		return "number"
	case "bool", "boolean":
		return "boolean"
	case "array", "list":
		return "array"
	case "object", "map", "dict":
		return "object"
	default:
		return "string"
	}
}

// typeMatches is tolerant of JSON decoding artifacts: decoded numbers
// arrive as float64 or json.Number regardless of the declared type.
func typeMatches(declared string, value interface{}) bool {
	switch schemaType(declared) {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		case json.Number:
			_, err := v.Int64()
			return err == nil
		}
		return false
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64, json.Number:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	}
	return true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
