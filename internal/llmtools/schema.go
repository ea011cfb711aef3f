package llmtools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// validateAgainstSchema checks a decoded JSON value against a small, strictly
// structural subset of JSON Schema: type, properties, required,
// additionalProperties (when false), items, minimum and maximum. Unknown keywords are ignored so tool schemas can carry
// documentation-only hints (format, description) without failing validation.
func validateAgainstSchema(val any, rawSchema json.RawMessage) error {
	var schema map[string]any
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return fmt.Errorf("schema unreadable: %w", err)
	}
	return validateNode(val, schema, "$")
}

func validateNode(val any, schema map[string]any, path string) error {
	if t, ok := schema["type"].(string); ok {
		if err := checkType(val, t, path); err != nil {
			return err
		}
	}

	switch v := val.(type) {
	case map[string]any:
		if req, ok := schema["required"].([]any); ok {
			for _, rk := range req {
				key, _ := rk.(string)
				if key == "" {
					continue
				}
				if _, present := v[key]; !present {
					return fmt.Errorf("%s: missing required property %q", path, key)
				}
			}
		}
		if props, ok := schema["properties"].(map[string]any); ok {
			for key, ps := range props {
				sub, ok := ps.(map[string]any)
				if !ok {
					continue
				}
				if child, present := v[key]; present {
					if err := validateNode(child, sub, path+"."+key); err != nil {
						return err
					}
				}
			}
		}
		if ap, ok := schema["additionalProperties"].(bool); ok && !ap {
			props, _ := schema["properties"].(map[string]any)
			for key := range v {
				if _, declared := props[key]; !declared {
					return fmt.Errorf("%s: unexpected property %q", path, key)
				}
			}
		}
	case []any:
		if items, ok := schema["items"].(map[string]any); ok {
			for i, child := range v {
				if err := validateNode(child, items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	case float64:
		if min, ok := schema["minimum"].(float64); ok && v < min {
			return fmt.Errorf("%s: %v below minimum %v", path, v, min)
		}
		if max, ok := schema["maximum"].(float64); ok && v > max {
			return fmt.Errorf("%s: %v above maximum %v", path, v, max)
		}
	}
	return nil
}

func checkType(val any, want string, path string) error {
	ok := false
	switch strings.TrimSpace(want) {
	case "object":
		_, ok = val.(map[string]any)
	case "array":
		_, ok = val.([]any)
	case "string":
		_, ok = val.(string)
	case "boolean":
		_, ok = val.(bool)
	case "number":
		_, ok = val.(float64)
	case "integer":
		if f, isNum := val.(float64); isNum {
			ok = f == float64(int64(f))
		}
	case "null":
		ok = val == nil
	default:
		ok = true
	}
	if !ok {
		return fmt.Errorf("%s: expected %s", path, want)
	}
	return nil
}
