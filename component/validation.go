package component

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxJSONSize bounds a factory's raw configuration payload to prevent
// memory exhaustion from a malicious or malformed request body.
const maxJSONSize = 1 << 20 // 1 MiB

// ValidateAgainstSchema checks rawConfig's required fields, enum
// membership, and numeric bounds against schema before a factory ever
// sees it. It does not attempt full JSON-Schema validation — only the
// subset spec §6.3 defines.
func ValidateAgainstSchema(rawConfig json.RawMessage, schema ConfigSchema) error {
	if len(rawConfig) > maxJSONSize {
		return fmt.Errorf("config size %d exceeds maximum %d", len(rawConfig), maxJSONSize)
	}
	if len(rawConfig) == 0 {
		rawConfig = []byte("{}")
	}

	var decoded map[string]any
	dec := json.NewDecoder(strings.NewReader(string(rawConfig)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("invalid config JSON: %w", err)
	}

	for _, req := range schema.Required {
		if _, present := decoded[req]; !present {
			return fmt.Errorf("missing required field %q", req)
		}
	}

	for name, value := range decoded {
		prop, known := schema.Properties[name]
		if !known {
			continue // unknown properties are tolerated, not an error
		}
		if err := validateProperty(name, value, prop); err != nil {
			return err
		}
	}

	return nil
}

func validateProperty(name string, value any, prop PropertySchema) error {
	if len(prop.Enum) > 0 {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q: expected string for enum, got %T", name, value)
		}
		found := false
		for _, allowed := range prop.Enum {
			if s == allowed {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("field %q: %q is not one of %v", name, s, prop.Enum)
		}
	}

	if prop.Minimum != nil || prop.Maximum != nil {
		num, ok := value.(json.Number)
		if !ok {
			return fmt.Errorf("field %q: expected number, got %T", name, value)
		}
		f, err := num.Float64()
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if prop.Minimum != nil && f < *prop.Minimum {
			return fmt.Errorf("field %q: %v is below minimum %v", name, f, *prop.Minimum)
		}
		if prop.Maximum != nil && f > *prop.Maximum {
			return fmt.Errorf("field %q: %v exceeds maximum %v", name, f, *prop.Maximum)
		}
	}

	return nil
}
