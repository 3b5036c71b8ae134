package component

// Schema tag parsing and generation: GenerateConfigSchema eliminates
// duplication between a factory's Go config struct and the ConfigSchema
// the control surface publishes, by deriving the latter from struct tags
// at init time via reflection.
//
// Tag syntax (comma-separated directives, colon-separated key:value):
//
//	schema:"type:string,description:Model name,default:gpt-4o-mini"
//	schema:"type:int,description:Sample rate,min:8000,max:48000,default:16000"
//	schema:"type:enum,description:Voice,enum:alloy|verse,default:alloy"
//	schema:"required,type:string,description:API key"
//
// Call GenerateConfigSchema once per factory and cache the result in a
// package-level variable; reflection cost is paid once, not per request.
import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type tagDirectives struct {
	Type        string
	Description string
	Default     string
	hasDefault  bool
	Required    bool
	Min         *float64
	Max         *float64
	Enum        []string
}

func parseSchemaTag(tag string) (tagDirectives, error) {
	var d tagDirectives
	if tag == "" {
		return d, fmt.Errorf("empty schema tag")
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, ":") {
			if part == "required" {
				d.Required = true
				continue
			}
			return d, fmt.Errorf("unknown boolean flag: %s", part)
		}
		kv := strings.SplitN(part, ":", 2)
		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "type":
			d.Type = value
		case "description":
			d.Description = value
		case "default":
			d.Default = value
			d.hasDefault = true
		case "min":
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return d, fmt.Errorf("invalid min value: %s", value)
			}
			d.Min = &n
		case "max":
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return d, fmt.Errorf("invalid max value: %s", value)
			}
			d.Max = &n
		case "enum":
			d.Enum = strings.Split(value, "|")
			for i := range d.Enum {
				d.Enum[i] = strings.TrimSpace(d.Enum[i])
			}
		}
	}
	if d.Type == "" {
		return d, fmt.Errorf("type directive is required")
	}
	return d, nil
}

func convertDefault(raw string, typ string) any {
	switch typ {
	case "int":
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case "float", "number":
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
	case "bool":
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

// GenerateConfigSchema derives a ConfigSchema from t's "schema" struct
// tags. Fields without a schema tag are skipped; fields whose tag fails
// to parse panic, since a malformed tag is a programmer error caught at
// init time, not a runtime condition.
func GenerateConfigSchema(t reflect.Type) ConfigSchema {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	schema := ConfigSchema{
		Type:       "object",
		Properties: make(map[string]PropertySchema),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, ok := field.Tag.Lookup("schema")
		if !ok {
			continue
		}
		d, err := parseSchemaTag(tag)
		if err != nil {
			panic(fmt.Sprintf("component: invalid schema tag on %s.%s: %v", t.Name(), field.Name, err))
		}

		name := field.Tag.Get("json")
		if idx := strings.Index(name, ","); idx >= 0 {
			name = name[:idx]
		}
		if name == "" {
			name = strings.ToLower(field.Name)
		}

		prop := PropertySchema{
			Type:        d.Type,
			Description: d.Description,
			Enum:        d.Enum,
			Minimum:     d.Min,
			Maximum:     d.Max,
		}
		if d.hasDefault {
			prop.Default = convertDefault(d.Default, d.Type)
		}
		schema.Properties[name] = prop

		if d.Required {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}
