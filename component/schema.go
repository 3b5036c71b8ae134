package component

// ConfigSchema describes the constructor parameters a factory accepts,
// using the JSON-Schema-like dialect defined in spec §6.3: each property
// carries a type, optional default/enum/anyOf, and object properties may
// recurse through $ref into a shared $defs table.
type ConfigSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
	Defs       map[string]ConfigSchema   `json:"$defs,omitempty"`
}

// PropertySchema describes a single configuration property. Exactly one
// of Type, Ref, or AnyOf should be set; Properties/Items are only
// meaningful when Type is "object"/"array" respectively.
type PropertySchema struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitempty"`
	Default     any                       `json:"default,omitempty"`
	Enum        []string                  `json:"enum,omitempty"`
	Minimum     *float64                  `json:"minimum,omitempty"`
	Maximum     *float64                  `json:"maximum,omitempty"`
	Properties  map[string]PropertySchema `json:"properties,omitempty"`
	Required    []string                  `json:"required,omitempty"`
	Items       *PropertySchema           `json:"items,omitempty"`
	Ref         string                    `json:"$ref,omitempty"`
	AnyOf       []PropertySchema          `json:"anyOf,omitempty"`
}

// Float64Ptr is a small helper for populating Minimum/Maximum literals
// without a throwaway local variable at each call site.
func Float64Ptr(v float64) *float64 { return &v }
