package schema

import (
	"encoding/json"
	"fmt"
)

// Hint is the version 1 presentation metadata for one field, kept apart from
// the representation.
type Hint struct {
	FieldType   string `json:"fieldType,omitempty"`
	Label       string `json:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	HelpText    string `json:"helpText,omitempty"`
}

// Hints maps top-level field names to their version 1 hints.
type Hints map[string]Hint

// ParseHints decodes a version 1 hint blob. An empty blob yields no hints.
func ParseHints(raw string) (Hints, error) {
	if raw == "" {
		return nil, nil
	}
	var h Hints
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("%w: field config: %v", ErrMalformed, err)
	}
	return h, nil
}

// MergeHints returns a copy of root with hints embedded on the matching
// top-level properties. Entries with no matching property are dropped. root
// is not modified.
func MergeHints(root *Field, hints Hints) *Field {
	merged := root.Clone()
	if merged == nil || len(hints) == 0 {
		return merged
	}
	for name, h := range hints {
		prop, ok := merged.Properties[name]
		if !ok {
			continue
		}
		if h.FieldType != "" {
			prop.FieldType = h.FieldType
		}
		if h.Label != "" {
			prop.Label = h.Label
		}
		if h.Placeholder != "" {
			prop.Placeholder = h.Placeholder
		}
		if h.HelpText != "" {
			prop.HelpText = h.HelpText
		}
	}
	return merged
}

// ExtractHints splits embedded hints off a shape, producing the version 1
// pair (stripped representation, hints). Used to stage legacy rows.
func ExtractHints(root *Field) (*Field, Hints) {
	stripped := root.Clone()
	hints := Hints{}
	if stripped == nil {
		return nil, hints
	}
	for name, prop := range stripped.Properties {
		h := Hint{FieldType: prop.FieldType, Label: prop.Label, Placeholder: prop.Placeholder, HelpText: prop.HelpText}
		if h == (Hint{}) {
			continue
		}
		// relation markers are structural, not presentation
		if prop.Relation != nil {
			h.FieldType = ""
		} else {
			prop.FieldType = ""
		}
		prop.Label, prop.Placeholder, prop.HelpText = "", "", ""
		if h != (Hint{}) {
			hints[name] = h
		}
	}
	return stripped, hints
}
