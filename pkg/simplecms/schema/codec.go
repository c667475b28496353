package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformed indicates a stored representation that cannot be interpreted.
var ErrMalformed = errors.New("malformed schema representation")

// Marshal serializes a shape into the current-version representation.
// Output is deterministic: property maps are emitted in key order and the
// required list is sorted.
func Marshal(root *Field) (string, error) {
	if err := checkStructure(root, ""); err != nil {
		return "", err
	}
	normalized := root.Clone()
	sortRequired(normalized)
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(b), nil
}

// Parse decodes a stored representation and checks its structure.
func Parse(raw string) (*Field, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty representation", ErrMalformed)
	}
	var root Field
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := checkStructure(&root, ""); err != nil {
		return nil, err
	}
	sortRequired(&root)
	return &root, nil
}

func sortRequired(f *Field) {
	if f == nil {
		return
	}
	sort.Strings(f.Required)
	sortRequired(f.Items)
	for _, p := range f.Properties {
		sortRequired(p)
	}
}

func checkStructure(root *Field, path string) error {
	if root == nil {
		return fmt.Errorf("%w: missing root", ErrMalformed)
	}
	if path == "" && root.Type != KindObject {
		return fmt.Errorf("%w: root must be an object, got %q", ErrMalformed, root.Type)
	}
	return checkField(root, path)
}

func checkField(f *Field, path string) error {
	if f == nil {
		return fmt.Errorf("%w: empty field at %s", ErrMalformed, displayPath(path))
	}
	if !f.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q at %s", ErrMalformed, f.Type, displayPath(path))
	}
	if f.Relation != nil {
		r := f.Relation
		if !r.Type.IsValid() {
			return fmt.Errorf("%w: unknown relation type %q at %s", ErrMalformed, r.Type, displayPath(path))
		}
		if r.TargetType == "" {
			return fmt.Errorf("%w: relation at %s has no target type", ErrMalformed, displayPath(path))
		}
		if r.Type.IsMany() && f.Type != KindArray {
			return fmt.Errorf("%w: %s relation at %s must be an array", ErrMalformed, r.Type, displayPath(path))
		}
		if !r.Type.IsMany() && f.Type != KindObject {
			return fmt.Errorf("%w: %s relation at %s must be an object", ErrMalformed, r.Type, displayPath(path))
		}
		return nil
	}
	switch f.Type {
	case KindArray:
		if f.Items == nil {
			return fmt.Errorf("%w: array at %s has no items", ErrMalformed, displayPath(path))
		}
		return checkField(f.Items, path+"[]")
	case KindObject:
		for _, name := range f.Required {
			if _, ok := f.Properties[name]; !ok {
				return fmt.Errorf("%w: required field %q at %s is not declared", ErrMalformed, name, displayPath(path))
			}
		}
		for name, prop := range f.Properties {
			if err := checkField(prop, joinPath(path, name)); err != nil {
				return err
			}
		}
	}
	if len(f.Enum) > 0 && f.Type != KindString && f.Type != KindNumber && f.Type != KindInteger {
		return fmt.Errorf("%w: enum on %s field at %s", ErrMalformed, f.Type, displayPath(path))
	}
	return nil
}

func displayPath(path string) string {
	if path == "" {
		return "root"
	}
	return path
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
