package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"unicode/utf8"
)

// ErrUnknownTarget indicates a relation field pointing at an unregistered content type.
var ErrUnknownTarget = errors.New("relation target type is not registered")

// Violation is one field-level validation failure.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError collects the violations of one payload.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", displayPath(v.Path), v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CompileOptions controls validator derivation.
type CompileOptions struct {
	// KnownType reports whether a content type slug is registered. When nil,
	// relation targets are not checked.
	KnownType func(slug string) bool
}

type check func(path string, v any, out *[]Violation)

// Validator validates payloads against one compiled shape.
type Validator struct {
	root check
}

// Compile derives a validator from a shape. It is deterministic and keeps no
// state besides the compiled closures.
func Compile(root *Field, opts CompileOptions) (*Validator, error) {
	if err := checkStructure(root, ""); err != nil {
		return nil, err
	}
	c, err := compileField(root, "", opts)
	if err != nil {
		return nil, err
	}
	return &Validator{root: c}, nil
}

// Validate checks data and returns a *ValidationError listing every violation.
func (v *Validator) Validate(data map[string]any) error {
	var out []Violation
	var payload any = data
	if data == nil {
		payload = map[string]any{}
	}
	v.root("", payload, &out)
	if len(out) > 0 {
		return &ValidationError{Violations: out}
	}
	return nil
}

func compileField(f *Field, path string, opts CompileOptions) (check, error) {
	if f.Relation != nil {
		if opts.KnownType != nil && !opts.KnownType(f.Relation.TargetType) {
			return nil, fmt.Errorf("%w: %q at %s", ErrUnknownTarget, f.Relation.TargetType, displayPath(path))
		}
		return compileRelation(f.Relation), nil
	}

	switch f.Type {
	case KindObject:
		return compileObject(f, path, opts)
	case KindArray:
		items, err := compileField(f.Items, path+"[]", opts)
		if err != nil {
			return nil, err
		}
		return compileArray(f, items), nil
	case KindString:
		return compileString(f), nil
	case KindNumber, KindInteger:
		return compileNumber(f), nil
	case KindBoolean:
		return func(path string, v any, out *[]Violation) {
			if _, ok := v.(bool); !ok {
				addViolation(out, path, "expected boolean, got %s", typeName(v))
			}
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q at %s", ErrMalformed, f.Type, displayPath(path))
}

func compileObject(f *Field, path string, opts CompileOptions) (check, error) {
	props := make(map[string]check, len(f.Properties))
	for name, prop := range f.Properties {
		c, err := compileField(prop, joinPath(path, name), opts)
		if err != nil {
			return nil, err
		}
		props[name] = c
	}
	required := append([]string(nil), f.Required...)

	return func(path string, v any, out *[]Violation) {
		obj, ok := v.(map[string]any)
		if !ok {
			addViolation(out, path, "expected object, got %s", typeName(v))
			return
		}
		for _, name := range required {
			if val, present := obj[name]; !present || val == nil {
				addViolation(out, joinPath(path, name), "required")
			}
		}
		for name, c := range props {
			val, present := obj[name]
			if !present || val == nil {
				continue
			}
			c(joinPath(path, name), val, out)
		}
	}, nil
}

func compileArray(f *Field, items check) check {
	minLen, maxLen := f.MinLength, f.MaxLength
	return func(path string, v any, out *[]Violation) {
		arr, ok := v.([]any)
		if !ok {
			addViolation(out, path, "expected array, got %s", typeName(v))
			return
		}
		if minLen != nil && len(arr) < *minLen {
			addViolation(out, path, "must contain at least %d items", *minLen)
		}
		if maxLen != nil && len(arr) > *maxLen {
			addViolation(out, path, "must contain at most %d items", *maxLen)
		}
		for i, el := range arr {
			items(fmt.Sprintf("%s[%d]", path, i), el, out)
		}
	}
}

func compileString(f *Field) check {
	minLen, maxLen := f.MinLength, f.MaxLength
	enum := append([]any(nil), f.Enum...)
	return func(path string, v any, out *[]Violation) {
		s, ok := v.(string)
		if !ok {
			addViolation(out, path, "expected string, got %s", typeName(v))
			return
		}
		n := utf8.RuneCountInString(s)
		if minLen != nil && n < *minLen {
			addViolation(out, path, "must be at least %d characters", *minLen)
		}
		if maxLen != nil && n > *maxLen {
			addViolation(out, path, "must be at most %d characters", *maxLen)
		}
		if len(enum) > 0 && !inEnum(enum, s) {
			addViolation(out, path, "must be one of %s", formatEnum(enum))
		}
	}
}

func compileNumber(f *Field) check {
	integer := f.Type == KindInteger
	minimum, maximum := f.Minimum, f.Maximum
	enum := append([]any(nil), f.Enum...)
	return func(path string, v any, out *[]Violation) {
		n, ok := toFloat(v)
		if !ok {
			addViolation(out, path, "expected %s, got %s", kindLabel(integer), typeName(v))
			return
		}
		if integer && !isIntegral(v, n) {
			addViolation(out, path, "expected integer, got %v", n)
			return
		}
		if minimum != nil && n < *minimum {
			addViolation(out, path, "must be >= %v", *minimum)
		}
		if maximum != nil && n > *maximum {
			addViolation(out, path, "must be <= %v", *maximum)
		}
		if len(enum) > 0 && !inEnum(enum, n) {
			addViolation(out, path, "must be one of %s", formatEnum(enum))
		}
	}
}

func compileRelation(r *Relation) check {
	ref := func(path string, v any, out *[]Violation) {
		obj, ok := v.(map[string]any)
		if !ok {
			addViolation(out, path, "expected reference object, got %s", typeName(v))
			return
		}
		id, ok := obj["id"].(string)
		if !ok || id == "" {
			addViolation(out, path, "reference must carry a string id")
		}
	}
	if !r.Type.IsMany() {
		return ref
	}
	return func(path string, v any, out *[]Violation) {
		arr, ok := v.([]any)
		if !ok {
			addViolation(out, path, "expected array of references, got %s", typeName(v))
			return
		}
		for i, el := range arr {
			ref(fmt.Sprintf("%s[%d]", path, i), el, out)
		}
	}
}

func addViolation(out *[]Violation, path, format string, args ...any) {
	*out = append(*out, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

func kindLabel(integer bool) string {
	if integer {
		return "integer"
	}
	return "number"
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// isIntegral checks json.Number text exactly since float64 loses the
// fractional part of large values.
func isIntegral(v any, n float64) bool {
	if jn, ok := v.(json.Number); ok {
		f, ok := new(big.Float).SetString(string(jn))
		return ok && f.IsInt()
	}
	return n == math.Trunc(n)
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if en, ok := toFloat(e); ok {
			if vn, ok := toFloat(v); ok && en == vn {
				return true
			}
			continue
		}
		if e == v {
			return true
		}
	}
	return false
}

func formatEnum(enum []any) string {
	parts := make([]string, len(enum))
	for i, e := range enum {
		parts[i] = fmt.Sprintf("%v", e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
