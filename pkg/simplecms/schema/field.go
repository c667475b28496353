package schema

// CurrentVersion is the schema representation version written by Marshal.
// Version 1 kept per-field presentation hints outside the representation;
// version 2 embeds them on each property.
const CurrentVersion = 2

// Kind is the structural type of a field.
type Kind string

const (
	KindObject  Kind = "object"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
)

// IsValid reports whether k is a known field kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindObject, KindString, KindNumber, KindInteger, KindBoolean, KindArray:
		return true
	}
	return false
}

// FieldTypeRelation marks a field whose value references items of another content type.
const FieldTypeRelation = "relation"

// RelationType is the cardinality of a relation field.
type RelationType string

const (
	RelationBelongsTo  RelationType = "belongsTo"
	RelationHasMany    RelationType = "hasMany"
	RelationManyToMany RelationType = "manyToMany"
)

// IsValid reports whether r is a known relation type.
func (r RelationType) IsValid() bool {
	switch r {
	case RelationBelongsTo, RelationHasMany, RelationManyToMany:
		return true
	}
	return false
}

// IsMany reports whether the relation holds an array of references.
func (r RelationType) IsMany() bool {
	return r == RelationHasMany || r == RelationManyToMany
}

// Relation configures a relation field.
type Relation struct {
	Type         RelationType `json:"type" yaml:"type"`
	TargetType   string       `json:"targetType" yaml:"targetType"`
	DisplayField string       `json:"displayField,omitempty" yaml:"displayField,omitempty"`
	Creatable    bool         `json:"creatable,omitempty" yaml:"creatable,omitempty"`
}

// Field describes one node of a content type shape. The root of a shape is a
// Field of kind object.
type Field struct {
	Type        Kind              `json:"type" yaml:"type"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []any             `json:"enum,omitempty" yaml:"enum,omitempty"`
	Minimum     *float64          `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum     *float64          `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	MinLength   *int              `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength   *int              `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Default     any               `json:"default,omitempty" yaml:"default,omitempty"`
	Items       *Field            `json:"items,omitempty" yaml:"items,omitempty"`
	Properties  map[string]*Field `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required    []string          `json:"required,omitempty" yaml:"required,omitempty"`

	// Presentation hints. Stored here from version 2 on.
	FieldType   string `json:"fieldType,omitempty" yaml:"fieldType,omitempty"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	HelpText    string `json:"helpText,omitempty" yaml:"helpText,omitempty"`

	Relation *Relation `json:"relation,omitempty" yaml:"relation,omitempty"`
}

// IsRelation reports whether f is a relation field.
func (f *Field) IsRelation() bool {
	return f != nil && f.Relation != nil
}

// RelationFields returns the relation-typed top-level properties of an object
// field, keyed by property name.
func (f *Field) RelationFields() map[string]*Field {
	out := make(map[string]*Field)
	if f == nil {
		return out
	}
	for name, prop := range f.Properties {
		if prop.IsRelation() {
			out[name] = prop
		}
	}
	return out
}

// IsRequired reports whether name is listed in f.Required.
func (f *Field) IsRequired(name string) bool {
	for _, r := range f.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of f.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	c := *f
	if f.Enum != nil {
		c.Enum = append([]any(nil), f.Enum...)
	}
	if f.Minimum != nil {
		v := *f.Minimum
		c.Minimum = &v
	}
	if f.Maximum != nil {
		v := *f.Maximum
		c.Maximum = &v
	}
	if f.MinLength != nil {
		v := *f.MinLength
		c.MinLength = &v
	}
	if f.MaxLength != nil {
		v := *f.MaxLength
		c.MaxLength = &v
	}
	c.Items = f.Items.Clone()
	if f.Properties != nil {
		c.Properties = make(map[string]*Field, len(f.Properties))
		for name, prop := range f.Properties {
			c.Properties[name] = prop.Clone()
		}
	}
	if f.Required != nil {
		c.Required = append([]string(nil), f.Required...)
	}
	if f.Relation != nil {
		r := *f.Relation
		c.Relation = &r
	}
	return &c
}

// Builder helpers

// Object returns an empty object field.
func Object() *Field {
	return &Field{Type: KindObject, Properties: map[string]*Field{}}
}

// String returns a string field.
func String() *Field { return &Field{Type: KindString} }

// Number returns a number field.
func Number() *Field { return &Field{Type: KindNumber} }

// Integer returns an integer field.
func Integer() *Field { return &Field{Type: KindInteger} }

// Boolean returns a boolean field.
func Boolean() *Field { return &Field{Type: KindBoolean} }

// Enum returns a string field restricted to values.
func Enum(values ...string) *Field {
	f := String()
	for _, v := range values {
		f.Enum = append(f.Enum, v)
	}
	return f
}

// Array returns an array field whose elements match items.
func Array(items *Field) *Field {
	return &Field{Type: KindArray, Items: items}
}

// BelongsTo returns a relation field referencing a single item of targetType.
func BelongsTo(targetType string) *Field {
	return &Field{
		Type:      KindObject,
		FieldType: FieldTypeRelation,
		Relation:  &Relation{Type: RelationBelongsTo, TargetType: targetType},
	}
}

// HasMany returns a relation field referencing many items of targetType.
func HasMany(targetType string) *Field {
	return &Field{
		Type:      KindArray,
		FieldType: FieldTypeRelation,
		Relation:  &Relation{Type: RelationHasMany, TargetType: targetType},
	}
}

// ManyToMany returns a many-to-many relation field to targetType.
func ManyToMany(targetType string) *Field {
	return &Field{
		Type:      KindArray,
		FieldType: FieldTypeRelation,
		Relation:  &Relation{Type: RelationManyToMany, TargetType: targetType},
	}
}

// Prop adds a property to an object field.
func (f *Field) Prop(name string, prop *Field, required bool) *Field {
	if f.Properties == nil {
		f.Properties = map[string]*Field{}
	}
	f.Properties[name] = prop
	if required && !f.IsRequired(name) {
		f.Required = append(f.Required, name)
	}
	return f
}

func (f *Field) WithDescription(d string) *Field { f.Description = d; return f }
func (f *Field) WithFieldType(t string) *Field    { f.FieldType = t; return f }
func (f *Field) WithLabel(l string) *Field        { f.Label = l; return f }
func (f *Field) WithPlaceholder(p string) *Field  { f.Placeholder = p; return f }
func (f *Field) WithHelpText(h string) *Field     { f.HelpText = h; return f }
func (f *Field) WithDefault(v any) *Field         { f.Default = v; return f }

func (f *Field) WithMinimum(v float64) *Field { f.Minimum = &v; return f }
func (f *Field) WithMaximum(v float64) *Field { f.Maximum = &v; return f }
func (f *Field) WithMinLength(n int) *Field   { f.MinLength = &n; return f }
func (f *Field) WithMaxLength(n int) *Field   { f.MaxLength = &n; return f }

// WithDisplayField sets the target field a UI shows for a relation.
func (f *Field) WithDisplayField(name string) *Field {
	if f.Relation != nil {
		f.Relation.DisplayField = name
	}
	return f
}

// Creatable allows inline creation of relation targets.
func (f *Field) Creatable() *Field {
	if f.Relation != nil {
		f.Relation.Creatable = true
	}
	return f
}
