package simplecms

import (
	"context"
	"time"
)

// Record is one stored row, keyed by column name.
type Record map[string]any

// Operator is a where-clause comparison.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	// OpIn matches any element of a []any value.
	OpIn Operator = "in"
)

// Where is a single predicate. Predicates in a slice are AND-ed. An empty
// Operator means OpEq.
type Where struct {
	Field    string
	Value    any
	Operator Operator
}

// Eq is shorthand for an equality predicate.
func Eq(field string, value any) Where {
	return Where{Field: field, Value: value, Operator: OpEq}
}

// In is shorthand for a membership predicate.
func In(field string, values []any) Where {
	return Where{Field: field, Value: values, Operator: OpIn}
}

// SortBy orders FindMany results.
type SortBy struct {
	Field string
	Desc  bool
}

// Join attaches, under As, the Model record whose ForeignField equals the
// row's LocalField. A missing match attaches nil.
type Join struct {
	Model        string
	LocalField   string
	ForeignField string
	As           string
}

// FindManyQuery parameterizes Adapter.FindMany. Limit 0 means no limit.
type FindManyQuery struct {
	Where  []Where
	Limit  int
	Offset int
	SortBy *SortBy
	Join   []Join
}

// Adapter is the backend store contract the engine is built on.
type Adapter interface {
	// Create inserts data and returns the stored record. Unique constraint
	// failures wrap ErrUniqueViolation.
	Create(ctx context.Context, model string, data Record) (Record, error)

	// FindOne returns the first matching record, or nil when none matches.
	FindOne(ctx context.Context, model string, where []Where) (Record, error)

	// FindMany returns matching records.
	FindMany(ctx context.Context, model string, q FindManyQuery) ([]Record, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, model string, where []Where) (int, error)

	// Update applies update to the first matching record and returns it, or
	// nil when none matches.
	Update(ctx context.Context, model string, where []Where, update Record) (Record, error)

	// Delete removes every matching record.
	Delete(ctx context.Context, model string, where []Where) error

	// Transaction runs fn against an adapter whose writes commit together.
	// An error from fn rolls every write back.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Adapter) error) error
}

// TypeCache caches serialized content types by slug.
type TypeCache interface {
	Get(ctx context.Context, slug string) (*SerializedContentType, bool, error)
	Set(ctx context.Context, ct *SerializedContentType) error
	Delete(ctx context.Context, slug string) error
}

// Reference describes a column pointing at another model's id.
type Reference struct {
	Field   string
	Model   string
	Cascade bool
}

// ModelSchema describes one storage model for adapters that enforce
// constraints themselves.
type ModelSchema struct {
	Name       string
	Fields     []string
	Unique     [][]string
	References []Reference
}

// StorageModels returns the storage models the engine uses.
func StorageModels() []ModelSchema {
	return []ModelSchema{
		{
			Name:   ModelContentType,
			Fields: []string{"id", "name", "slug", "description", "json_schema", "field_config", "schema_version", "created_at", "updated_at"},
			Unique: [][]string{{"id"}, {"slug"}},
		},
		{
			Name:       ModelContentItem,
			Fields:     []string{"id", "content_type_id", "slug", "data", "author_id", "created_at", "updated_at"},
			Unique:     [][]string{{"id"}, {"content_type_id", "slug"}},
			References: []Reference{{Field: "content_type_id", Model: ModelContentType}},
		},
		{
			Name:   ModelContentRelation,
			Fields: []string{"id", "source_id", "target_id", "field_name", "created_at"},
			Unique: [][]string{{"id"}, {"source_id", "target_id", "field_name"}},
			References: []Reference{
				{Field: "source_id", Model: ModelContentItem, Cascade: true},
				{Field: "target_id", Model: ModelContentItem, Cascade: true},
			},
		},
	}
}

// Record accessors tolerate the value types different adapters produce.

func recordString(r Record, key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	case interface{ String() string }:
		return v.String()
	}
	return ""
}

func recordInt(r Record, key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func recordTime(r Record, key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}
