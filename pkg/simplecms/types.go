package simplecms

import (
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms/schema"
)

// Storage model names used with the Adapter.
const (
	ModelContentType     = "content_type"
	ModelContentItem     = "content_item"
	ModelContentRelation = "content_relation"
)

// Declaration is a caller-supplied content type definition, synced into
// storage by the Registry.
type Declaration struct {
	Name        string        `json:"name" yaml:"name"`
	Slug        string        `json:"slug" yaml:"slug"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Shape       *schema.Field `json:"schema" yaml:"schema"`
}

// ContentType is a stored content type row.
type ContentType struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description,omitempty"`
	JSONSchema    string    `json:"json_schema"`
	FieldConfig   string    `json:"field_config,omitempty"`
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SerializedContentType is the read view of a content type with its schema
// parsed and upgraded to the current representation version.
type SerializedContentType struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name"`
	Slug          string        `json:"slug"`
	Description   string        `json:"description,omitempty"`
	Schema        *schema.Field `json:"schema"`
	SchemaVersion int           `json:"schema_version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ContentItem is a stored content item row. Data holds the serialized payload.
type ContentItem struct {
	ID            uuid.UUID `json:"id"`
	ContentTypeID uuid.UUID `json:"content_type_id"`
	Slug          string    `json:"slug"`
	Data          string    `json:"data"`
	AuthorID      string    `json:"author_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Item is the read view of a content item.
type Item struct {
	ID            uuid.UUID                   `json:"id"`
	ContentTypeID uuid.UUID                   `json:"content_type_id"`
	Slug          string                      `json:"slug"`
	Data          map[string]any              `json:"data"`
	AuthorID      string                      `json:"author_id,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
	ContentType   *SerializedContentType      `json:"content_type,omitempty"`
	Relations     map[string][]*PopulatedItem `json:"_relations,omitempty"`
}

// PopulatedItem is a relation target attached under Item.Relations.
type PopulatedItem struct {
	ID            uuid.UUID      `json:"id"`
	ContentTypeID uuid.UUID      `json:"content_type_id"`
	Slug          string         `json:"slug"`
	Data          map[string]any `json:"data"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ContentRelation is a directed edge from a source item to a target item,
// scoped to the source field that declared it.
type ContentRelation struct {
	ID        uuid.UUID `json:"id"`
	SourceID  uuid.UUID `json:"source_id"`
	TargetID  uuid.UUID `json:"target_id"`
	FieldName string    `json:"field_name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListItemsResult is one page of items.
type ListItemsResult struct {
	Items  []*Item `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Pagination defaults.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)
