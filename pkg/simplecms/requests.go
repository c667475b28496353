package simplecms

import "github.com/google/uuid"

// Request DTOs

// ListItemsRequest contains parameters for listing items of one content type.
// Limit defaults to DefaultListLimit and is capped at MaxListLimit.
type ListItemsRequest struct {
	Slug               string
	Limit              int
	Offset             int
	IncludeContentType bool
}

// CreateItemRequest contains parameters for creating an item. AuthorID
// defaults to the caller's user id.
type CreateItemRequest struct {
	Slug     string
	Data     map[string]any
	AuthorID string
}

// UpdateItemRequest contains parameters for updating an item. Nil fields are
// left untouched. Data, when set, must be the complete payload.
type UpdateItemRequest struct {
	Slug *string
	Data map[string]any
}

// RelationLookupRequest selects source items referencing TargetID through
// the relation field Field.
type RelationLookupRequest struct {
	Field    string
	TargetID uuid.UUID
	Limit    int
	Offset   int
}
