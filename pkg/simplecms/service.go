package simplecms

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-cms library
type Service interface {
	// Content type operations
	ListContentTypes(ctx context.Context) ([]*SerializedContentType, error)
	GetContentType(ctx context.Context, slug string) (*SerializedContentType, error)

	// Content item operations
	ListItems(ctx context.Context, typeSlug string, req ListItemsRequest) (*ListItemsResult, error)
	GetItem(ctx context.Context, typeSlug string, id uuid.UUID) (*Item, error)
	CreateItem(ctx context.Context, typeSlug string, req CreateItemRequest) (*Item, error)
	UpdateItem(ctx context.Context, typeSlug string, id uuid.UUID, req UpdateItemRequest) (*Item, error)
	DeleteItem(ctx context.Context, typeSlug string, id uuid.UUID) error

	// Relation operations
	GetPopulated(ctx context.Context, typeSlug string, id uuid.UUID) (*Item, error)
	GetByRelation(ctx context.Context, typeSlug string, req RelationLookupRequest) (*ListItemsResult, error)
}
