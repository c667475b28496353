package simplecms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms/schema"
)

// service implements the Service interface
type service struct {
	adapter  Adapter
	registry *Registry
	decls    []Declaration
	hooks    Hooks
	cache    TypeCache
	logger   *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithAdapter sets the backend store adapter
func WithAdapter(a Adapter) Option {
	return func(s *service) {
		s.adapter = a
	}
}

// WithContentTypes adds content type declarations. The service builds its
// own Registry from them unless WithRegistry is given.
func WithContentTypes(decls ...Declaration) Option {
	return func(s *service) {
		s.decls = append(s.decls, decls...)
	}
}

// WithRegistry sets a prebuilt registry.
func WithRegistry(r *Registry) Option {
	return func(s *service) {
		s.registry = r
	}
}

// WithHooks appends a hook bundle. It may be given more than once.
func WithHooks(h Hooks) Option {
	return func(s *service) {
		s.hooks = MergeHooks(s.hooks, h)
	}
}

// WithTypeCache sets the content type cache used by the service's registry.
func WithTypeCache(c TypeCache) Option {
	return func(s *service) {
		s.cache = c
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		s.logger = l
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{logger: slog.Default()}

	for _, option := range options {
		option(s)
	}

	if s.adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if s.registry != nil && len(s.decls) > 0 {
		return nil, fmt.Errorf("content types and a registry are mutually exclusive")
	}
	if s.registry == nil {
		opts := []RegistryOption{WithRegistryLogger(s.logger)}
		if s.cache != nil {
			opts = append(opts, WithRegistryCache(s.cache))
		}
		r, err := NewRegistry(s.adapter, s.decls, opts...)
		if err != nil {
			return nil, err
		}
		s.registry = r
	}

	return s, nil
}

func (s *service) hookContext(ctx context.Context, typeSlug string) HookContext {
	return newHookContext(ctx, typeSlug, s.registry.IsDeclared(typeSlug))
}

// fail reports err to the OnError hooks and returns it as a service error.
func (s *service) fail(hctx HookContext, op string, err error) error {
	err = asServiceError(op, err)
	s.hooks.executeOnError(hctx, op, err)
	return err
}

func (s *service) contentType(ctx context.Context, slug string) (*SerializedContentType, error) {
	if err := s.registry.EnsureSynced(ctx); err != nil {
		return nil, err
	}
	return s.registry.ContentTypeBySlug(ctx, slug)
}

// Content type operations

func (s *service) ListContentTypes(ctx context.Context) ([]*SerializedContentType, error) {
	if err := s.registry.EnsureSynced(ctx); err != nil {
		return nil, err
	}
	return s.registry.ContentTypes(ctx)
}

func (s *service) GetContentType(ctx context.Context, slug string) (*SerializedContentType, error) {
	return s.contentType(ctx, slug)
}

// Content item operations

func (s *service) ListItems(ctx context.Context, typeSlug string, req ListItemsRequest) (*ListItemsResult, error) {
	const op = "list_items"
	hctx := s.hookContext(ctx, typeSlug)

	sct, err := s.contentType(ctx, typeSlug)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}
	limit, offset, err := pageBounds(op, req.Limit, req.Offset)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}

	where := []Where{Eq("content_type_id", sct.ID.String())}
	if req.Slug != "" {
		where = append(where, Eq("slug", req.Slug))
	}
	q := FindManyQuery{
		Where:  where,
		Limit:  limit,
		Offset: offset,
		SortBy: &SortBy{Field: "created_at", Desc: true},
	}
	if req.IncludeContentType {
		q.Join = []Join{{Model: ModelContentType, LocalField: "content_type_id", ForeignField: "id", As: "content_type"}}
	}

	res, err := s.page(ctx, op, q)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}
	return res, nil
}

// page runs a count and a page query with the same predicates.
func (s *service) page(ctx context.Context, op string, q FindManyQuery) (*ListItemsResult, error) {
	total, err := s.adapter.Count(ctx, ModelContentItem, q.Where)
	if err != nil {
		return nil, internal(op, err)
	}
	recs, err := s.adapter.FindMany(ctx, ModelContentItem, q)
	if err != nil {
		return nil, internal(op, err)
	}

	items := make([]*Item, 0, len(recs))
	for _, rec := range recs {
		item, err := s.itemFromRecord(op, rec)
		if err != nil {
			return nil, err
		}
		if joined, ok := rec["content_type"].(Record); ok && joined != nil {
			ct, err := contentTypeFromRecord(joined)
			if err != nil {
				return nil, internal(op, err)
			}
			if item.ContentType, err = s.registry.Serialize(ct); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}
	return &ListItemsResult{Items: items, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

func pageBounds(op string, limit, offset int) (int, int, error) {
	if offset < 0 {
		return 0, 0, validationFailed(op, []schema.Violation{{Path: "offset", Message: "must be >= 0"}})
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, offset, nil
}

func (s *service) GetItem(ctx context.Context, typeSlug string, id uuid.UUID) (*Item, error) {
	const op = "get_item"
	hctx := s.hookContext(ctx, typeSlug)

	sct, err := s.contentType(ctx, typeSlug)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}
	item, err := s.loadOwned(ctx, op, sct, id)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}
	return item, nil
}

// loadOwned fetches an item that must belong to sct.
func (s *service) loadOwned(ctx context.Context, op string, sct *SerializedContentType, id uuid.UUID) (*Item, error) {
	rec, err := s.adapter.FindOne(ctx, ModelContentItem, []Where{
		Eq("id", id.String()),
		Eq("content_type_id", sct.ID.String()),
	})
	if err != nil {
		return nil, internal(op, err)
	}
	if rec == nil {
		return nil, notFound(op, "item %s not found in content type %q", id, sct.Slug)
	}
	return s.itemFromRecord(op, rec)
}

func (s *service) itemFromRecord(op string, rec Record) (*Item, error) {
	ci, err := contentItemFromRecord(rec)
	if err != nil {
		return nil, internal(op, err)
	}
	data, err := decodeData(ci.Data)
	if err != nil {
		return nil, internal(op, err)
	}
	return &Item{
		ID:            ci.ID,
		ContentTypeID: ci.ContentTypeID,
		Slug:          ci.Slug,
		Data:          data,
		AuthorID:      ci.AuthorID,
		CreatedAt:     ci.CreatedAt,
		UpdatedAt:     ci.UpdatedAt,
	}, nil
}

func (s *service) slugTaken(ctx context.Context, op string, sct *SerializedContentType, slug string) (bool, error) {
	rec, err := s.adapter.FindOne(ctx, ModelContentItem, []Where{
		Eq("content_type_id", sct.ID.String()),
		Eq("slug", slug),
	})
	if err != nil {
		return false, internal(op, err)
	}
	return rec != nil, nil
}

func (s *service) CreateItem(ctx context.Context, typeSlug string, req CreateItemRequest) (*Item, error) {
	const op = "create_item"
	hctx := s.hookContext(ctx, typeSlug)

	slug := NormalizeSlug(req.Slug)
	if slug == "" {
		return nil, s.fail(hctx, op, invalidSlug(op, req.Slug))
	}
	sct, err := s.contentType(ctx, typeSlug)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}
	item, err := s.create(ctx, sct, slug, req.Data, req.AuthorID)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}
	return item, nil
}

// create runs the full create path for an already normalized slug. Inline
// relation targets go through it too.
func (s *service) create(ctx context.Context, sct *SerializedContentType, slug string, data map[string]any, authorID string) (*Item, error) {
	const op = "create_item"
	hctx := s.hookContext(ctx, sct.Slug)

	v, err := s.registry.Validator(sct)
	if err != nil {
		return nil, err
	}
	data, err = s.resolveRelations(ctx, op, sct, cloneData(data))
	if err != nil {
		return nil, err
	}
	if err := v.Validate(data); err != nil {
		return nil, fromValidation(op, err)
	}
	if taken, err := s.slugTaken(ctx, op, sct, slug); err != nil {
		return nil, err
	} else if taken {
		return nil, conflict(op, "slug %q already exists in content type %q", slug, sct.Slug)
	}

	data, replaced, err := s.hooks.executeBeforeCreate(hctx, data)
	if err != nil {
		return nil, denied(op, err)
	}
	if replaced {
		if err := v.Validate(data); err != nil {
			return nil, fromValidation(op, err)
		}
	}
	targets, err := s.relationTargets(ctx, op, sct, data)
	if err != nil {
		return nil, err
	}
	encoded, err := encodeData(data)
	if err != nil {
		return nil, internal(op, err)
	}

	if authorID == "" {
		if c, ok := CallerFromContext(ctx); ok {
			authorID = c.UserID
		}
	}
	id := uuid.New()
	now := time.Now().UTC()
	rec := Record{
		"id":              id.String(),
		"content_type_id": sct.ID.String(),
		"slug":            slug,
		"data":            encoded,
		"author_id":       nullableString(authorID),
		"created_at":      now,
		"updated_at":      now,
	}

	var created Record
	err = s.adapter.Transaction(ctx, func(ctx context.Context, tx Adapter) error {
		var err error
		created, err = tx.Create(ctx, ModelContentItem, rec)
		if err != nil {
			if errors.Is(err, ErrUniqueViolation) {
				return conflict(op, "slug %q already exists in content type %q", slug, sct.Slug)
			}
			return err
		}
		return s.replaceEdges(ctx, tx, id, now, targets)
	})
	if err != nil {
		return nil, asServiceError(op, err)
	}

	item, err := s.itemFromRecord(op, created)
	if err != nil {
		return nil, err
	}
	s.hooks.executeAfterCreate(hctx, item, s.logger)
	return item, nil
}

func (s *service) UpdateItem(ctx context.Context, typeSlug string, id uuid.UUID, req UpdateItemRequest) (*Item, error) {
	const op = "update_item"
	hctx := s.hookContext(ctx, typeSlug)

	item, err := s.update(ctx, hctx, typeSlug, id, req)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}
	return item, nil
}

func (s *service) update(ctx context.Context, hctx HookContext, typeSlug string, id uuid.UUID, req UpdateItemRequest) (*Item, error) {
	const op = "update_item"

	sct, err := s.contentType(ctx, typeSlug)
	if err != nil {
		return nil, err
	}
	current, err := s.loadOwned(ctx, op, sct, id)
	if err != nil {
		return nil, err
	}

	newSlug := ""
	if req.Slug != nil {
		slug := NormalizeSlug(*req.Slug)
		if slug == "" {
			return nil, invalidSlug(op, *req.Slug)
		}
		if slug != current.Slug {
			if taken, err := s.slugTaken(ctx, op, sct, slug); err != nil {
				return nil, err
			} else if taken {
				return nil, conflict(op, "slug %q already exists in content type %q", slug, sct.Slug)
			}
			newSlug = slug
		}
	}

	v, err := s.registry.Validator(sct)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if req.Data != nil {
		data, err = s.resolveRelations(ctx, op, sct, cloneData(req.Data))
		if err != nil {
			return nil, err
		}
		if err := v.Validate(data); err != nil {
			return nil, fromValidation(op, err)
		}
	}

	data, replaced, err := s.hooks.executeBeforeUpdate(hctx, id, data)
	if err != nil {
		return nil, denied(op, err)
	}
	if replaced {
		if err := v.Validate(data); err != nil {
			return nil, fromValidation(op, err)
		}
	}

	now := time.Now().UTC()
	changes := Record{"updated_at": now}
	if newSlug != "" {
		changes["slug"] = newSlug
	}
	var targets map[string][]uuid.UUID
	if data != nil {
		if targets, err = s.relationTargets(ctx, op, sct, data); err != nil {
			return nil, err
		}
		encoded, err := encodeData(data)
		if err != nil {
			return nil, internal(op, err)
		}
		changes["data"] = encoded
	}

	var updated Record
	err = s.adapter.Transaction(ctx, func(ctx context.Context, tx Adapter) error {
		var err error
		updated, err = tx.Update(ctx, ModelContentItem, []Where{
			Eq("id", id.String()),
			Eq("content_type_id", sct.ID.String()),
		}, changes)
		if err != nil {
			if errors.Is(err, ErrUniqueViolation) {
				return conflict(op, "slug %q already exists in content type %q", newSlug, sct.Slug)
			}
			return err
		}
		if updated == nil {
			return notFound(op, "item %s not found in content type %q", id, sct.Slug)
		}
		if data == nil {
			return nil
		}
		return s.replaceEdges(ctx, tx, id, now, targets)
	})
	if err != nil {
		return nil, asServiceError(op, err)
	}

	item, err := s.itemFromRecord(op, updated)
	if err != nil {
		return nil, err
	}
	s.hooks.executeAfterUpdate(hctx, item, s.logger)
	return item, nil
}

func (s *service) DeleteItem(ctx context.Context, typeSlug string, id uuid.UUID) error {
	const op = "delete_item"
	hctx := s.hookContext(ctx, typeSlug)

	sct, err := s.contentType(ctx, typeSlug)
	if err != nil {
		return s.fail(hctx, op, err)
	}
	if _, err := s.loadOwned(ctx, op, sct, id); err != nil {
		return s.fail(hctx, op, err)
	}
	if err := s.hooks.executeBeforeDelete(hctx, id); err != nil {
		return s.fail(hctx, op, denied(op, err))
	}
	// Edges referencing the item are removed by the store's cascade.
	if err := s.adapter.Delete(ctx, ModelContentItem, []Where{
		Eq("id", id.String()),
		Eq("content_type_id", sct.ID.String()),
	}); err != nil {
		return s.fail(hctx, op, internal(op, err))
	}
	s.hooks.executeAfterDelete(hctx, id, s.logger)
	return nil
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
