package simplecms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms/schema"
	"golang.org/x/sync/singleflight"
)

// Registry owns content type rows. It syncs caller declarations into storage
// once per instance and serves the stored types upgraded to the current
// representation.
type Registry struct {
	adapter Adapter
	decls   []Declaration
	known   map[string]bool
	cache   TypeCache
	logger  *slog.Logger

	group  singleflight.Group
	synced atomic.Bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryCache sets a read-through cache for serialized content types.
func WithRegistryCache(c TypeCache) RegistryOption {
	return func(r *Registry) {
		r.cache = c
	}
}

// WithRegistryLogger sets the logger used for cache failures and sync progress.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates a registry for the given declarations. Slugs must be
// non-empty, already normalized and unique; shapes must be structurally valid.
func NewRegistry(adapter Adapter, decls []Declaration, opts ...RegistryOption) (*Registry, error) {
	if adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	r := &Registry{
		adapter: adapter,
		decls:   make([]Declaration, 0, len(decls)),
		known:   make(map[string]bool, len(decls)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i, d := range decls {
		if d.Slug == "" {
			return nil, fmt.Errorf("declaration %d: slug is required", i)
		}
		if NormalizeSlug(d.Slug) != d.Slug {
			return nil, fmt.Errorf("declaration %q: slug is not normalized (want %q)", d.Slug, NormalizeSlug(d.Slug))
		}
		if r.known[d.Slug] {
			return nil, fmt.Errorf("declaration %q: duplicate slug", d.Slug)
		}
		if d.Name == "" {
			d.Name = d.Slug
		}
		if _, err := schema.Marshal(d.Shape); err != nil {
			return nil, fmt.Errorf("declaration %q: %w", d.Slug, err)
		}
		d.Shape = d.Shape.Clone()
		r.known[d.Slug] = true
		r.decls = append(r.decls, d)
	}
	return r, nil
}

// Declarations returns the declared slugs in declaration order.
func (r *Registry) Declarations() []string {
	out := make([]string, len(r.decls))
	for i, d := range r.decls {
		out[i] = d.Slug
	}
	return out
}

// IsDeclared reports whether slug names one of the registry's declarations.
func (r *Registry) IsDeclared(slug string) bool {
	return r.known[slug]
}

// EnsureSynced runs Sync at most once successfully for the life of r.
// Concurrent callers share one in-flight sync and observe its outcome. A
// failed sync leaves the gate open so the next call retries.
func (r *Registry) EnsureSynced(ctx context.Context) error {
	if r.synced.Load() {
		return nil
	}
	ch := r.group.DoChan("sync", func() (any, error) {
		if r.synced.Load() {
			return nil, nil
		}
		// Waiters share this run, so it must not die with the first caller.
		if err := r.Sync(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		r.synced.Store(true)
		return nil, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return &Error{Kind: KindInternal, Op: "sync", Message: "content type sync failed", Err: res.Err}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Synced reports whether a sync has completed successfully.
func (r *Registry) Synced() bool {
	return r.synced.Load()
}

// Sync writes every declaration to storage. Each declaration is attempted
// independently; failures are joined.
func (r *Registry) Sync(ctx context.Context) error {
	var errs []error
	for _, d := range r.decls {
		if err := r.syncOne(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("sync content type %q: %w", d.Slug, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) syncOne(ctx context.Context, d Declaration) error {
	raw, err := schema.Marshal(d.Shape)
	if err != nil {
		return err
	}
	bySlug := []Where{Eq("slug", d.Slug)}
	now := time.Now().UTC()

	existing, err := r.adapter.FindOne(ctx, ModelContentType, bySlug)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if existing != nil {
		rec, err := r.adapter.Update(ctx, ModelContentType, bySlug, Record{
			"name":           d.Name,
			"description":    nullableString(d.Description),
			"json_schema":    raw,
			"schema_version": schema.CurrentVersion,
			"field_config":   nil,
			"updated_at":     now,
		})
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		if rec != nil {
			r.refreshCache(ctx, rec)
			return nil
		}
		// Row vanished between lookup and update; fall through to create.
	}

	rec, err := r.adapter.Create(ctx, ModelContentType, Record{
		"id":             uuid.New().String(),
		"name":           d.Name,
		"slug":           d.Slug,
		"description":    nullableString(d.Description),
		"json_schema":    raw,
		"field_config":   nil,
		"schema_version": schema.CurrentVersion,
		"created_at":     now,
		"updated_at":     now,
	})
	if err != nil {
		if !errors.Is(err, ErrUniqueViolation) {
			return fmt.Errorf("create: %w", err)
		}
		// Another process created the row first.
		winner, findErr := r.adapter.FindOne(ctx, ModelContentType, bySlug)
		if findErr != nil {
			return fmt.Errorf("create: %w (re-check: %v)", err, findErr)
		}
		if winner == nil {
			return fmt.Errorf("create: %w", err)
		}
		r.logger.Debug("content type created concurrently", "slug", d.Slug)
		r.refreshCache(ctx, winner)
		return nil
	}
	r.refreshCache(ctx, rec)
	return nil
}

func (r *Registry) refreshCache(ctx context.Context, rec Record) {
	if r.cache == nil {
		return
	}
	ct, err := contentTypeFromRecord(rec)
	if err != nil {
		r.logger.Warn("content type cache refresh skipped", "err", err)
		return
	}
	sct, err := r.Serialize(ct)
	if err != nil {
		r.logger.Warn("content type cache refresh skipped", "slug", ct.Slug, "err", err)
		return
	}
	if err := r.cache.Set(ctx, sct); err != nil {
		r.logger.Warn("content type cache write failed", "slug", ct.Slug, "err", err)
	}
}

// ContentTypeBySlug returns the serialized content type with the given slug.
func (r *Registry) ContentTypeBySlug(ctx context.Context, slug string) (*SerializedContentType, error) {
	const op = "get_content_type"
	if r.cache != nil {
		sct, ok, err := r.cache.Get(ctx, slug)
		if err != nil {
			r.logger.Warn("content type cache read failed", "slug", slug, "err", err)
		} else if ok {
			return sct, nil
		}
	}

	rec, err := r.adapter.FindOne(ctx, ModelContentType, []Where{Eq("slug", slug)})
	if err != nil {
		return nil, internal(op, err)
	}
	if rec == nil {
		return nil, notFound(op, "content type %q not found", slug)
	}
	ct, err := contentTypeFromRecord(rec)
	if err != nil {
		return nil, internal(op, err)
	}
	sct, err := r.Serialize(ct)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, sct); err != nil {
			r.logger.Warn("content type cache write failed", "slug", slug, "err", err)
		}
	}
	return sct, nil
}

// ContentTypes returns every stored content type ordered by slug.
func (r *Registry) ContentTypes(ctx context.Context) ([]*SerializedContentType, error) {
	const op = "list_content_types"
	recs, err := r.adapter.FindMany(ctx, ModelContentType, FindManyQuery{SortBy: &SortBy{Field: "slug"}})
	if err != nil {
		return nil, internal(op, err)
	}
	out := make([]*SerializedContentType, 0, len(recs))
	for _, rec := range recs {
		ct, err := contentTypeFromRecord(rec)
		if err != nil {
			return nil, internal(op, err)
		}
		sct, err := r.Serialize(ct)
		if err != nil {
			return nil, err
		}
		out = append(out, sct)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Serialize parses a stored content type into its read view. Rows below the
// current representation version get their legacy field hints merged in;
// nothing is written back.
func (r *Registry) Serialize(ct *ContentType) (*SerializedContentType, error) {
	const op = "serialize_content_type"
	root, err := schema.Parse(ct.JSONSchema)
	if err != nil {
		return nil, internal(op, fmt.Errorf("content type %q: %w", ct.Slug, err))
	}
	if ct.SchemaVersion < schema.CurrentVersion {
		hints, err := schema.ParseHints(ct.FieldConfig)
		if err != nil {
			return nil, internal(op, fmt.Errorf("content type %q: %w", ct.Slug, err))
		}
		root = schema.MergeHints(root, hints)
	}
	return &SerializedContentType{
		ID:            ct.ID,
		Name:          ct.Name,
		Slug:          ct.Slug,
		Description:   ct.Description,
		Schema:        root,
		SchemaVersion: ct.SchemaVersion,
		CreatedAt:     ct.CreatedAt,
		UpdatedAt:     ct.UpdatedAt,
	}, nil
}

// Validator derives the payload validator for a content type. Relation
// targets must be declared on this registry.
func (r *Registry) Validator(sct *SerializedContentType) (*schema.Validator, error) {
	v, err := schema.Compile(sct.Schema, schema.CompileOptions{
		KnownType: func(slug string) bool {
			return r.known[slug] || slug == sct.Slug
		},
	})
	if err != nil {
		return nil, internal("validator", fmt.Errorf("content type %q: %w", sct.Slug, err))
	}
	return v, nil
}
