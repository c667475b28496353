package simplecms

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Hook system allows extending item writes without modifying core code.
// Hooks run sequentially, in slice order, around the operation they guard.

// Hooks defines all available lifecycle hooks
type Hooks struct {
	BeforeCreate []BeforeCreateHook
	AfterCreate  []AfterCreateHook
	BeforeUpdate []BeforeUpdateHook
	AfterUpdate  []AfterUpdateHook
	BeforeDelete []BeforeDeleteHook
	AfterDelete  []AfterDeleteHook

	// Error hooks
	OnError []ErrorHook
}

// HookContext carries request information to hooks. It is passed by value.
type HookContext struct {
	Context  context.Context
	TypeSlug string
	// Declared is false when TypeSlug is not one of the service's declared
	// content types, e.g. an arbitrary path segment.
	Declared bool
	UserID   string
	Headers  map[string][]string
}

func newHookContext(ctx context.Context, typeSlug string, declared bool) HookContext {
	hctx := HookContext{Context: ctx, TypeSlug: typeSlug, Declared: declared}
	if c, ok := CallerFromContext(ctx); ok {
		hctx.UserID = c.UserID
		hctx.Headers = c.Headers.Clone()
	}
	return hctx
}

// BeforeCreateHook is called with the validated payload before an item is
// stored. It returns a replacement payload, or nil to keep the current one.
// Any error vetoes the create.
type BeforeCreateHook func(hctx HookContext, data map[string]any) (map[string]any, error)

// AfterCreateHook is called after an item is created. Errors are logged only.
type AfterCreateHook func(hctx HookContext, item *Item) error

// BeforeUpdateHook is called before an item is updated. data is nil when the
// update carries no payload.
type BeforeUpdateHook func(hctx HookContext, id uuid.UUID, data map[string]any) (map[string]any, error)

// AfterUpdateHook is called after an item is updated. Errors are logged only.
type AfterUpdateHook func(hctx HookContext, item *Item) error

// BeforeDeleteHook is called before an item is deleted. Any error vetoes.
type BeforeDeleteHook func(hctx HookContext, id uuid.UUID) error

// AfterDeleteHook is called after an item is deleted. Errors are logged only.
type AfterDeleteHook func(hctx HookContext, id uuid.UUID) error

// ErrorHook is called when an operation fails. It cannot alter the error.
type ErrorHook func(hctx HookContext, operation string, err error)

// MergeHooks concatenates hook bundles, preserving order.
func MergeHooks(bundles ...Hooks) Hooks {
	var out Hooks
	for _, h := range bundles {
		out.BeforeCreate = append(out.BeforeCreate, h.BeforeCreate...)
		out.AfterCreate = append(out.AfterCreate, h.AfterCreate...)
		out.BeforeUpdate = append(out.BeforeUpdate, h.BeforeUpdate...)
		out.AfterUpdate = append(out.AfterUpdate, h.AfterUpdate...)
		out.BeforeDelete = append(out.BeforeDelete, h.BeforeDelete...)
		out.AfterDelete = append(out.AfterDelete, h.AfterDelete...)
		out.OnError = append(out.OnError, h.OnError...)
	}
	return out
}

// Hook execution helpers

// executeBeforeCreate runs all BeforeCreate hooks. replaced reports whether
// any hook substituted the payload.
func (h *Hooks) executeBeforeCreate(hctx HookContext, data map[string]any) (out map[string]any, replaced bool, err error) {
	out = data
	for _, hook := range h.BeforeCreate {
		next, err := hook(hctx, out)
		if err != nil {
			return nil, false, err
		}
		if next != nil {
			out, replaced = next, true
		}
	}
	return out, replaced, nil
}

func (h *Hooks) executeBeforeUpdate(hctx HookContext, id uuid.UUID, data map[string]any) (out map[string]any, replaced bool, err error) {
	out = data
	for _, hook := range h.BeforeUpdate {
		next, err := hook(hctx, id, out)
		if err != nil {
			return nil, false, err
		}
		if next != nil {
			out, replaced = next, true
		}
	}
	return out, replaced, nil
}

func (h *Hooks) executeBeforeDelete(hctx HookContext, id uuid.UUID) error {
	for _, hook := range h.BeforeDelete {
		if err := hook(hctx, id); err != nil {
			return err
		}
	}
	return nil
}

// After hooks run to completion; failures are reported to the logger.

func (h *Hooks) executeAfterCreate(hctx HookContext, item *Item, logger *slog.Logger) {
	for _, hook := range h.AfterCreate {
		if err := hook(hctx, item); err != nil {
			logger.Warn("after-create hook failed", "type", hctx.TypeSlug, "id", item.ID, "err", err)
		}
	}
}

func (h *Hooks) executeAfterUpdate(hctx HookContext, item *Item, logger *slog.Logger) {
	for _, hook := range h.AfterUpdate {
		if err := hook(hctx, item); err != nil {
			logger.Warn("after-update hook failed", "type", hctx.TypeSlug, "id", item.ID, "err", err)
		}
	}
}

func (h *Hooks) executeAfterDelete(hctx HookContext, id uuid.UUID, logger *slog.Logger) {
	for _, hook := range h.AfterDelete {
		if err := hook(hctx, id); err != nil {
			logger.Warn("after-delete hook failed", "type", hctx.TypeSlug, "id", id, "err", err)
		}
	}
}

func (h *Hooks) executeOnError(hctx HookContext, operation string, err error) {
	for _, hook := range h.OnError {
		hook(hctx, operation, err)
	}
}

// Example hook implementations

// LoggingHooks returns a bundle that logs completed writes and failures.
func LoggingHooks(logger *slog.Logger) Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return Hooks{
		AfterCreate: []AfterCreateHook{
			func(hctx HookContext, item *Item) error {
				logger.InfoContext(hctx.Context, "content item created", "type", hctx.TypeSlug, "id", item.ID, "slug", item.Slug, "user", hctx.UserID)
				return nil
			},
		},
		AfterUpdate: []AfterUpdateHook{
			func(hctx HookContext, item *Item) error {
				logger.InfoContext(hctx.Context, "content item updated", "type", hctx.TypeSlug, "id", item.ID, "slug", item.Slug, "user", hctx.UserID)
				return nil
			},
		},
		AfterDelete: []AfterDeleteHook{
			func(hctx HookContext, id uuid.UUID) error {
				logger.InfoContext(hctx.Context, "content item deleted", "type", hctx.TypeSlug, "id", id, "user", hctx.UserID)
				return nil
			},
		},
		OnError: []ErrorHook{
			func(hctx HookContext, operation string, err error) {
				logger.ErrorContext(hctx.Context, "content operation failed", "op", operation, "type", hctx.TypeSlug, "kind", KindOf(err), "err", err)
			},
		},
	}
}
