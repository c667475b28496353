package simplecms

import (
	"context"
	"net/http"
)

// Caller identifies who issued a request. The HTTP layer attaches it to the
// request context; hooks see it through HookContext.
type Caller struct {
	UserID  string
	Headers http.Header
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller attached to ctx, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
