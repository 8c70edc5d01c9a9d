package models

import (
	"context"
	"errors"
)

// RequestContext carries the authenticated caller's identity and tenant scope.
// Every service call takes one explicitly; nothing reads tenant state from globals.
type RequestContext struct {
	TenantID int64 `json:"tenant_id"`
	UserID   int64 `json:"user_id"`
}

type requestContextKey struct{}

var ErrNoRequestContext = errors.New("no request context")

// WithRequestContext attaches rc to ctx. Used by the auth middleware.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom extracts the caller identity set by the auth middleware.
func RequestContextFrom(ctx context.Context) (RequestContext, error) {
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	if !ok {
		return RequestContext{}, ErrNoRequestContext
	}
	return rc, nil
}
