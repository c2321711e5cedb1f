// Package tenancy carries the authenticated caller through request context.
package tenancy

import (
	"context"

	"github.com/kailas-cloud/resdex/internal/domain/provider"
)

type ctxKey struct{}

// WithCaller returns a new context with the caller attached.
func WithCaller(ctx context.Context, c provider.Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// CallerFromContext returns the caller, or an anonymous caller if none is set.
func CallerFromContext(ctx context.Context) provider.Caller {
	c, ok := ctx.Value(ctxKey{}).(provider.Caller)
	if !ok {
		return provider.Anonymous()
	}
	return c
}

// ProviderUUID returns the caller's provider uuid, or "" for anonymous requests.
func ProviderUUID(ctx context.Context) string {
	return CallerFromContext(ctx).UUID()
}
