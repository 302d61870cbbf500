package auth

import "context"

type contextKey struct{}

// WithProvider returns a copy of ctx carrying p.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the provider in ctx. Asking for it outside a provider's
// scope is a wiring mistake, so it panics instead of returning an error.
func FromContext(ctx context.Context) *Provider {
	p, ok := ctx.Value(contextKey{}).(*Provider)
	if !ok || p == nil {
		panic("auth: FromContext called outside of a provider scope; install middleware.AuthState")
	}
	return p
}

// Lookup is the non-panicking variant of FromContext.
func Lookup(ctx context.Context) (*Provider, bool) {
	p, ok := ctx.Value(contextKey{}).(*Provider)
	return p, ok && p != nil
}
