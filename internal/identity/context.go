package identity

import "context"

type ctxKey struct{}

// WithUser returns a context carrying the profile resolved for the request.
func WithUser(ctx context.Context, p Profile) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// UserFrom returns the profile resolved for the request, if any.
func UserFrom(ctx context.Context) (Profile, bool) {
	p, ok := ctx.Value(ctxKey{}).(Profile)
	return p, ok
}
