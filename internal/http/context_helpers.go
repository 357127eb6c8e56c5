package httpx

import (
	"context"

	"github.com/followscope/followscope/internal/core"
)

// identityKey is an unexported context key type to avoid collisions across packages.
type identityKey struct{}

// SetIdentityInContext returns a child context carrying the verified caller identity.
func SetIdentityInContext(ctx context.Context, ident core.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// IdentityFromContext returns the caller identity and whether one is present.
func IdentityFromContext(ctx context.Context) (core.Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(core.Identity)
	return ident, ok && ident.UserID != ""
}
