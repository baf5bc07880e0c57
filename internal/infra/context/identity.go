package context

import (
	"context"

	"github.com/mkrupp/streamhub/internal/domain"
)

const contextKeyIdentity = contextKey("identity")

// IdentityFromContext extracts the authenticated caller from the context.
// Returns false for anonymous requests.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(contextKeyIdentity).(domain.Identity)

	return identity, ok && identity.UserID != ""
}

// UserIDFromContext is a shorthand for the caller's user ID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	identity, ok := IdentityFromContext(ctx)

	return identity.UserID, ok
}

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}
