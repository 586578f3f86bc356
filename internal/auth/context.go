package auth

import (
	"context"

	"github.com/openalways/openalways/internal/model"
)

// Authentication methods recorded on the request context.
const (
	MethodSession = "session"
	MethodAPIKey  = "api_key"
)

// Identity holds the authenticated principal for a request.
// It is injected into the request context by the auth middleware.
type Identity struct {
	User   *model.User
	Method string // MethodSession or MethodAPIKey
	KeyID  string // set only for api_key authentication
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const identityContextKey contextKey = "auth_identity"

// ContextWithIdentity adds the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the authenticated identity from the context.
// Returns nil if not present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}

// UserFromContext is a convenience function to get the authenticated user.
// Returns nil if not authenticated.
func UserFromContext(ctx context.Context) *model.User {
	id := IdentityFromContext(ctx)
	if id == nil {
		return nil
	}
	return id.User
}
