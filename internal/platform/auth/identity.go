package auth

import (
	"context"
	"strings"
)

// Roles recognised on storefront ID tokens.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity is the authenticated principal resolved from a Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Roles []string
}

// HasRole reports whether the identity carries the given role, ignoring case.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normalizeRole(role)
	if role == "" {
		return false
	}
	for _, have := range i.Roles {
		if normalizeRole(have) == role {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity attaches the authenticated identity to the request context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
