package auth

import (
	"slices"
	"time"
)

// Identity is the operator a token was issued to.
type Identity struct {
	// Subject is the sub claim.
	Subject string

	Roles []string

	// Claims holds every claim of the token.
	Claims map[string]any

	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasRole reports whether the identity carries role.
func (id *Identity) HasRole(role string) bool {
	return id != nil && slices.Contains(id.Roles, role)
}

// Expired reports whether the identity's token has expired at now. Tokens
// without an exp claim never expire.
func (id *Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}
