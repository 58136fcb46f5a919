package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the two-level authorization role carried by every principal.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// OriginFederated tags principals minted by the OIDC broker.
const OriginFederated = "oidc"

// ParseRole normalizes a stored or wire role. Empty input yields RoleUser so
// tokens minted before the role claim existed keep verifying.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(RoleUser):
		return RoleUser, nil
	case string(RoleAdmin):
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Principal is the verified identity derived from a session token.
//
// A Principal is immutable after construction. Every authenticated request
// rebuilds it from the bearer token; nothing about it is stored server-side.
type Principal struct {
	subject   string
	email     string
	origin    string
	role      Role
	expiresAt time.Time
}

// NewPrincipal builds a principal. The expiry is truncated to whole seconds
// because the wire format carries NumericDate precision.
func NewPrincipal(subject, email, origin string, role Role, expiresAt time.Time) Principal {
	if role == "" {
		role = RoleUser
	}
	return Principal{
		subject:   subject,
		email:     email,
		origin:    origin,
		role:      role,
		expiresAt: expiresAt.Truncate(time.Second).UTC(),
	}
}

// Subject is the display identifier (directory CN or federated display name).
func (p Principal) Subject() string { return p.subject }

// Email is the identity key used for role lookups and audit attribution.
func (p Principal) Email() string { return p.email }

// Origin is the directory DN, "static:<email>", or OriginFederated.
func (p Principal) Origin() string { return p.origin }

func (p Principal) Role() Role { return p.role }

func (p Principal) ExpiresAt() time.Time { return p.expiresAt }

// IsAdmin reports whether the principal holds the ADMIN role.
func (p Principal) IsAdmin() bool { return p.role == RoleAdmin }
