package auth

import "context"

// Role is the coarse privilege level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole converts raw input into a Role.
func ParseRole(raw string) (Role, bool) {
	role := Role(raw)
	return role, role.Valid()
}

// Principal is the verified identity attached to a request. It is only produced by
// token verification or by a resolver that has checked a credential.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func principalOf(user User) Principal {
	return Principal{ID: user.ID, Role: user.Role}
}

// Decision is the outcome of an authorization check.
type Decision string

const (
	Allow               Decision = "allow"
	DenyUnauthenticated Decision = "unauthenticated"
	DenyForbidden       Decision = "forbidden"
)

// Authorize compares a principal against the role a route requires. A missing
// principal is always unauthenticated, never forbidden.
func Authorize(p *Principal, required Role) Decision {
	if p == nil || p.ID == "" {
		return DenyUnauthenticated
	}
	if required == RoleAdmin && p.Role != RoleAdmin {
		return DenyForbidden
	}
	return Allow
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by the authorization gate.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
