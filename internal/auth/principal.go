package auth

import (
	"context"
	"slices"
)

// contextKey is unexported so only this package can read or write the
// principal stored in a request context.
type contextKey string

const principalKey contextKey = "principal"

// Principal is the identity making the current request. One instance is built
// per request and is never shared or mutated afterwards.
type Principal struct {
	ID       int64
	Username string
	Email    string
	Active   bool
	// Degraded is set when the principal was built from token claims alone
	// because the identity directory could not produce a record.
	Degraded bool
	roles    []string
}

// NewPrincipal builds a principal; roles are copied.
func NewPrincipal(id int64, username, email string, active bool, roles []string) *Principal {
	return &Principal{
		ID:       id,
		Username: username,
		Email:    email,
		Active:   active,
		roles:    slices.Clone(roles),
	}
}

// tokenOnlyPrincipal is the minimal principal asserted by the token itself.
func tokenOnlyPrincipal(c Claims) *Principal {
	p := NewPrincipal(c.UserID, c.Subject, "", true, c.roles)
	p.Degraded = true
	return p
}

// Roles returns a copy of the principal's roles.
func (p *Principal) Roles() []string {
	return slices.Clone(p.roles)
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	return slices.Contains(p.roles, role)
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, or (nil, false)
// for anonymous requests.
//
//	p, ok := auth.PrincipalFromContext(r.Context())
//	if !ok {
//	    // anonymous
//	}
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
