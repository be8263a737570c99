// Package auth verifies bearer credentials, manages MFA challenges and
// authenticated sessions, and enforces the account password policy.
package auth

import (
	"context"
	"errors"
	"time"
)

// Principal is the verified identity attached to a request. It lives for
// the duration of the request.
type Principal struct {
	Subject     string
	Roles       []string
	Permissions []string
	TokenID     string // jti, empty if the token carried none
	ExpiresAt   time.Time
	IssuedAt    time.Time

	IsAdmin             bool
	IsComplianceOfficer bool
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the token itself carried the permission.
// Policy checks still go through the access policy engine.
func (p *Principal) HasPermission(perm string) bool {
	for _, q := range p.Permissions {
		if q == perm {
			return true
		}
	}
	return false
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom retrieves the Principal from the context. A nil principal
// with nil error means the request was unauthenticated.
func PrincipalFrom(ctx context.Context) (*Principal, error) {
	v := ctx.Value(principalKey)
	if v == nil {
		return nil, nil
	}
	p, ok := v.(*Principal)
	if !ok {
		return nil, errors.New("malformed principal in context")
	}
	return p, nil
}
