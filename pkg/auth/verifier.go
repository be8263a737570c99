package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forge-health/forge-core/pkg/blacklist"
	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/fault"
)

const (
	// AccessTokenCookie takes precedence over the Authorization header.
	AccessTokenCookie = "access_token"

	RoleAdmin             = "admin"
	RoleComplianceOfficer = "compliance_officer"
)

// Claims are the recognized bearer token claims.
type Claims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Verifier validates signed bearer tokens and consults the revocation
// blacklist. The signing secret is loaded once at construction and cached
// for the life of the process.
type Verifier struct {
	secret    []byte
	blacklist blacklist.Store
	clock     clock.Clock
}

// NewVerifier creates a Verifier. A missing secret is fatal at startup.
func NewVerifier(secret string, bl blacklist.Store, c clock.Clock) (*Verifier, error) {
	if secret == "" {
		return nil, fault.ErrFatal
	}
	if c == nil {
		c = clock.Wall
	}
	return &Verifier{secret: []byte(secret), blacklist: bl, clock: c}, nil
}

// Verify parses the token, checks the HMAC-SHA-256 signature and expiry,
// consults the blacklist if a jti is present, and yields a Principal.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fault.Authenticationf("invalid token: %v", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fault.Authenticationf("invalid token")
	}

	if claims.ID != "" && v.blacklist != nil && v.blacklist.IsBlacklisted(ctx, claims.ID) {
		return nil, fault.Authenticationf("token revoked")
	}

	isAdmin := contains(claims.Roles, RoleAdmin)
	p := &Principal{
		Subject:             claims.Subject,
		Roles:               claims.Roles,
		Permissions:         claims.Permissions,
		TokenID:             claims.ID,
		IsAdmin:             isAdmin,
		IsComplianceOfficer: isAdmin || contains(claims.Roles, RoleComplianceOfficer),
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	return p, nil
}

// ExtractToken pulls the bearer token from a request: the access_token
// cookie wins over the Authorization header. Empty means unauthenticated,
// not an error.
func ExtractToken(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// MintToken issues a signed token. Used by the login flow and tests.
func (v *Verifier) MintToken(subject, jti string, roles, permissions []string, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles:       roles,
		Permissions: permissions,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
