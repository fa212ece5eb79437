package resolve

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// DefaultTenantClaim is the JWT claim holding the tenant identifier.
const DefaultTenantClaim = "tenant_id"

// ClaimsResolver reads the tenant identifier from a bearer token claim. It is
// the most trusted source because the token was issued by the auth provider.
// Signature verification is the job of the auth middleware upstream; this
// resolver only extracts the claim and therefore parses without verifying.
type ClaimsResolver struct {
	// Claim is the claim key; DefaultTenantClaim when empty.
	Claim string
	// TenantPriority overrides the default priority when non-zero.
	TenantPriority int
}

func (c ClaimsResolver) Name() string { return "claims" }

func (c ClaimsResolver) Priority() int {
	if c.TenantPriority != 0 {
		return c.TenantPriority
	}
	return PriorityClaims
}

func (c ClaimsResolver) Resolve(_ context.Context, r *http.Request) (tenantpkg.ID, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return tenantpkg.Nil, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		// A malformed token is no opinion, not an error worth surfacing.
		return tenantpkg.Nil, nil
	}

	key := c.Claim
	if key == "" {
		key = DefaultTenantClaim
	}

	value, ok := claims[key]
	if !ok {
		return tenantpkg.Nil, nil
	}

	text, ok := value.(string)
	if !ok {
		text = fmt.Sprintf("%v", value)
	}
	return tenantpkg.ParseID(text), nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(authHeader[len(prefix):]), true
}

var _ Resolver = ClaimsResolver{}
