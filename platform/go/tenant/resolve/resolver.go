// Package resolve attributes inbound requests to tenants. A Pipeline orders
// pluggable resolvers by priority, tries each until one yields an identifier,
// optionally validates and caches the result, and publishes a resolution
// event for observers.
package resolve

import (
	"context"
	"errors"
	"net/http"

	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Default priorities for the built-in resolvers. Higher runs first; the more
// trusted the source, the higher the priority.
const (
	PriorityClaims     = 200
	PriorityAPIKey     = 175
	PriorityRouteValue = 150
	PriorityPath       = 125
	PriorityHeader     = 100
	PrioritySubdomain  = 50
	PriorityQuery      = 25
)

// ErrTenantNotResolved is returned by a Pipeline configured with
// NotFoundReject when no resolver yields a valid identifier. The HTTP
// boundary maps it to a 403-class rejection with a generic body.
var ErrTenantNotResolved = errors.New("tenant not resolved")

// Resolver extracts a tenant identifier from a request. Returning tenant.Nil
// with a nil error means "no opinion"; the pipeline moves on to the next
// resolver. Errors are logged and likewise treated as no opinion, so a single
// misbehaving resolver cannot abort the pipeline.
type Resolver interface {
	Name() string
	Priority() int
	Resolve(ctx context.Context, r *http.Request) (tenantpkg.ID, error)
}

// Validator checks that a resolved identifier corresponds to a real, usable
// tenant. Implementations are stateless; the pipeline caches results.
type Validator interface {
	Validate(ctx context.Context, id tenantpkg.ID) (bool, error)
}

// NotFoundBehavior selects what Resolve does when no resolver yields a valid
// identifier.
type NotFoundBehavior int

const (
	// NotFoundReject fails resolution with ErrTenantNotResolved.
	NotFoundReject NotFoundBehavior = iota
	// NotFoundNil returns an invalid (empty) tenant Context without error.
	NotFoundNil
	// NotFoundDefault falls back to the configured default identifier.
	NotFoundDefault
)
