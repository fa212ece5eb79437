// Package middleware wires the tenant resolver pipeline into HTTP routing.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant/resolve"
)

// RequireTenant resolves the tenant for every request and installs the tenant
// Context on the request context. Requests that cannot be attributed to a
// usable tenant are rejected with 403 and a generic body so internals never
// leak to the caller.
func RequireTenant(pipeline *resolve.Pipeline) func(http.Handler) http.Handler {
	if pipeline == nil {
		panic("tenant middleware: pipeline is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := pipeline.Resolve(r.Context(), r)
			if err != nil {
				if errors.Is(err, resolve.ErrTenantNotResolved) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if !tc.Valid() {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tc)))
		})
	}
}

// withTenant installs the tenant Context and, when a request-scoped logger
// is present, replaces it with one tagged by the tenant identifier so every
// downstream log line carries it.
func withTenant(ctx context.Context, tc tenantpkg.Context) context.Context {
	ctx = tenantpkg.WithCurrent(ctx, tc)
	if logger, ok := logging.FromContext(ctx); ok {
		ctx = logging.WithLogger(ctx, logger.With(zap.String("tenant_id", tc.ID.String())))
	}
	return ctx
}

// OptionalTenant resolves the tenant when possible but lets unresolved
// requests through without a tenant Context. Handlers decide what "no
// tenant" means for them.
func OptionalTenant(pipeline *resolve.Pipeline) func(http.Handler) http.Handler {
	if pipeline == nil {
		panic("tenant middleware: pipeline is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := pipeline.Resolve(r.Context(), r)
			if err == nil && tc.Valid() {
				r = r.WithContext(withTenant(r.Context(), tc))
			}
			next.ServeHTTP(w, r)
		})
	}
}
