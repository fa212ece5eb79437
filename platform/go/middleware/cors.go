// Package middleware holds the HTTP middleware shared by the API listeners.
package middleware

import (
	"net/http"
	"strings"
)

// CORSOptions narrows the cross-origin policy. Zero values fall back to the
// permissive defaults used in development.
type CORSOptions struct {
	// AllowedOrigins lists the origins allowed to call the API. Empty means
	// any origin.
	AllowedOrigins []string
}

// CORS returns a middleware applying the given policy. The allowed headers
// include the tenant resolution headers so browser clients can send them on
// cross-origin requests.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		allowed[strings.ToLower(origin)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[strings.ToLower(origin)]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-Tenant-Id,X-Api-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DefaultCORS allows any origin. Production listeners should pass explicit
// origins to CORS instead.
func DefaultCORS() func(http.Handler) http.Handler {
	return CORS(CORSOptions{})
}
