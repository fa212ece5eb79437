package resolve

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// RouteValueResolver reads a chi URL parameter (e.g. /t/{tenant}/...).
type RouteValueResolver struct {
	// Param is the route parameter name; "tenant" when empty.
	Param string
}

func (rv RouteValueResolver) Name() string  { return "route-value" }
func (rv RouteValueResolver) Priority() int { return PriorityRouteValue }

func (rv RouteValueResolver) Resolve(_ context.Context, r *http.Request) (tenantpkg.ID, error) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return tenantpkg.Nil, nil
	}
	param := rv.Param
	if param == "" {
		param = "tenant"
	}
	return tenantpkg.ParseID(rctx.URLParam(param)), nil
}

// PathResolver takes the nth segment of the request path (zero-based).
type PathResolver struct {
	Segment int
}

func (p PathResolver) Name() string  { return "path" }
func (p PathResolver) Priority() int { return PriorityPath }

func (p PathResolver) Resolve(_ context.Context, r *http.Request) (tenantpkg.ID, error) {
	trimmed := strings.Trim(r.URL.Path, "/")
	if trimmed == "" {
		return tenantpkg.Nil, nil
	}
	segments := strings.Split(trimmed, "/")
	if p.Segment < 0 || p.Segment >= len(segments) {
		return tenantpkg.Nil, nil
	}
	return tenantpkg.ParseID(segments[p.Segment]), nil
}

// HeaderResolver reads the identifier from a request header.
type HeaderResolver struct {
	// Header defaults to "X-Tenant-Id".
	Header string
}

func (h HeaderResolver) Name() string  { return "header" }
func (h HeaderResolver) Priority() int { return PriorityHeader }

func (h HeaderResolver) Resolve(_ context.Context, r *http.Request) (tenantpkg.ID, error) {
	header := h.Header
	if header == "" {
		header = "X-Tenant-Id"
	}
	return tenantpkg.ParseID(r.Header.Get(header)), nil
}

// defaultIgnoredSubdomains are well-known non-tenant subdomains.
var defaultIgnoredSubdomains = []string{"www", "api", "admin", "app"}

// SubdomainResolver strips the configured base domain from the request host
// and treats the leading label as the tenant identifier.
type SubdomainResolver struct {
	// BaseDomain is required, e.g. "example.com".
	BaseDomain string
	// Ignored extends the well-known non-tenant subdomains.
	Ignored []string
}

func (s SubdomainResolver) Name() string  { return "subdomain" }
func (s SubdomainResolver) Priority() int { return PrioritySubdomain }

func (s SubdomainResolver) Resolve(_ context.Context, r *http.Request) (tenantpkg.ID, error) {
	if s.BaseDomain == "" {
		return tenantpkg.Nil, nil
	}

	host := normalizeHost(r.Host)
	suffix := "." + strings.ToLower(s.BaseDomain)
	if !strings.HasSuffix(host, suffix) {
		return tenantpkg.Nil, nil
	}

	sub := strings.TrimSuffix(host, suffix)
	// Multi-level subdomains take the leftmost label.
	if idx := strings.Index(sub, "."); idx >= 0 {
		sub = sub[:idx]
	}
	if sub == "" || s.ignored(sub) {
		return tenantpkg.Nil, nil
	}
	return tenantpkg.ParseID(sub), nil
}

func (s SubdomainResolver) ignored(sub string) bool {
	for _, known := range defaultIgnoredSubdomains {
		if sub == known {
			return true
		}
	}
	for _, extra := range s.Ignored {
		if strings.EqualFold(sub, extra) {
			return true
		}
	}
	return false
}

func normalizeHost(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if h, _, err := net.SplitHostPort(raw); err == nil {
		return strings.TrimSpace(h)
	}
	return raw
}

// QueryResolver reads the identifier from a query-string parameter. It is the
// least trusted source and runs last.
type QueryResolver struct {
	// Param defaults to "tenant".
	Param string
}

func (q QueryResolver) Name() string  { return "query" }
func (q QueryResolver) Priority() int { return PriorityQuery }

func (q QueryResolver) Resolve(_ context.Context, r *http.Request) (tenantpkg.ID, error) {
	param := q.Param
	if param == "" {
		param = "tenant"
	}
	return tenantpkg.ParseID(r.URL.Query().Get(param)), nil
}

var (
	_ Resolver = RouteValueResolver{}
	_ Resolver = PathResolver{}
	_ Resolver = HeaderResolver{}
	_ Resolver = SubdomainResolver{}
	_ Resolver = QueryResolver{}
)
