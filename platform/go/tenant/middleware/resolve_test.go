package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant/resolve"
)

func newPipeline(t *testing.T) *resolve.Pipeline {
	t.Helper()
	namer, err := tenantpkg.NewNamer(tenantpkg.NamerOptions{SchemaPrefix: "tenant_", ValidateNames: true})
	require.NoError(t, err)

	p := resolve.NewPipeline(resolve.PipelineConfig{
		Namer:    namer,
		Logger:   zaptest.NewLogger(t),
		NotFound: resolve.NotFoundReject,
	})
	p.Register(resolve.HeaderResolver{})
	return p
}

func TestRequireTenantInstallsContext(t *testing.T) {
	t.Parallel()

	var got tenantpkg.Context
	handler := RequireTenant(newPipeline(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := tenantpkg.Current(r.Context())
		require.True(t, ok)
		got = tc
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Tenant-Id", "acme")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, tenantpkg.ID("acme"), got.ID)
	require.Equal(t, "tenant_acme", got.SchemaName)
}

func TestRequireTenantTagsRequestLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	handler := RequireTenant(newPipeline(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.FromRequest(r, zaptest.NewLogger(t)).Info("unit of work")
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Tenant-Id", "acme")
	r = r.WithContext(logging.WithLogger(r.Context(), zap.New(core)))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	entries := logs.FilterMessage("unit of work").All()
	require.Len(t, entries, 1)
	require.Equal(t, "acme", entries[0].ContextMap()["tenant_id"])
}

func TestRequireTenantRejectsUnresolved(t *testing.T) {
	t.Parallel()

	handler := RequireTenant(newPipeline(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "forbidden\n", w.Body.String())
}

func TestOptionalTenantPassesThrough(t *testing.T) {
	t.Parallel()

	handler := OptionalTenant(newPipeline(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := tenantpkg.Current(r.Context())
		require.False(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}
