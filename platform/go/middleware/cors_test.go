package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsHandler(mw func(http.Handler) http.Handler) http.Handler {
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestDefaultCORSAllowsAnyOrigin(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()

	corsHandler(DefaultCORS()).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Tenant-Id")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Api-Key")
}

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	t.Parallel()

	mw := CORS(CORSOptions{AllowedOrigins: []string{"https://app.example.com"}})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://APP.example.com")
	w := httptest.NewRecorder()
	corsHandler(mw).ServeHTTP(w, r)

	assert.Equal(t, "https://APP.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORSOmitsDisallowedOrigin(t *testing.T) {
	t.Parallel()

	mw := CORS(CORSOptions{AllowedOrigins: []string{"https://app.example.com"}})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example.net")
	w := httptest.NewRecorder()
	corsHandler(mw).ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSShortCircuitsPreflight(t *testing.T) {
	t.Parallel()

	var handlerRan bool
	mw := DefaultCORS()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
	}))

	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, handlerRan)
}
