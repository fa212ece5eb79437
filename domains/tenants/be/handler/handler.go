// Package handler exposes the tenant lifecycle over HTTP for operators.
// These routes belong on an admin-only listener; they are not tenant-facing.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/strategy"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

type Handler struct {
	manager *service.Manager
	logger  *zap.Logger
}

func New(manager *service.Manager, logger *zap.Logger) *Handler {
	if manager == nil {
		panic("manager is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{manager: manager, logger: logger}
}

// Routes mounts the admin API under the provided router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tenants", h.listTenants)
	r.Post("/tenants", h.createTenant)
	r.Post("/tenants/{tenantID}/archive", h.archiveTenant)
	r.Post("/tenants/{tenantID}/restore", h.restoreTenant)
	r.Post("/tenants/{tenantID}/migrate", h.migrateTenant)
	r.Post("/tenants/migrate", h.migrateAll)
	r.Delete("/tenants/{tenantID}", h.deleteTenant)
}

type createTenantRequest struct {
	Slug   string `json:"slug"`
	APIKey string `json:"api_key,omitempty"`
}

type tenantResponse struct {
	TenantID   string    `json:"tenant_id"`
	Slug       string    `json:"slug,omitempty"`
	Status     string    `json:"status,omitempty"`
	SchemaName string    `json:"schema_name"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Slug == "" {
		writeError(w, http.StatusBadRequest, "slug is required")
		return
	}

	rec, err := h.manager.ProvisionWithRecord(r.Context(), service.CreateTenantRequest{
		Slug:   req.Slug,
		APIKey: req.APIKey,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tenantResponse{
		TenantID:   rec.TenantID.String(),
		Slug:       rec.Slug,
		Status:     string(rec.Status),
		SchemaName: rec.SchemaName,
		CreatedAt:  rec.CreatedAt,
	})
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	ids, err := h.manager.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": out})
}

func (h *Handler) archiveTenant(w http.ResponseWriter, r *http.Request) {
	id := tenant.ParseID(chi.URLParam(r, "tenantID"))
	archivedName, err := h.manager.Archive(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"archived_as": archivedName})
}

func (h *Handler) restoreTenant(w http.ResponseWriter, r *http.Request) {
	id := tenant.ParseID(chi.URLParam(r, "tenantID"))
	schemaName, err := h.manager.Restore(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"schema_name": schemaName})
}

func (h *Handler) migrateTenant(w http.ResponseWriter, r *http.Request) {
	id := tenant.ParseID(chi.URLParam(r, "tenantID"))
	if err := h.manager.MigrateTenant(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) migrateAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.MigrateAllTenants(r.Context())
	failed := make(map[string]string, len(result.Failed))
	for schema, ferr := range result.Failed {
		failed[schema] = ferr.Error()
	}
	body := map[string]any{
		"succeeded": result.Succeeded,
		"failed":    failed,
		"skipped":   result.Skipped,
	}
	if err != nil {
		logging.FromRequest(r, h.logger).Error("migrate all failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) deleteTenant(w http.ResponseWriter, r *http.Request) {
	id := tenant.ParseID(chi.URLParam(r, "tenantID"))
	hard := r.URL.Query().Get("hard") == "true"

	if err := h.manager.Delete(r.Context(), id, hard); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromRequest(r, h.logger)
	switch {
	case errors.Is(err, strategy.ErrTenantExists):
		writeError(w, http.StatusConflict, "tenant already exists")
	case errors.Is(err, persistence.ErrSlugConflict):
		writeError(w, http.StatusConflict, "slug already in use")
	case errors.Is(err, persistence.ErrInvalidSlug):
		writeError(w, http.StatusBadRequest, "invalid slug")
	case errors.Is(err, strategy.ErrTenantNotFound):
		writeError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, tenant.ErrInvalidSchemaName):
		writeError(w, http.StatusBadRequest, "invalid tenant identifier")
	default:
		logger.Error("tenant operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
