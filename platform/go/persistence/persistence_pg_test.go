package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

func TestSchemaManagerIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	pool := mustTestPool(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	manager := NewSchemaManager(pool)

	require.NoError(t, manager.Create(ctx, "tenant_acme"))

	exists, err := manager.Exists(ctx, "tenant_acme")
	require.NoError(t, err)
	require.True(t, exists)

	// Creating the same schema again is a real error, not an upsert.
	require.Error(t, manager.Create(ctx, "tenant_acme"))

	require.NoError(t, manager.Rename(ctx, "tenant_acme", "archived_tenant_acme"))
	exists, err = manager.Exists(ctx, "tenant_acme")
	require.NoError(t, err)
	require.False(t, exists)
	exists, err = manager.Exists(ctx, "archived_tenant_acme")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, manager.Create(ctx, "tenant_globex"))
	schemas, err := manager.ListByPrefix(ctx, "tenant_")
	require.NoError(t, err)
	require.Equal(t, []string{"tenant_globex"}, schemas)

	require.NoError(t, manager.Drop(ctx, "archived_tenant_acme", true))
	exists, err = manager.Exists(ctx, "archived_tenant_acme")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestControlStoreIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	pool := mustTestPool(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	require.NoError(t, BootstrapControlSchema(ctx, pool, "tenancy_control"))
	// Bootstrap is idempotent.
	require.NoError(t, BootstrapControlSchema(ctx, pool, "tenancy_control"))

	store, err := NewPostgresControlStore(pool, "tenancy_control")
	require.NoError(t, err)

	hash := HashAPIKey("pepper", "api-key-123")
	rec, err := store.Create(ctx, TenantRecord{
		TenantID:   uuid.New(),
		Slug:       "acme",
		Status:     StatusPending,
		SchemaName: "tenant_acme",
		APIKeyHash: &hash,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, rec.Status)
	require.False(t, rec.CreatedAt.IsZero())

	_, err = store.Create(ctx, TenantRecord{
		TenantID:   uuid.New(),
		Slug:       "acme",
		Status:     StatusPending,
		SchemaName: "tenant_acme_2",
	})
	require.ErrorIs(t, err, ErrSlugConflict)

	got, err := store.GetBySlug(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, rec.TenantID, got.TenantID)

	got, err = store.GetByAPIKeyHash(ctx, HashAPIKey("pepper", "api-key-123"))
	require.NoError(t, err)
	require.Equal(t, rec.TenantID, got.TenantID)

	_, err = store.GetByAPIKeyHash(ctx, HashAPIKey("pepper", "wrong"))
	require.ErrorIs(t, err, ErrControlRecordNotFound)

	got, err = store.UpdateStatus(ctx, rec.TenantID, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)

	_, err = store.UpdateStatus(ctx, rec.TenantID, StatusPending)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	orphans, err := store.ListPendingOlderThan(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, orphans, "active records are never reconciliation candidates")

	require.NoError(t, store.Delete(ctx, rec.TenantID))
	_, err = store.Get(ctx, rec.TenantID)
	require.ErrorIs(t, err, ErrControlRecordNotFound)
}

func TestTenantDBSearchPathIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	pool := mustTestPool(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	manager := NewSchemaManager(pool)
	require.NoError(t, manager.Create(ctx, "shared"))
	require.NoError(t, manager.Create(ctx, "tenant_acme"))
	require.NoError(t, manager.Create(ctx, "tenant_globex"))

	_, err := pool.Exec(ctx, `CREATE TABLE tenant_acme.notes (body TEXT)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `CREATE TABLE tenant_globex.notes (body TEXT)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO tenant_acme.notes VALUES ('from acme')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO tenant_globex.notes VALUES ('from globex')`)
	require.NoError(t, err)

	db := NewTenantDB(TenantDBConfig{Pool: pool, SharedSchema: "shared"})

	// Unqualified reads inside WithTenant only ever see the tenant's schema
	// (plus shared).
	var body string
	acme := tenant.NewContext("acme", "tenant_acme", nil)
	err = db.WithTenant(ctx, acme, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT body FROM notes`).Scan(&body)
	})
	require.NoError(t, err)
	require.Equal(t, "from acme", body)

	globex := tenant.NewContext("globex", "tenant_globex", nil)
	err = db.WithCurrentTenant(tenant.WithCurrent(ctx, globex), func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT body FROM notes`).Scan(&body)
	})
	require.NoError(t, err)
	require.Equal(t, "from globex", body)
}
