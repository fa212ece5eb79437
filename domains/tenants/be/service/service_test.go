package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/strategy"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/events"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/migrate"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// fakeDDL mirrors the schema DDL surface against an in-memory set.
type fakeDDL struct {
	mu      sync.Mutex
	schemas map[string]bool
}

func newFakeDDL() *fakeDDL {
	return &fakeDDL{schemas: make(map[string]bool)}
}

func (f *fakeDDL) Create(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.schemas[name] {
		return errors.New("schema already exists")
	}
	f.schemas[name] = true
	return nil
}

func (f *fakeDDL) Drop(_ context.Context, name string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.schemas[name] {
		return errors.New("schema does not exist")
	}
	delete(f.schemas, name)
	return nil
}

func (f *fakeDDL) Rename(_ context.Context, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.schemas[from] || f.schemas[to] {
		return errors.New("rename conflict")
	}
	delete(f.schemas, from)
	f.schemas[to] = true
	return nil
}

func (f *fakeDDL) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schemas[name], nil
}

func (f *fakeDDL) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name := range f.schemas {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out, nil
}

type stubMigrator struct {
	mu       sync.Mutex
	migrated []string
	failFor  map[string]error
	// failErr, when set, fails every migration regardless of schema.
	failErr error
}

func newStubMigrator() *stubMigrator {
	return &stubMigrator{failFor: make(map[string]error)}
}

func (s *stubMigrator) MigrateOne(_ context.Context, schema string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	if err, ok := s.failFor[schema]; ok {
		return err
	}
	s.migrated = append(s.migrated, schema)
	return nil
}

func (s *stubMigrator) MigrateAll(ctx context.Context, schemas []string) (migrate.Result, error) {
	result := migrate.Result{Failed: make(map[string]error)}
	for _, schema := range schemas {
		if err := s.MigrateOne(ctx, schema); err != nil {
			result.Failed[schema] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, schema)
	}
	return result, nil
}

type stubSeeder struct {
	name     string
	priority int
	calls    *[]string
	err      error
}

func (s stubSeeder) Name() string     { return s.name }
func (s stubSeeder) Priority() int    { return s.priority }
func (s stubSeeder) Seed(_ context.Context, tc tenant.Context) error {
	if s.err != nil {
		return s.err
	}
	*s.calls = append(*s.calls, s.name+":"+tc.SchemaName)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) all() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]any, len(p.events))
	copy(out, p.events)
	return out
}

type managerFixture struct {
	manager  *Manager
	ddl      *fakeDDL
	migrator *stubMigrator
	store    *repo.MemoryControlStore
	events   *recordingPublisher
}

func newFixture(t *testing.T, seeders []Seeder) managerFixture {
	t.Helper()

	ddl := newFakeDDL()
	namer, err := tenant.NewNamer(tenant.NamerOptions{})
	require.NoError(t, err)
	st := strategy.NewSchemaStrategy(ddl, namer, zaptest.NewLogger(t))
	migrator := newStubMigrator()
	store := repo.NewMemoryControlStore()
	publisher := &recordingPublisher{}

	manager := NewManager(st, migrator, store, publisher, namer, seeders,
		Options{APIKeySalt: "pepper"}, zaptest.NewLogger(t))

	return managerFixture{manager: manager, ddl: ddl, migrator: migrator, store: store, events: publisher}
}

func TestProvisionMigratesAndPublishes(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	schema, err := fx.manager.Provision(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme", schema)
	assert.Equal(t, []string{"tenant_acme"}, fx.migrator.migrated)

	published := fx.events.all()
	require.Len(t, published, 1)
	created, ok := published[0].(events.TenantCreated)
	require.True(t, ok)
	assert.Equal(t, tenant.ID("acme"), created.TenantID)
}

func TestProvisionRunsSeedersInPriorityOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	seeders := []Seeder{
		stubSeeder{name: "catalog", priority: 20, calls: &calls},
		stubSeeder{name: "admin-user", priority: 10, calls: &calls},
	}
	fx := newFixture(t, seeders)

	_, err := fx.manager.Provision(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin-user:tenant_acme", "catalog:tenant_acme"}, calls)
}

func TestProvisionWithRecordActivates(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	rec, err := fx.manager.ProvisionWithRecord(context.Background(), CreateTenantRequest{
		Slug:   "ACME-Corp",
		APIKey: "super-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", rec.Slug)
	assert.Equal(t, persistence.StatusActive, rec.Status)
	require.NotNil(t, rec.APIKeyHash)
	assert.Equal(t, persistence.HashAPIKey("pepper", "super-secret"), *rec.APIKeyHash)
	assert.True(t, fx.ddl.schemas[rec.SchemaName])
}

func TestProvisionWithRecordCompensatesOnMigrationFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	boom := errors.New("migration exploded")
	fx.migrator.mu.Lock()
	fx.migrator.failErr = boom
	fx.migrator.mu.Unlock()

	_, err := fx.manager.ProvisionWithRecord(context.Background(), CreateTenantRequest{Slug: "acme"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// Compensation removed both the schema and the pending record.
	assert.Empty(t, fx.ddl.schemas)
	records, listErr := fx.store.List(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, records)

	// A retry with the same slug succeeds once the fault is gone.
	fx.migrator.mu.Lock()
	fx.migrator.failErr = nil
	fx.migrator.mu.Unlock()
	rec, err := fx.manager.ProvisionWithRecord(context.Background(), CreateTenantRequest{Slug: "acme"})
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusActive, rec.Status)
}

func TestProvisionWithRecordRejectsBadSlug(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	_, err := fx.manager.ProvisionWithRecord(context.Background(), CreateTenantRequest{Slug: "!!"})
	require.Error(t, err)
	assert.Empty(t, fx.ddl.schemas)
}

func TestArchiveAndRestoreLifecycle(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	_, err := fx.manager.Provision(ctx, "acme")
	require.NoError(t, err)

	archivedName, err := fx.manager.Archive(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "archived_tenant_acme", archivedName)

	exists, err := fx.manager.Exists(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = fx.manager.Restore(ctx, "acme")
	require.NoError(t, err)
	exists, err = fx.manager.Exists(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, exists)

	var archived, restored bool
	for _, e := range fx.events.all() {
		switch e.(type) {
		case events.TenantArchived:
			archived = true
		case events.TenantRestored:
			restored = true
		}
	}
	assert.True(t, archived)
	assert.True(t, restored)
}

func TestDeleteHardPublishesEvent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	_, err := fx.manager.Provision(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, fx.manager.Delete(ctx, "acme", true))

	assert.Empty(t, fx.ddl.schemas)
	var deleted *events.TenantDeleted
	for _, e := range fx.events.all() {
		if d, ok := e.(events.TenantDeleted); ok {
			deleted = &d
		}
	}
	require.NotNil(t, deleted)
	assert.True(t, deleted.Hard)
}

func TestDeleteSoftFlagsControlRecord(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	rec, err := fx.manager.ProvisionWithRecord(ctx, CreateTenantRequest{Slug: "acme"})
	require.NoError(t, err)

	id := tenant.IDFromUUID(rec.TenantID)
	require.NoError(t, fx.manager.Delete(ctx, id, false))

	got, err := fx.store.Get(ctx, rec.TenantID)
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusFlaggedForDelete, got.Status)

	// The schema is gone from the live namespace but kept under an archive name.
	exists, err := fx.manager.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NotEmpty(t, fx.ddl.schemas)
}

func TestMigrateAllTenants(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	_, err := fx.manager.Provision(ctx, "acme")
	require.NoError(t, err)
	_, err = fx.manager.Provision(ctx, "globex")
	require.NoError(t, err)

	result, err := fx.manager.MigrateAllTenants(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tenant_acme", "tenant_globex"}, result.Succeeded)
}

func TestReconcileStalePending(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	// Simulate a crash after the record and schema were created but before
	// activation.
	rec, err := fx.store.Create(ctx, persistence.TenantRecord{
		Slug:       "orphan",
		SchemaName: "tenant_orphan",
	})
	require.NoError(t, err)
	require.NoError(t, fx.ddl.Create(ctx, "tenant_orphan"))

	fx.manager.now = func() time.Time { return rec.CreatedAt.Add(2 * time.Hour) }
	cleaned, err := fx.manager.ReconcileStalePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, cleaned)
	assert.Empty(t, fx.ddl.schemas)

	_, err = fx.store.Get(ctx, rec.TenantID)
	assert.ErrorIs(t, err, persistence.ErrControlRecordNotFound)
}

func TestReconcileLeavesFreshPendingAlone(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	rec, err := fx.store.Create(ctx, persistence.TenantRecord{
		Slug:       "in-flight",
		SchemaName: "tenant_in_flight",
	})
	require.NoError(t, err)

	fx.manager.now = func() time.Time { return rec.CreatedAt.Add(time.Minute) }
	cleaned, err := fx.manager.ReconcileStalePending(ctx)
	require.NoError(t, err)
	assert.Empty(t, cleaned)

	_, err = fx.store.Get(ctx, rec.TenantID)
	require.NoError(t, err)
}
