// Package service orchestrates tenant lifecycle: schema provisioning,
// migrations, seeding, control-plane records and the events that announce
// each transition.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/strategy"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/events"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/migrate"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// ErrControlStoreInconsistency flags a failure while compensating a partial
// provision: the control record and the physical schema may now disagree
// and need operator attention (or the reconciliation sweep).
var ErrControlStoreInconsistency = errors.New("control store may be inconsistent with physical schemas")

// Seeder populates a freshly migrated tenant schema with initial data.
// Seeders run in ascending Priority order.
type Seeder interface {
	Name() string
	Priority() int
	Seed(ctx context.Context, tc tenant.Context) error
}

// Migrator is the slice of the migration runner the manager needs.
type Migrator interface {
	MigrateOne(ctx context.Context, schema string) error
	MigrateAll(ctx context.Context, schemas []string) (migrate.Result, error)
}

// Options tunes the manager.
type Options struct {
	// APIKeySalt salts stored API key hashes. Required when control records
	// carry API keys.
	APIKeySalt string
	// StalePendingAfter is how old a pending control record must be before
	// ReconcileStalePending treats it as orphaned. Default 1 hour.
	StalePendingAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.StalePendingAfter <= 0 {
		o.StalePendingAfter = time.Hour
	}
	return o
}

// Manager is the single entry point for tenant lifecycle operations. The
// control store is optional: without one the manager operates purely on
// physical schemas.
type Manager struct {
	strategy *strategy.SchemaStrategy
	migrator Migrator
	store    persistence.ControlStore
	events   events.Publisher
	namer    *tenant.Namer
	seeders  []Seeder
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(
	st *strategy.SchemaStrategy,
	migrator Migrator,
	store persistence.ControlStore,
	publisher events.Publisher,
	namer *tenant.Namer,
	seeders []Seeder,
	opts Options,
	logger *zap.Logger,
) *Manager {
	if st == nil {
		panic("strategy is required")
	}
	if migrator == nil {
		panic("migrator is required")
	}
	if namer == nil {
		panic("namer is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	ordered := make([]Seeder, len(seeders))
	copy(ordered, seeders)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority() < ordered[j].Priority() })

	return &Manager{
		strategy: st,
		migrator: migrator,
		store:    store,
		events:   publisher,
		namer:    namer,
		seeders:  ordered,
		opts:     opts.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Provision creates, migrates and seeds a tenant schema without touching the
// control store. It is the path for deployments that do not run a control
// plane.
func (m *Manager) Provision(ctx context.Context, id tenant.ID) (string, error) {
	schemaName, err := m.strategy.Provision(ctx, id)
	if err != nil {
		return "", err
	}
	if err := m.migrator.MigrateOne(ctx, schemaName); err != nil {
		return "", fmt.Errorf("migrate new tenant %q: %w", schemaName, err)
	}
	if err := m.seed(ctx, id, schemaName); err != nil {
		return "", err
	}

	m.events.Publish(ctx, events.TenantCreated{
		TenantID:   id,
		SchemaName: schemaName,
		OccurredAt: m.now().UTC(),
	})
	return schemaName, nil
}

// CreateTenantRequest carries the inputs of a control-plane provision.
type CreateTenantRequest struct {
	Slug string
	// APIKey, when set, is hashed and stored for API-key resolution. The
	// plaintext is never persisted.
	APIKey string
}

// ProvisionWithRecord runs the two-phase provision: a pending control record
// is written first, then the schema is provisioned, migrated and seeded, and
// finally the record is activated. On failure the partial work is compensated
// so a retry with the same slug can succeed.
//
// The schema name derives from the slug, not the record's UUID, so request
// resolvers working from slugs (subdomain, header, API key) land on the same
// schema the provisioner created.
func (m *Manager) ProvisionWithRecord(ctx context.Context, req CreateTenantRequest) (persistence.TenantRecord, error) {
	if m.store == nil {
		return persistence.TenantRecord{}, errors.New("control store is not configured")
	}

	slug, err := persistence.NormalizeSlug(req.Slug)
	if err != nil {
		return persistence.TenantRecord{}, err
	}

	tenantID := uuid.New()
	id := tenant.ParseID(slug)
	schemaName, err := m.namer.GenerateName(id)
	if err != nil {
		return persistence.TenantRecord{}, err
	}

	rec := persistence.TenantRecord{
		TenantID:   tenantID,
		Slug:       slug,
		Status:     persistence.StatusPending,
		SchemaName: schemaName,
	}
	if req.APIKey != "" {
		hash := persistence.HashAPIKey(m.opts.APIKeySalt, req.APIKey)
		rec.APIKeyHash = &hash
	}

	rec, err = m.store.Create(ctx, rec)
	if err != nil {
		return persistence.TenantRecord{}, err
	}

	if _, err := m.strategy.Provision(ctx, id); err != nil {
		return persistence.TenantRecord{}, m.compensate(ctx, rec, err)
	}
	if err := m.migrator.MigrateOne(ctx, schemaName); err != nil {
		return persistence.TenantRecord{}, m.compensate(ctx, rec, fmt.Errorf("migrate new tenant %q: %w", schemaName, err))
	}
	if err := m.seed(ctx, id, schemaName); err != nil {
		return persistence.TenantRecord{}, m.compensate(ctx, rec, err)
	}

	rec, err = m.store.UpdateStatus(ctx, rec.TenantID, persistence.StatusActive)
	if err != nil {
		return persistence.TenantRecord{}, m.compensate(ctx, rec, fmt.Errorf("activate tenant record: %w", err))
	}

	m.events.Publish(ctx, events.TenantCreated{
		TenantID:   id,
		SchemaName: schemaName,
		OccurredAt: m.now().UTC(),
	})
	m.logger.Info("tenant provisioned",
		zap.String("tenant_id", tenantID.String()),
		zap.String("slug", slug),
		zap.String("schema", schemaName),
	)
	return rec, nil
}

// compensate undoes the partial work of a failed provision: drop the schema
// if it was created, then remove the pending record. The original cause is
// always returned; compensation failures are attached so the caller knows
// state may be inconsistent.
func (m *Manager) compensate(ctx context.Context, rec persistence.TenantRecord, cause error) error {
	id := tenant.ParseID(m.namer.ExtractIdentifier(rec.SchemaName))

	if err := m.strategy.Delete(ctx, id, true); err != nil && !errors.Is(err, strategy.ErrTenantNotFound) {
		m.logger.Error("compensating schema drop failed",
			zap.String("schema", rec.SchemaName),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w (while compensating: %w)", ErrControlStoreInconsistency, cause, err)
	}
	if err := m.store.Delete(ctx, rec.TenantID); err != nil && !errors.Is(err, persistence.ErrControlRecordNotFound) {
		m.logger.Error("compensating record delete failed",
			zap.String("tenant_id", rec.TenantID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w (while compensating: %w)", ErrControlStoreInconsistency, cause, err)
	}
	return cause
}

func (m *Manager) seed(ctx context.Context, id tenant.ID, schemaName string) error {
	if len(m.seeders) == 0 {
		return nil
	}
	tc := tenant.NewContext(id, schemaName, nil)
	for _, seeder := range m.seeders {
		if err := seeder.Seed(ctx, tc); err != nil {
			return fmt.Errorf("seed %q with %s: %w", schemaName, seeder.Name(), err)
		}
		m.logger.Debug("seeder completed",
			zap.String("seeder", seeder.Name()),
			zap.String("schema", schemaName),
		)
	}
	return nil
}

// Archive takes the tenant's schema out of the resolvable namespace and, when
// a control record exists, suspends it.
func (m *Manager) Archive(ctx context.Context, raw tenant.ID) (string, error) {
	ref, err := m.resolveRef(ctx, raw)
	if err != nil {
		return "", err
	}

	archivedName, err := m.strategy.Archive(ctx, ref.id)
	if err != nil {
		return "", err
	}
	if ref.rec != nil {
		if _, err := m.store.UpdateStatus(ctx, ref.rec.TenantID, persistence.StatusSuspended); err != nil {
			return "", err
		}
	}

	schemaName, _ := m.namer.GenerateName(ref.id)
	m.events.Publish(ctx, events.TenantArchived{
		TenantID:     ref.id,
		SchemaName:   schemaName,
		ArchivedName: archivedName,
		OccurredAt:   m.now().UTC(),
	})
	return archivedName, nil
}

// Restore brings an archived tenant back online.
func (m *Manager) Restore(ctx context.Context, raw tenant.ID) (string, error) {
	ref, err := m.resolveRef(ctx, raw)
	if err != nil {
		return "", err
	}

	schemaName, err := m.strategy.Restore(ctx, ref.id)
	if err != nil {
		return "", err
	}
	if ref.rec != nil {
		if _, err := m.store.UpdateStatus(ctx, ref.rec.TenantID, persistence.StatusActive); err != nil {
			return "", err
		}
	}

	m.events.Publish(ctx, events.TenantRestored{
		TenantID:   ref.id,
		SchemaName: schemaName,
		OccurredAt: m.now().UTC(),
	})
	return schemaName, nil
}

// Delete removes the tenant. Hard deletion drops the schema and the control
// record; soft deletion renames the schema to a timestamped archive and flags
// the record for deletion.
func (m *Manager) Delete(ctx context.Context, raw tenant.ID, hard bool) error {
	ref, err := m.resolveRef(ctx, raw)
	if err != nil {
		return err
	}
	schemaName, err := m.namer.GenerateName(ref.id)
	if err != nil {
		return err
	}

	if err := m.strategy.Delete(ctx, ref.id, hard); err != nil {
		return err
	}

	if ref.rec != nil {
		if hard {
			if err := m.store.Delete(ctx, ref.rec.TenantID); err != nil && !errors.Is(err, persistence.ErrControlRecordNotFound) {
				return err
			}
		} else {
			if _, err := m.store.UpdateStatus(ctx, ref.rec.TenantID, persistence.StatusFlaggedForDelete); err != nil &&
				!errors.Is(err, persistence.ErrControlRecordNotFound) {
				return err
			}
		}
	}

	m.events.Publish(ctx, events.TenantDeleted{
		TenantID:   ref.id,
		SchemaName: schemaName,
		Hard:       hard,
		OccurredAt: m.now().UTC(),
	})
	return nil
}

// Exists reports whether the tenant's live schema is present.
func (m *Manager) Exists(ctx context.Context, raw tenant.ID) (bool, error) {
	ref, err := m.resolveRef(ctx, raw)
	if err != nil {
		return false, err
	}
	return m.strategy.Exists(ctx, ref.id)
}

// List enumerates live tenant identifiers from the physical schemas.
func (m *Manager) List(ctx context.Context) ([]tenant.ID, error) {
	return m.strategy.Enumerate(ctx)
}

// MigrateTenant applies pending migrations to a single tenant.
func (m *Manager) MigrateTenant(ctx context.Context, raw tenant.ID) error {
	ref, err := m.resolveRef(ctx, raw)
	if err != nil {
		return err
	}
	schemaName, err := m.namer.GenerateName(ref.id)
	if err != nil {
		return err
	}
	return m.migrator.MigrateOne(ctx, schemaName)
}

// MigrateAllTenants applies pending migrations across every live tenant
// schema, subject to the runner's parallelism and containment options.
func (m *Manager) MigrateAllTenants(ctx context.Context) (migrate.Result, error) {
	schemas, err := m.strategy.EnumerateSchemas(ctx)
	if err != nil {
		return migrate.Result{}, err
	}
	return m.migrator.MigrateAll(ctx, schemas)
}

// ReconcileStalePending sweeps pending control records older than the
// configured threshold, left behind when a provision crashed between record
// creation and activation. Each orphan's schema (if any) is dropped and the
// record removed. Returns the slugs cleaned up.
func (m *Manager) ReconcileStalePending(ctx context.Context) ([]string, error) {
	if m.store == nil {
		return nil, nil
	}

	cutoff := m.now().UTC().Add(-m.opts.StalePendingAfter)
	stale, err := m.store.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var cleaned []string
	for _, rec := range stale {
		id := tenant.ParseID(m.namer.ExtractIdentifier(rec.SchemaName))
		if err := m.strategy.Delete(ctx, id, true); err != nil && !errors.Is(err, strategy.ErrTenantNotFound) {
			m.logger.Error("reconcile: drop orphaned schema failed",
				zap.String("schema", rec.SchemaName),
				zap.Error(err),
			)
			continue
		}
		if err := m.store.Delete(ctx, rec.TenantID); err != nil && !errors.Is(err, persistence.ErrControlRecordNotFound) {
			m.logger.Error("reconcile: delete orphaned record failed",
				zap.String("tenant_id", rec.TenantID.String()),
				zap.Error(err),
			)
			continue
		}
		m.logger.Warn("reconciled stale pending tenant",
			zap.String("slug", rec.Slug),
			zap.String("schema", rec.SchemaName),
		)
		cleaned = append(cleaned, rec.Slug)
	}
	return cleaned, nil
}

// tenantRef pairs the naming identifier (what schema names derive from) with
// the control record, when one exists.
type tenantRef struct {
	id  tenant.ID
	rec *persistence.TenantRecord
}

// resolveRef accepts either a control-plane UUID or a slug-style identifier.
// For UUIDs the naming identifier is recovered from the record's schema name;
// identifiers without a record pass through unchanged.
func (m *Manager) resolveRef(ctx context.Context, raw tenant.ID) (tenantRef, error) {
	if m.store == nil {
		return tenantRef{id: raw}, nil
	}

	if u, err := raw.UUID(); err == nil {
		rec, err := m.store.Get(ctx, u)
		if err != nil {
			if errors.Is(err, persistence.ErrControlRecordNotFound) {
				return tenantRef{id: raw}, nil
			}
			return tenantRef{}, err
		}
		id := tenant.ParseID(m.namer.ExtractIdentifier(rec.SchemaName))
		return tenantRef{id: id, rec: &rec}, nil
	}

	rec, err := m.store.GetBySlug(ctx, raw.String())
	if err != nil {
		if errors.Is(err, persistence.ErrControlRecordNotFound) {
			return tenantRef{id: raw}, nil
		}
		return tenantRef{}, err
	}
	return tenantRef{id: raw, rec: &rec}, nil
}
