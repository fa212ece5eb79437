// Package strategy implements the schema-per-tenant isolation model: every
// tenant owns a dedicated Postgres schema whose full lifecycle (provision,
// archive, restore, delete, enumerate) is managed here.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

var (
	ErrTenantExists   = errors.New("tenant already exists")
	ErrTenantNotFound = errors.New("tenant not found")
)

// pgDuplicateSchema is the SQLSTATE Postgres raises when CREATE SCHEMA races
// a concurrent provision of the same name.
const pgDuplicateSchema = "42P06"

// SchemaDDL is the slice of schema management the strategy needs.
type SchemaDDL interface {
	Create(ctx context.Context, name string) error
	Drop(ctx context.Context, name string, cascade bool) error
	Rename(ctx context.Context, from, to string) error
	Exists(ctx context.Context, name string) (bool, error)
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
}

// SchemaStrategy provisions one Postgres schema per tenant. All names flow
// through the shared Namer so resolution and provisioning can never disagree
// on where a tenant's data lives.
type SchemaStrategy struct {
	ddl    SchemaDDL
	namer  *tenant.Namer
	logger *zap.Logger
	now    func() time.Time
}

func NewSchemaStrategy(ddl SchemaDDL, namer *tenant.Namer, logger *zap.Logger) *SchemaStrategy {
	if ddl == nil {
		panic("schema DDL is required")
	}
	if namer == nil {
		panic("namer is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &SchemaStrategy{ddl: ddl, namer: namer, logger: logger, now: time.Now}
}

// SchemaName reports the schema a tenant's data lives in without touching
// the database.
func (s *SchemaStrategy) SchemaName(id tenant.ID) (string, error) {
	return s.namer.GenerateName(id)
}

// Provision creates the tenant's schema. A concurrent create of the same
// schema loses the race inside Postgres and is reported as ErrTenantExists,
// the same answer a caller would get from an up-front existence check.
func (s *SchemaStrategy) Provision(ctx context.Context, id tenant.ID) (string, error) {
	schemaName, err := s.namer.GenerateName(id)
	if err != nil {
		return "", err
	}

	exists, err := s.ddl.Exists(ctx, schemaName)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("provision %q: %w", schemaName, ErrTenantExists)
	}

	s.logger.Info("provisioning tenant schema",
		zap.String("tenant_id", id.String()),
		zap.String("schema", schemaName),
	)
	if err := s.ddl.Create(ctx, schemaName); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateSchema {
			return "", fmt.Errorf("provision %q: %w", schemaName, ErrTenantExists)
		}
		return "", err
	}

	s.logger.Info("tenant schema provisioned", zap.String("schema", schemaName))
	return schemaName, nil
}

// Exists reports whether the tenant's live schema is present. An archived
// tenant does not count as existing.
func (s *SchemaStrategy) Exists(ctx context.Context, id tenant.ID) (bool, error) {
	schemaName, err := s.namer.GenerateName(id)
	if err != nil {
		return false, err
	}
	return s.ddl.Exists(ctx, schemaName)
}

// Archive renames the tenant's schema to its fixed archived name, taking it
// out of the resolvable namespace while keeping the data. Archiving an
// already archived tenant is rejected: the fixed archive slot is occupied
// and silently overwriting it would destroy the earlier snapshot.
func (s *SchemaStrategy) Archive(ctx context.Context, id tenant.ID) (string, error) {
	schemaName, err := s.namer.GenerateName(id)
	if err != nil {
		return "", err
	}
	archivedName, err := s.namer.ArchiveName(id)
	if err != nil {
		return "", err
	}

	exists, err := s.ddl.Exists(ctx, schemaName)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("archive %q: %w", schemaName, ErrTenantNotFound)
	}
	occupied, err := s.ddl.Exists(ctx, archivedName)
	if err != nil {
		return "", err
	}
	if occupied {
		return "", fmt.Errorf("archive %q: archived schema %q already exists: %w", schemaName, archivedName, ErrTenantExists)
	}

	if err := s.ddl.Rename(ctx, schemaName, archivedName); err != nil {
		return "", err
	}
	s.logger.Info("tenant schema archived",
		zap.String("schema", schemaName),
		zap.String("archived_as", archivedName),
	)
	return archivedName, nil
}

// Restore renames an archived schema back to its live name.
func (s *SchemaStrategy) Restore(ctx context.Context, id tenant.ID) (string, error) {
	schemaName, err := s.namer.GenerateName(id)
	if err != nil {
		return "", err
	}
	archivedName, err := s.namer.ArchiveName(id)
	if err != nil {
		return "", err
	}

	archived, err := s.ddl.Exists(ctx, archivedName)
	if err != nil {
		return "", err
	}
	if !archived {
		return "", fmt.Errorf("restore %q: %w", archivedName, ErrTenantNotFound)
	}
	live, err := s.ddl.Exists(ctx, schemaName)
	if err != nil {
		return "", err
	}
	if live {
		return "", fmt.Errorf("restore %q: live schema %q already exists: %w", archivedName, schemaName, ErrTenantExists)
	}

	if err := s.ddl.Rename(ctx, archivedName, schemaName); err != nil {
		return "", err
	}
	s.logger.Info("tenant schema restored", zap.String("schema", schemaName))
	return schemaName, nil
}

// Delete removes the tenant's schema. With hard=true the schema and all its
// objects are dropped. Otherwise it is soft-deleted: renamed to a
// timestamped archive name that never collides with the fixed Archive slot
// or with earlier soft deletes of the same tenant.
func (s *SchemaStrategy) Delete(ctx context.Context, id tenant.ID, hard bool) error {
	schemaName, err := s.namer.GenerateName(id)
	if err != nil {
		return err
	}

	exists, err := s.ddl.Exists(ctx, schemaName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("delete %q: %w", schemaName, ErrTenantNotFound)
	}

	if hard {
		if err := s.ddl.Drop(ctx, schemaName, true); err != nil {
			return err
		}
		s.logger.Info("tenant schema dropped", zap.String("schema", schemaName))
		return nil
	}

	deletedName, err := s.namer.SoftDeleteName(id, s.now().UTC())
	if err != nil {
		return err
	}
	if err := s.ddl.Rename(ctx, schemaName, deletedName); err != nil {
		return err
	}
	s.logger.Info("tenant schema soft-deleted",
		zap.String("schema", schemaName),
		zap.String("renamed_to", deletedName),
	)
	return nil
}

// Enumerate lists the identifiers of all live tenant schemas. Identifiers
// are recovered from schema names, so an identifier that was mangled by
// sanitization comes back in its sanitized form.
func (s *SchemaStrategy) Enumerate(ctx context.Context) ([]tenant.ID, error) {
	prefix := s.namer.Options().SchemaPrefix
	schemas, err := s.ddl.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	ids := make([]tenant.ID, 0, len(schemas))
	for _, schema := range schemas {
		ids = append(ids, tenant.ParseID(s.namer.ExtractIdentifier(schema)))
	}
	return ids, nil
}

// EnumerateSchemas lists the live tenant schema names themselves, which the
// migration runner consumes directly.
func (s *SchemaStrategy) EnumerateSchemas(ctx context.Context) ([]string, error) {
	return s.ddl.ListByPrefix(ctx, s.namer.Options().SchemaPrefix)
}
