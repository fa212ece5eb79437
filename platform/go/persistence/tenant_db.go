package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// txBeginner exposes the minimal pgx pool behaviour needed by TenantDB.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TenantDB wraps a pgx pool to execute queries within a tenant-specific
// search_path. Downstream code reads the ambient tenant Context to target
// the correct schema instead of naming schemas explicitly.
type TenantDB struct {
	pool         txBeginner
	sharedSchema string
}

type TenantDBConfig struct {
	Pool         *pgxpool.Pool
	SharedSchema string
}

func NewTenantDB(cfg TenantDBConfig) *TenantDB {
	if cfg.Pool == nil {
		panic("TenantDB requires pool")
	}

	sharedSchema := strings.TrimSpace(cfg.SharedSchema)
	if sharedSchema == "" {
		panic("TenantDB requires shared schema")
	}
	return &TenantDB{pool: cfg.Pool, sharedSchema: sharedSchema}
}

// WithShared executes fn inside a transaction scoped to the shared schema only.
func (db *TenantDB) WithShared(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := SetSearchPath(ctx, tx, db.sharedSchema); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// WithTenant executes fn inside a transaction with search_path set to the
// tenant schema followed by the shared schema. The tenant Context must be
// valid and carry a schema name.
func (db *TenantDB) WithTenant(ctx context.Context, tc tenantpkg.Context, fn func(tx pgx.Tx) error) error {
	if !tc.Valid() {
		return fmt.Errorf("tenant context is required")
	}
	if strings.TrimSpace(tc.SchemaName) == "" {
		return fmt.Errorf("tenant context is missing a schema name")
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := SetSearchPath(ctx, tx, tc.SchemaName, db.sharedSchema); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// WithCurrentTenant resolves the tenant Context from ctx and delegates to
// WithTenant.
func (db *TenantDB) WithCurrentTenant(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tc, ok := tenantpkg.Current(ctx)
	if !ok {
		return fmt.Errorf("no tenant context on ctx")
	}
	return db.WithTenant(ctx, tc, fn)
}
