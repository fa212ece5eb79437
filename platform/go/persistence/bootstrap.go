package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
)

// BootstrapControlSchema creates the control schema (if missing) and applies
// the control-plane DDL in a single transaction, with search_path set to the
// control schema. SQL is embedded at build time so binaries stay
// self-contained. The helper is idempotent and intended for CLI bootstrap and
// tests.
func BootstrapControlSchema(ctx context.Context, pool *pgxpool.Pool, controlSchema string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap control schema: pool is required")
	}
	if controlSchema == "" {
		return fmt.Errorf("bootstrap control schema: control schema is required")
	}

	statements := splitStatements(sqlassets.ControlTenantsSQL)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{controlSchema}.Sanitize()); err != nil {
		return fmt.Errorf("create control schema: %w", err)
	}

	if err := SetSearchPath(ctx, tx, controlSchema); err != nil {
		return err
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func splitStatements(raw string) []string {
	parts := strings.Split(raw, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
