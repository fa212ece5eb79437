package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// Executor abstracts the database operations the runner needs so tests can
// exercise containment and retry behaviour without a live Postgres.
type Executor interface {
	SchemaExists(ctx context.Context, schema string) (bool, error)
	CreateSchema(ctx context.Context, schema string) error
	EnsureHistoryTable(ctx context.Context, schema, table string) error
	AppliedVersions(ctx context.Context, schema, table string) (map[int]bool, error)
	Apply(ctx context.Context, schema, table string, m Migration, useTx bool) error
}

// PGExecutor runs migrations against Postgres, scoping every operation to the
// target schema via a transaction-local search_path.
type PGExecutor struct {
	pool *pgxpool.Pool
}

func NewPGExecutor(pool *pgxpool.Pool) *PGExecutor {
	if pool == nil {
		panic("pgx pool is required")
	}
	return &PGExecutor{pool: pool}
}

func (e *PGExecutor) SchemaExists(ctx context.Context, schema string) (bool, error) {
	var exists bool
	err := e.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		schema,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %q: %w", schema, err)
	}
	return exists, nil
}

func (e *PGExecutor) CreateSchema(ctx context.Context, schema string) error {
	ident := pgx.Identifier{schema}.Sanitize()
	if _, err := e.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
		return fmt.Errorf("create schema %q: %w", schema, err)
	}
	return nil
}

func (e *PGExecutor) EnsureHistoryTable(ctx context.Context, schema, table string) error {
	ident := pgx.Identifier{schema, table}.Sanitize()
	_, err := e.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+ident+` (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("ensure history table in %q: %w", schema, err)
	}
	return nil
}

func (e *PGExecutor) AppliedVersions(ctx context.Context, schema, table string) (map[int]bool, error) {
	ident := pgx.Identifier{schema, table}.Sanitize()
	rows, err := e.pool.Query(ctx, `SELECT version FROM `+ident)
	if err != nil {
		return nil, fmt.Errorf("list applied versions in %q: %w", schema, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

// Apply executes a migration's statements and records it in the history
// table. With useTx the statements and the history insert commit atomically;
// without it each statement runs on its own, which some DDL (e.g.
// CREATE INDEX CONCURRENTLY) requires.
func (e *PGExecutor) Apply(ctx context.Context, schema, table string, m Migration, useTx bool) error {
	historyIdent := pgx.Identifier{schema, table}.Sanitize()
	statements := splitStatements(m.UpSQL)

	if useTx {
		tx, err := e.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := persistence.SetSearchPath(ctx, tx, schema); err != nil {
			return err
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %d (%s) to %q: %w", m.Version, m.Name, schema, err)
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+historyIdent+` (version, name) VALUES ($1, $2)`,
			m.Version, m.Name,
		); err != nil {
			return fmt.Errorf("record migration %d in %q: %w", m.Version, schema, err)
		}
		return tx.Commit(ctx)
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	// The session-level search_path must not travel back to the pool with
	// the connection, so reset it before every release.
	defer func() {
		if _, resetErr := conn.Exec(context.WithoutCancel(ctx), "RESET search_path"); resetErr != nil {
			_ = conn.Conn().Close(context.WithoutCancel(ctx))
		}
		conn.Release()
	}()

	schemaIdent := pgx.Identifier{schema}.Sanitize()
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schemaIdent)); err != nil {
		return fmt.Errorf("set search path: %w", err)
	}
	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d (%s) to %q: %w", m.Version, m.Name, schema, err)
		}
	}
	if _, err := conn.Exec(ctx,
		`INSERT INTO `+historyIdent+` (version, name) VALUES ($1, $2)`,
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record migration %d in %q: %w", m.Version, schema, err)
	}
	return nil
}

// splitStatements breaks multi-statement SQL on semicolons because pgx's
// extended protocol executes one statement per Exec.
func splitStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
