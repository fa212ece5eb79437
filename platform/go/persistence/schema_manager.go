package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaManager exposes raw schema DDL against a single PostgreSQL database.
// It is a pure capability: no naming policy, no lifecycle rules. Callers pass
// physical schema names; identifiers are sanitized via pgx.Identifier before
// interpolation into DDL.
type SchemaManager struct {
	pool *pgxpool.Pool
}

// NewSchemaManager wires the manager to a pool.
func NewSchemaManager(pool *pgxpool.Pool) *SchemaManager {
	if pool == nil {
		panic("schema manager requires pool")
	}
	return &SchemaManager{pool: pool}
}

// Create creates the schema. Creating an existing schema fails with the
// database's duplicate-schema error; the caller decides whether that is a
// conflict or a benign race.
func (m *SchemaManager) Create(ctx context.Context, name string) error {
	sql := fmt.Sprintf("CREATE SCHEMA %s", pgx.Identifier{name}.Sanitize())
	if _, err := m.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create schema %s: %w", name, err)
	}
	return nil
}

// Drop removes the schema; cascade drops all contained objects.
func (m *SchemaManager) Drop(ctx context.Context, name string, cascade bool) error {
	sql := fmt.Sprintf("DROP SCHEMA %s", pgx.Identifier{name}.Sanitize())
	if cascade {
		sql += " CASCADE"
	}
	if _, err := m.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("drop schema %s: %w", name, err)
	}
	return nil
}

// Rename changes the schema's name, carrying all contained objects with it.
func (m *SchemaManager) Rename(ctx context.Context, from, to string) error {
	sql := fmt.Sprintf("ALTER SCHEMA %s RENAME TO %s",
		pgx.Identifier{from}.Sanitize(), pgx.Identifier{to}.Sanitize())
	if _, err := m.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("rename schema %s to %s: %w", from, to, err)
	}
	return nil
}

// Exists reports whether the schema is present.
func (m *SchemaManager) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := m.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)",
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %s: %w", name, err)
	}
	return exists, nil
}

// ListByPrefix returns all schema names starting with prefix, sorted.
func (m *SchemaManager) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := m.pool.Query(ctx,
		"SELECT schema_name FROM information_schema.schemata WHERE schema_name LIKE $1 || '%' ORDER BY schema_name",
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list schemas by prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list schemas by prefix %s: %w", prefix, err)
	}
	return names, nil
}

// SetSearchPath scopes the transaction's search_path to the given schemas.
func SetSearchPath(ctx context.Context, tx pgx.Tx, schemas ...string) error {
	path := ""
	for i, s := range schemas {
		if i > 0 {
			path += ", "
		}
		path += s
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, path); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	return nil
}
