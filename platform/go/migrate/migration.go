package migrate

import (
	"fmt"
	"sort"
)

// Migration is a single versioned DDL step applied to one schema.
type Migration struct {
	// Version orders migrations and is recorded in the history table.
	Version int
	// Name is a human-readable label stored alongside the version.
	Name string
	// UpSQL holds one or more semicolon-separated statements.
	UpSQL string
}

// Source yields the ordered set of migrations for a schema owner.
type Source interface {
	Migrations() ([]Migration, error)
}

// StaticSource serves a fixed list of migrations, sorted by version.
// Duplicate versions are rejected so a misnumbered migration fails fast
// instead of silently shadowing another.
type StaticSource struct {
	migrations []Migration
}

func NewStaticSource(migrations ...Migration) *StaticSource {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &StaticSource{migrations: sorted}
}

func (s *StaticSource) Migrations() ([]Migration, error) {
	for i := 1; i < len(s.migrations); i++ {
		if s.migrations[i].Version == s.migrations[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", s.migrations[i].Version)
		}
	}
	return s.migrations, nil
}
