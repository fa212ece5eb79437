// Package events defines the immutable lifecycle facts published by the
// tenancy platform and a fan-out publisher that isolates subscriber failures.
package events

import (
	"time"

	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// TenantCreated is published after a tenant schema was provisioned, migrated
// and seeded.
type TenantCreated struct {
	TenantID   tenantpkg.ID
	SchemaName string
	OccurredAt time.Time
}

// TenantDeleted is published after a tenant schema was removed. Hard reports
// whether the schema was dropped (true) or soft-deleted via a timestamped
// archive rename (false).
type TenantDeleted struct {
	TenantID   tenantpkg.ID
	SchemaName string
	Hard       bool
	OccurredAt time.Time
}

// TenantArchived is published after a schema was renamed to its archived name.
type TenantArchived struct {
	TenantID     tenantpkg.ID
	SchemaName   string
	ArchivedName string
	OccurredAt   time.Time
}

// TenantRestored is published after an archived schema was renamed back.
type TenantRestored struct {
	TenantID   tenantpkg.ID
	SchemaName string
	OccurredAt time.Time
}

// MigrationApplied is published once per migration applied to a schema. It
// carries the schema name rather than a tenant identifier because the runner
// also migrates schemas no tenant owns (e.g. the shared schema); subscribers
// needing the tenant can map the name back through the Namer.
type MigrationApplied struct {
	SchemaName string
	Owner      string
	Version    int64
	Name       string
	OccurredAt time.Time
}

// TenantResolved is published when the resolver pipeline attributes a request
// to a tenant. Resolver names the winning resolver.
type TenantResolved struct {
	TenantID   tenantpkg.ID
	SchemaName string
	Resolver   string
	OccurredAt time.Time
}
