package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Errors returned by control store implementations.
var (
	// ErrControlRecordNotFound is returned when no record matches the lookup.
	ErrControlRecordNotFound = errors.New("tenant control record not found")
	// ErrSlugConflict is returned when a slug is already taken.
	ErrSlugConflict = errors.New("tenant slug already exists")
	// ErrInvalidStatusTransition is returned for illegal status changes.
	ErrInvalidStatusTransition = errors.New("invalid tenant status transition")
)

// TenantStatus is the lifecycle state of a control record.
type TenantStatus string

const (
	StatusPending          TenantStatus = "pending"
	StatusActive           TenantStatus = "active"
	StatusSuspended        TenantStatus = "suspended"
	StatusDisabled         TenantStatus = "disabled"
	StatusFlaggedForDelete TenantStatus = "flagged_for_delete"
)

// legalTransitions: created as pending, activated after provisioning, moved
// to suspended/disabled administratively; deletion is explicit, not a status.
var legalTransitions = map[TenantStatus][]TenantStatus{
	StatusPending:          {StatusActive, StatusDisabled, StatusFlaggedForDelete},
	StatusActive:           {StatusSuspended, StatusDisabled, StatusFlaggedForDelete},
	StatusSuspended:        {StatusActive, StatusDisabled, StatusFlaggedForDelete},
	StatusDisabled:         {StatusActive, StatusFlaggedForDelete},
	StatusFlaggedForDelete: {},
}

// CanTransition reports whether moving from s to next is legal.
func (s TenantStatus) CanTransition(next TenantStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s TenantStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusDisabled, StatusFlaggedForDelete:
		return true
	}
	return false
}

// TenantRecord is the centralized metadata row for one tenant. The API key is
// never stored in plaintext; only its salted hash is persisted.
type TenantRecord struct {
	TenantID          uuid.UUID
	Slug              string
	Status            TenantStatus
	SchemaName        string
	DatabaseName      *string
	ServerName        *string
	UserName          *string
	EncryptedPassword *string
	APIKeyHash        *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ControlStore is CRUD plus the lookups the resolver pipeline needs.
type ControlStore interface {
	Create(ctx context.Context, rec TenantRecord) (TenantRecord, error)
	Get(ctx context.Context, id uuid.UUID) (TenantRecord, error)
	GetBySlug(ctx context.Context, slug string) (TenantRecord, error)
	// GetByAPIKeyHash matches the salted hash using a constant-structure
	// comparison rather than literal SQL equality, to resist timing probes.
	GetByAPIKeyHash(ctx context.Context, hash string) (TenantRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status TenantStatus) (TenantRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]TenantRecord, error)
	// ListPendingOlderThan supports the reconciliation sweep for pending
	// records orphaned by a crash between record creation and provisioning.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]TenantRecord, error)
}

const tenantRecordColumns = `tenant_id, slug, status, schema_name, database_name,
        server_name, user_name, encrypted_password, api_key_hash, created_at, updated_at`

// PostgresControlStore stores control records in a table inside the control
// schema (created by BootstrapControlSchema).
type PostgresControlStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresControlStore creates a store; assumes bootstrap already created
// the table in controlSchema.
func NewPostgresControlStore(pool *pgxpool.Pool, controlSchema string) (*PostgresControlStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if controlSchema == "" {
		return nil, errors.New("control schema is required")
	}
	return &PostgresControlStore{
		pool:  pool,
		table: pgx.Identifier{controlSchema, "tenants"}.Sanitize(),
	}, nil
}

// Create inserts the record. Slug uniqueness violations surface as
// ErrSlugConflict.
func (s *PostgresControlStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.TenantID == uuid.Nil {
		return TenantRecord{}, errors.New("tenant id is required")
	}
	if !rec.Status.Valid() {
		return TenantRecord{}, fmt.Errorf("unknown tenant status %q", rec.Status)
	}

	if _, err := s.GetBySlug(ctx, rec.Slug); err == nil {
		return TenantRecord{}, ErrSlugConflict
	} else if !errors.Is(err, ErrControlRecordNotFound) {
		return TenantRecord{}, err
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (
            tenant_id, slug, status, schema_name, database_name,
            server_name, user_name, encrypted_password, api_key_hash,
            created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
        RETURNING %s
    `, s.table, tenantRecordColumns)

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, query,
		rec.TenantID, rec.Slug, rec.Status, rec.SchemaName, rec.DatabaseName,
		rec.ServerName, rec.UserName, rec.EncryptedPassword, rec.APIKeyHash, now,
	)
	return scanControlRecord(row)
}

// Get fetches a record by id.
func (s *PostgresControlStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE tenant_id = $1", tenantRecordColumns, s.table)
	return scanControlRecord(s.pool.QueryRow(ctx, query, id))
}

// GetBySlug fetches a record by its unique slug.
func (s *PostgresControlStore) GetBySlug(ctx context.Context, slug string) (TenantRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE slug = $1", tenantRecordColumns, s.table)
	return scanControlRecord(s.pool.QueryRow(ctx, query, slug))
}

// GetByAPIKeyHash scans all keyed records and compares hashes in constant
// time in the application, so a SQL index lookup cannot leak match timing.
func (s *PostgresControlStore) GetByAPIKeyHash(ctx context.Context, hash string) (TenantRecord, error) {
	query := fmt.Sprintf("SELECT tenant_id, api_key_hash FROM %s WHERE api_key_hash IS NOT NULL", s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return TenantRecord{}, fmt.Errorf("list api key hashes: %w", err)
	}
	defer rows.Close()

	match := uuid.Nil
	for rows.Next() {
		var id uuid.UUID
		var candidate string
		if err := rows.Scan(&id, &candidate); err != nil {
			return TenantRecord{}, fmt.Errorf("scan api key hash: %w", err)
		}
		if SecureCompare(candidate, hash) && match == uuid.Nil {
			match = id
		}
	}
	if err := rows.Err(); err != nil {
		return TenantRecord{}, fmt.Errorf("list api key hashes: %w", err)
	}

	if match == uuid.Nil {
		return TenantRecord{}, ErrControlRecordNotFound
	}
	return s.Get(ctx, match)
}

// UpdateStatus applies a legal status transition.
func (s *PostgresControlStore) UpdateStatus(ctx context.Context, id uuid.UUID, status TenantStatus) (TenantRecord, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return TenantRecord{}, err
	}
	if !current.Status.CanTransition(status) {
		return TenantRecord{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, status)
	}

	query := fmt.Sprintf(`
        UPDATE %s SET status = $2, updated_at = $3 WHERE tenant_id = $1
        RETURNING %s
    `, s.table, tenantRecordColumns)
	return scanControlRecord(s.pool.QueryRow(ctx, query, id, status, time.Now().UTC()))
}

// Delete removes the record.
func (s *PostgresControlStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE tenant_id = $1", s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete control record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrControlRecordNotFound
	}
	return nil
}

// List returns all records ordered by creation time.
func (s *PostgresControlStore) List(ctx context.Context) ([]TenantRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at", tenantRecordColumns, s.table)
	return s.queryRecords(ctx, query)
}

// ListPendingOlderThan returns pending records created before cutoff.
func (s *PostgresControlStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]TenantRecord, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE status = $1 AND created_at < $2 ORDER BY created_at",
		tenantRecordColumns, s.table)
	return s.queryRecords(ctx, query, StatusPending, cutoff)
}

func (s *PostgresControlStore) queryRecords(ctx context.Context, query string, args ...any) ([]TenantRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TenantRecord
	for rows.Next() {
		rec, err := scanControlRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanControlRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	var status string
	err := row.Scan(
		&rec.TenantID, &rec.Slug, &status, &rec.SchemaName, &rec.DatabaseName,
		&rec.ServerName, &rec.UserName, &rec.EncryptedPassword, &rec.APIKeyHash,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrControlRecordNotFound
		}
		return TenantRecord{}, err
	}
	rec.Status = TenantStatus(status)
	return rec, nil
}

var _ ControlStore = (*PostgresControlStore)(nil)
