package resolve

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// SchemaChecker is the slice of the schema manager the validator needs.
type SchemaChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// ControlLookup is the slice of the control store the validator needs.
type ControlLookup interface {
	Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
	GetBySlug(ctx context.Context, slug string) (persistence.TenantRecord, error)
}

// SchemaValidator accepts an identifier when its schema exists and, if a
// control store is configured, the tenant's status is active. Both checks
// must pass. The validator holds no cache; the pipeline layer caches results
// with a TTL.
type SchemaValidator struct {
	schemas SchemaChecker
	namer   *tenantpkg.Namer
	control ControlLookup
}

// NewSchemaValidator builds the validator; control may be nil.
func NewSchemaValidator(schemas SchemaChecker, namer *tenantpkg.Namer, control ControlLookup) *SchemaValidator {
	if schemas == nil {
		panic("schema validator requires schema checker")
	}
	if namer == nil {
		panic("schema validator requires namer")
	}
	return &SchemaValidator{schemas: schemas, namer: namer, control: control}
}

func (v *SchemaValidator) Validate(ctx context.Context, id tenantpkg.ID) (bool, error) {
	schemaName, err := v.namer.GenerateName(id)
	if err != nil {
		return false, nil
	}

	exists, err := v.schemas.Exists(ctx, schemaName)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if v.control == nil {
		return true, nil
	}

	rec, err := v.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrControlRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.Status == persistence.StatusActive, nil
}

// lookup resolves the control record by UUID when the identifier converts,
// falling back to slug lookup for opaque identifiers.
func (v *SchemaValidator) lookup(ctx context.Context, id tenantpkg.ID) (persistence.TenantRecord, error) {
	if u, err := id.UUID(); err == nil {
		return v.control.Get(ctx, u)
	}
	return v.control.GetBySlug(ctx, id.String())
}

var _ Validator = (*SchemaValidator)(nil)
