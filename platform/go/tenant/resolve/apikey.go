package resolve

import (
	"context"
	"errors"
	"net/http"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// DefaultAPIKeyHeader carries the tenant API key.
const DefaultAPIKeyHeader = "X-Api-Key"

// APIKeyLookup is the slice of the control store the resolver needs.
type APIKeyLookup interface {
	GetByAPIKeyHash(ctx context.Context, hash string) (persistence.TenantRecord, error)
}

// APIKeyResolver hashes the presented key with the deployment salt and looks
// the tenant up in the control store. Only active tenants resolve; any other
// status is no opinion, so a suspended tenant's key behaves like an unknown
// one.
type APIKeyResolver struct {
	store  APIKeyLookup
	salt   string
	header string
}

// NewAPIKeyResolver wires the resolver. header defaults to DefaultAPIKeyHeader.
func NewAPIKeyResolver(store APIKeyLookup, salt, header string) *APIKeyResolver {
	if store == nil {
		panic("api key resolver requires control store")
	}
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyResolver{store: store, salt: salt, header: header}
}

func (a *APIKeyResolver) Name() string  { return "api-key" }
func (a *APIKeyResolver) Priority() int { return PriorityAPIKey }

func (a *APIKeyResolver) Resolve(ctx context.Context, r *http.Request) (tenantpkg.ID, error) {
	key := r.Header.Get(a.header)
	if key == "" {
		return tenantpkg.Nil, nil
	}

	rec, err := a.store.GetByAPIKeyHash(ctx, persistence.HashAPIKey(a.salt, key))
	if err != nil {
		if errors.Is(err, persistence.ErrControlRecordNotFound) {
			return tenantpkg.Nil, nil
		}
		return tenantpkg.Nil, err
	}

	if rec.Status != persistence.StatusActive {
		return tenantpkg.Nil, nil
	}
	// The slug is the naming identifier: schema names derive from it, so
	// downstream GenerateName lands on the tenant's actual schema.
	return tenantpkg.ParseID(rec.Slug), nil
}

var _ Resolver = (*APIKeyResolver)(nil)
