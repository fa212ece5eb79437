package resolve

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cache"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/events"
	tenantpkg "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const (
	validationCachePrefix = "resolve:valid:"
	// ResolverProperty is the tenant Context property naming the resolver
	// that won.
	ResolverProperty = "resolver"
)

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	Namer  *tenantpkg.Namer
	Logger *zap.Logger
	// Validator is optional; when nil, resolved identifiers are trusted.
	Validator Validator
	// Cache stores validation results keyed by identifier. Optional; nil
	// disables caching. Status changes take effect only after the TTL
	// expires — an accepted staleness window.
	Cache cache.Cache
	// CacheTTL defaults to 5 minutes.
	CacheTTL time.Duration
	// Events receives a TenantResolved event on success. Optional.
	Events events.Publisher
	// NotFound selects the behavior when no resolver yields a valid
	// identifier.
	NotFound NotFoundBehavior
	// DefaultID is used with NotFoundDefault.
	DefaultID tenantpkg.ID
}

// Pipeline tries resolvers in descending priority order, ties broken by
// registration order.
type Pipeline struct {
	resolvers []Resolver
	cfg       PipelineConfig
}

// NewPipeline builds a Pipeline; resolvers are registered afterwards.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Namer == nil {
		panic("resolve pipeline requires namer")
	}
	if cfg.Logger == nil {
		panic("resolve pipeline requires logger")
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Pipeline{cfg: cfg}
}

// Register adds resolvers, keeping the list sorted by descending priority.
// Registration order breaks ties.
func (p *Pipeline) Register(resolvers ...Resolver) {
	p.resolvers = append(p.resolvers, resolvers...)
	sort.SliceStable(p.resolvers, func(i, j int) bool {
		return p.resolvers[i].Priority() > p.resolvers[j].Priority()
	})
}

// Resolve runs the pipeline for one request. On success the returned Context
// carries the identifier, its schema name and the winning resolver's name,
// and a TenantResolved event has been published. The caller installs the
// Context on the request context.
func (p *Pipeline) Resolve(ctx context.Context, r *http.Request) (tenantpkg.Context, error) {
	for _, resolver := range p.resolvers {
		id, err := p.tryResolver(ctx, resolver, r)
		if err != nil || id.IsNil() {
			continue
		}

		if !p.validate(ctx, resolver, id) {
			continue
		}

		schemaName, err := p.cfg.Namer.GenerateName(id)
		if err != nil {
			p.cfg.Logger.Warn("resolved identifier rejected by naming policy",
				zap.String("resolver", resolver.Name()),
				zap.String("tenant_id", id.String()),
				zap.Error(err),
			)
			continue
		}

		tc := tenantpkg.NewContext(id, schemaName, map[string]string{
			ResolverProperty: resolver.Name(),
		})

		p.cfg.Events.Publish(ctx, events.TenantResolved{
			TenantID:   id,
			SchemaName: schemaName,
			Resolver:   resolver.Name(),
			OccurredAt: time.Now().UTC(),
		})

		return tc, nil
	}

	return p.notFound()
}

func (p *Pipeline) tryResolver(ctx context.Context, resolver Resolver, r *http.Request) (id tenantpkg.ID, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.cfg.Logger.Warn("resolver panicked",
				zap.String("resolver", resolver.Name()),
				zap.Any("panic", rec),
			)
			id, err = tenantpkg.Nil, nil
		}
	}()

	id, err = resolver.Resolve(ctx, r)
	if err != nil {
		// A failing resolver has no opinion; it must not abort the pipeline.
		p.cfg.Logger.Warn("resolver failed",
			zap.String("resolver", resolver.Name()),
			zap.Error(err),
		)
		return tenantpkg.Nil, err
	}
	return id, nil
}

func (p *Pipeline) validate(ctx context.Context, resolver Resolver, id tenantpkg.ID) bool {
	if p.cfg.Validator == nil {
		return true
	}

	key := validationCachePrefix + id.String()
	if p.cfg.Cache != nil {
		if raw, ok, err := p.cfg.Cache.Get(ctx, key); err == nil && ok {
			return raw == "1"
		}
	}

	valid, err := p.cfg.Validator.Validate(ctx, id)
	if err != nil {
		// Validator failures are absorbed: the candidate is rejected and the
		// pipeline continues, but nothing is cached.
		p.cfg.Logger.Warn("tenant validation failed",
			zap.String("resolver", resolver.Name()),
			zap.String("tenant_id", id.String()),
			zap.Error(err),
		)
		return false
	}

	if p.cfg.Cache != nil {
		value := "0"
		if valid {
			value = "1"
		}
		_ = p.cfg.Cache.Set(ctx, key, value, p.cfg.CacheTTL)
	}

	return valid
}

func (p *Pipeline) notFound() (tenantpkg.Context, error) {
	switch p.cfg.NotFound {
	case NotFoundNil:
		return tenantpkg.Context{}, nil
	case NotFoundDefault:
		if p.cfg.DefaultID.IsNil() {
			return tenantpkg.Context{}, ErrTenantNotResolved
		}
		schemaName, err := p.cfg.Namer.GenerateName(p.cfg.DefaultID)
		if err != nil {
			return tenantpkg.Context{}, err
		}
		return tenantpkg.NewContext(p.cfg.DefaultID, schemaName, nil), nil
	default:
		return tenantpkg.Context{}, ErrTenantNotResolved
	}
}
