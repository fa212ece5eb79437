package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
	tenantshandler "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/handler"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/strategy"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cache"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/events"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/migrate"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
	tenantmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant/middleware"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant/resolve"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	ControlSchema   string        `env:"CONTROL_SCHEMA" envDefault:"tenancy_control"`
	SchemaPrefix    string        `env:"SCHEMA_PREFIX" envDefault:"tenant_"`
	SharedSchema    string        `env:"SHARED_SCHEMA" envDefault:"shared"`
	APIKeySalt      string        `env:"API_KEY_SALT,required"`
	BaseDomain      string        `env:"BASE_DOMAIN"`
	RedisURL        string        `env:"REDIS_URL"`
	ResolveCacheTTL time.Duration `env:"RESOLVE_CACHE_TTL" envDefault:"5m"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	MaxParallelism  int           `env:"MIGRATE_MAX_PARALLELISM" envDefault:"4"`
}

func main() {
	ctx := context.Background()

	// Missing .env files are fine; real deployments use the environment.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "tenancy-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.BootstrapControlSchema(ctx, pool, cfg.ControlSchema); err != nil {
		logger.Fatal("bootstrap control schema", zap.Error(err))
	}

	namer, err := tenant.NewNamer(tenant.NamerOptions{
		SchemaPrefix:     cfg.SchemaPrefix,
		SharedSchemaName: cfg.SharedSchema,
		ValidateNames:    true,
	})
	if err != nil {
		logger.Fatal("init namer", zap.Error(err))
	}

	var resolveCache cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("init redis cache", zap.Error(err))
		}
		defer func() {
			_ = redisCache.Close()
		}()
		resolveCache = redisCache
	} else {
		resolveCache = cache.NewMemory()
	}

	var controlStore persistence.ControlStore
	pgStore, err := persistence.NewPostgresControlStore(pool, cfg.ControlSchema)
	if err != nil {
		logger.Fatal("init control store", zap.Error(err))
	}
	controlStore = persistence.NewCachedControlStore(pgStore, resolveCache, cfg.ResolveCacheTTL)

	publisher := events.NewFanout(logger)
	publisher.Subscribe(func(_ context.Context, event any) error {
		logger.Debug("tenancy event", zap.Any("event", event))
		return nil
	})

	schemaManager := persistence.NewSchemaManager(pool)
	schemaStrategy := strategy.NewSchemaStrategy(schemaManager, namer, logger)

	source := migrate.NewStaticSource(
		migrate.Migration{Version: 1, Name: "base", UpSQL: sqlassets.TenantBaseSQL},
		migrate.Migration{Version: 2, Name: "audit", UpSQL: sqlassets.TenantAuditSQL},
	)
	runner := migrate.NewRunner(
		migrate.NewPGExecutor(pool),
		source,
		migrate.Options{
			MaxParallelism:  cfg.MaxParallelism,
			OnFailure:       migrate.ContinueOthers,
			UseTransactions: true,
			Owner:           "tenant",
		},
		publisher,
		logger,
	)

	manager := tenantsservice.NewManager(
		schemaStrategy,
		runner,
		controlStore,
		publisher,
		namer,
		nil,
		tenantsservice.Options{APIKeySalt: cfg.APIKeySalt},
		logger,
	)

	if cfg.MigrateOnStart {
		result, err := manager.MigrateAllTenants(ctx)
		if err != nil {
			logger.Fatal("startup migrations failed",
				zap.Int("failed", len(result.Failed)),
				zap.Error(err),
			)
		}
		logger.Info("startup migrations complete",
			zap.Int("schemas", len(result.Succeeded)),
		)
		if cleaned, err := manager.ReconcileStalePending(ctx); err != nil {
			logger.Error("reconcile stale pending tenants", zap.Error(err))
		} else if len(cleaned) > 0 {
			logger.Warn("reconciled stale pending tenants", zap.Strings("slugs", cleaned))
		}
	}

	pipeline := resolve.NewPipeline(resolve.PipelineConfig{
		Namer:     namer,
		Logger:    logger,
		Validator: resolve.NewSchemaValidator(schemaManager, namer, controlStore),
		Cache:     resolveCache,
		CacheTTL:  cfg.ResolveCacheTTL,
		Events:    publisher,
		NotFound:  resolve.NotFoundReject,
	})
	pipeline.Register(
		resolve.ClaimsResolver{},
		resolve.NewAPIKeyResolver(controlStore, cfg.APIKeySalt, ""),
		resolve.HeaderResolver{},
		resolve.QueryResolver{},
	)
	if cfg.BaseDomain != "" {
		pipeline.Register(resolve.SubdomainResolver{BaseDomain: cfg.BaseDomain})
	}

	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{
		Pool:         pool,
		SharedSchema: cfg.SharedSchema,
	})

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	adminRouter := chi.NewRouter()
	tenantshandler.New(manager, logger).Routes(adminRouter)
	rootRouter.Mount("/admin/v1", adminRouter)

	apiRouter := chi.NewRouter()
	apiRouter.Use(tenantmiddleware.RequireTenant(pipeline))
	apiRouter.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		tc, _ := tenant.Current(r.Context())
		resolver, _ := tc.Property(resolve.ResolverProperty)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"tenant_id":   tc.ID.String(),
			"schema_name": tc.SchemaName,
			"resolver":    resolver,
		})
	})
	apiRouter.Get("/audit", func(w http.ResponseWriter, r *http.Request) {
		var actions []string
		err := tenantDB.WithCurrentTenant(r.Context(), func(tx pgx.Tx) error {
			rows, err := tx.Query(r.Context(), `SELECT action FROM audit_log ORDER BY recorded_at DESC LIMIT 50`)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var action string
				if err := rows.Scan(&action); err != nil {
					return err
				}
				actions = append(actions, action)
			}
			return rows.Err()
		})
		if err != nil {
			platformlogging.FromRequest(r, logger).Error("list audit log", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"entries": actions})
	})
	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting tenancy api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
