// Package tenantcmd groups tenant lifecycle helpers: create, archive,
// restore, delete, migrate and list.
package tenantcmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/strategy"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/events"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/migrate"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Command groups tenant lifecycle helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant lifecycle utilities (create/archive/restore/delete/migrate/list)",
	}

	cmd.AddCommand(
		createCommand(),
		archiveCommand(),
		restoreCommand(),
		deleteCommand(),
		migrateCommand(),
		migrateAllCommand(),
		listCommand(),
	)
	return cmd
}

type cliDeps struct {
	pool    *pgxpool.Pool
	manager *service.Manager
	logger  *zap.Logger
	close   func()
}

type cliFlags struct {
	databaseURL    string
	controlSchema  string
	schemaPrefix   string
	apiKeySalt     string
	maxParallelism int
	onFailure      string
}

func (f *cliFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.databaseURL, "database-url", "", "Postgres connection string (defaults to DATABASE_URL)")
	c.Flags().StringVar(&f.controlSchema, "control-schema", "tenancy_control", "Schema holding tenant control records")
	c.Flags().StringVar(&f.schemaPrefix, "schema-prefix", "tenant_", "Prefix for tenant schema names")
	c.Flags().StringVar(&f.apiKeySalt, "api-key-salt", "", "Salt for stored API key hashes (defaults to API_KEY_SALT)")
	c.Flags().IntVar(&f.maxParallelism, "max-parallelism", 4, "Concurrent schema migrations")
	c.Flags().StringVar(&f.onFailure, "on-failure", string(migrate.ContinueOthers), "Containment policy: stop_all, continue_others or skip_failures")
}

func (f *cliFlags) build(ctx context.Context) (*cliDeps, error) {
	_ = godotenv.Load()

	databaseURL := f.databaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required (flag --database-url or env DATABASE_URL)")
	}
	salt := f.apiKeySalt
	if salt == "" {
		salt = os.Getenv("API_KEY_SALT")
	}

	logger, err := logging.NewLogger(logging.Config{Component: "tenancy-cli", Level: "info", Console: true})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	namer, err := tenant.NewNamer(tenant.NamerOptions{
		SchemaPrefix:  f.schemaPrefix,
		ValidateNames: true,
	})
	if err != nil {
		persistence.ClosePool(pool)
		return nil, err
	}

	if err := persistence.BootstrapControlSchema(ctx, pool, f.controlSchema); err != nil {
		persistence.ClosePool(pool)
		return nil, fmt.Errorf("bootstrap control schema: %w", err)
	}
	store, err := persistence.NewPostgresControlStore(pool, f.controlSchema)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, err
	}

	schemaManager := persistence.NewSchemaManager(pool)
	st := strategy.NewSchemaStrategy(schemaManager, namer, logger)

	source := migrate.NewStaticSource(
		migrate.Migration{Version: 1, Name: "base", UpSQL: sqlassets.TenantBaseSQL},
		migrate.Migration{Version: 2, Name: "audit", UpSQL: sqlassets.TenantAuditSQL},
	)
	runner := migrate.NewRunner(
		migrate.NewPGExecutor(pool),
		source,
		migrate.Options{
			MaxParallelism:  f.maxParallelism,
			OnFailure:       migrate.FailurePolicy(f.onFailure),
			UseTransactions: true,
			Owner:           "tenant",
		},
		events.Nop{},
		logger,
	)

	manager := service.NewManager(st, runner, store, events.Nop{}, namer, nil,
		service.Options{APIKeySalt: salt}, logger)

	return &cliDeps{
		pool:    pool,
		manager: manager,
		logger:  logger,
		close: func() {
			persistence.ClosePool(pool)
			_ = logger.Sync()
		},
	}, nil
}

func createCommand() *cobra.Command {
	var flags cliFlags
	var slug, apiKey string

	c := &cobra.Command{
		Use:   "create",
		Short: "Provision a tenant: control record, schema, migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := flags.build(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			rec, err := deps.manager.ProvisionWithRecord(ctx, service.CreateTenantRequest{
				Slug:   slug,
				APIKey: apiKey,
			})
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s created (slug=%s schema=%s status=%s)\n",
				rec.TenantID, rec.Slug, rec.SchemaName, rec.Status)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&slug, "slug", "", "Public tenant identifier (required)")
	c.Flags().StringVar(&apiKey, "api-key", "", "Optional API key; only its salted hash is stored")
	_ = c.MarkFlagRequired("slug")
	return c
}

func archiveCommand() *cobra.Command {
	var flags cliFlags

	c := &cobra.Command{
		Use:   "archive <tenant-id>",
		Short: "Rename the tenant schema out of the live namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := flags.build(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			archivedName, err := deps.manager.Archive(ctx, tenant.ParseID(args[0]))
			if err != nil {
				return fmt.Errorf("archive tenant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived as %s\n", archivedName)
			return nil
		},
	}

	flags.register(c)
	return c
}

func restoreCommand() *cobra.Command {
	var flags cliFlags

	c := &cobra.Command{
		Use:   "restore <tenant-id>",
		Short: "Bring an archived tenant schema back online",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := flags.build(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			schemaName, err := deps.manager.Restore(ctx, tenant.ParseID(args[0]))
			if err != nil {
				return fmt.Errorf("restore tenant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", schemaName)
			return nil
		},
	}

	flags.register(c)
	return c
}

func deleteCommand() *cobra.Command {
	var flags cliFlags
	var hard bool

	c := &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Delete a tenant (soft by default: timestamped archive rename)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := flags.build(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			if err := deps.manager.Delete(ctx, tenant.ParseID(args[0]), hard); err != nil {
				return fmt.Errorf("delete tenant: %w", err)
			}
			if hard {
				fmt.Fprintln(cmd.OutOrStdout(), "tenant schema dropped")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "tenant schema soft-deleted")
			}
			return nil
		},
	}

	flags.register(c)
	c.Flags().BoolVar(&hard, "hard", false, "Drop the schema instead of renaming it")
	return c
}

func migrateCommand() *cobra.Command {
	var flags cliFlags

	c := &cobra.Command{
		Use:   "migrate <tenant-id>",
		Short: "Apply pending migrations to one tenant schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := flags.build(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			if err := deps.manager.MigrateTenant(ctx, tenant.ParseID(args[0])); err != nil {
				return fmt.Errorf("migrate tenant: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	flags.register(c)
	return c
}

func migrateAllCommand() *cobra.Command {
	var flags cliFlags

	c := &cobra.Command{
		Use:   "migrate-all",
		Short: "Apply pending migrations to every live tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := flags.build(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			result, migrateErr := deps.manager.MigrateAllTenants(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "succeeded: %d, failed: %d, skipped: %d\n",
				len(result.Succeeded), len(result.Failed), len(result.Skipped))
			for schema, ferr := range result.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", schema, ferr)
			}
			return migrateErr
		},
	}

	flags.register(c)
	return c
}

func listCommand() *cobra.Command {
	var flags cliFlags

	c := &cobra.Command{
		Use:   "list",
		Short: "List live tenant identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := flags.build(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			ids, err := deps.manager.List(ctx)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id.String())
			}
			return nil
		},
	}

	flags.register(c)
	return c
}
