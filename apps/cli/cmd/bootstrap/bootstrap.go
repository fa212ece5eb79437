// Package bootstrap prepares a database for the tenancy platform: the
// control schema plus the shared schema.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

func Command() *cobra.Command {
	var (
		databaseURL   string
		controlSchema string
		sharedSchema  string
	)

	c := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the control schema and shared schema in the target database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if databaseURL == "" {
				_ = godotenv.Load()
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return fmt.Errorf("database URL is required (flag --database-url or env DATABASE_URL)")
			}

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapControlSchema(ctx, pool, controlSchema); err != nil {
				return fmt.Errorf("bootstrap control schema: %w", err)
			}

			manager := persistence.NewSchemaManager(pool)
			exists, err := manager.Exists(ctx, sharedSchema)
			if err != nil {
				return fmt.Errorf("check shared schema: %w", err)
			}
			if !exists {
				if err := manager.Create(ctx, sharedSchema); err != nil {
					return fmt.Errorf("create shared schema: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "bootstrapped control schema %q and shared schema %q\n", controlSchema, sharedSchema)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (defaults to DATABASE_URL)")
	c.Flags().StringVar(&controlSchema, "control-schema", "tenancy_control", "Schema holding tenant control records")
	c.Flags().StringVar(&sharedSchema, "shared-schema", "shared", "Schema holding cross-tenant objects")

	return c
}
