package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the tenancy admin CLI. Subcommands
// (tenant, bootstrap) are attached here.
var rootCmd = &cobra.Command{
	Use:           "tenancy",
	Short:         "Tenancy admin CLI",
	Long:          "Administrative utilities for the tenancy platform (control schema bootstrap, tenant lifecycle, migrations).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
