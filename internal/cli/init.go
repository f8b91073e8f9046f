// Init command for the larder CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize larder storage",
		Long:  "Create configuration and data directories, write a default config.yaml,\nthen create the schema and run migrations on the database file.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(exitSysError)
	}
	defer store.Close()

	ctx := cmd.Context()
	if err := store.EnsureSchema(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "create schema:", err)
		os.Exit(exitSysError)
	}

	report, err := store.RunMigrations(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run migrations:", err)
		os.Exit(exitSysError)
	}
	for _, name := range report.Applied() {
		fmt.Fprintf(cmd.OutOrStdout(), "migrated: %s\n", name)
	}
	for _, stepErr := range report.Errors() {
		fmt.Fprintf(os.Stderr, "migration warning: %s\n", stepErr)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Larder initialized at %s\n", store.Path())
	return nil
}
