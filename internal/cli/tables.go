// Tables command for the larder CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ovenbird/larder/internal/sqlite"
)

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables and their row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, "tables:", err)
				os.Exit(exitSysError)
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := store.EnsureSchema(ctx); err != nil {
				fmt.Fprintln(os.Stderr, "create schema:", err)
				os.Exit(exitSysError)
			}

			counts := make(map[string]int64)
			for _, name := range sqlite.TableNames() {
				n, err := store.CountRows(ctx, name)
				if err != nil {
					fmt.Fprintf(os.Stderr, "count %s: %s\n", name, err)
					os.Exit(exitSysError)
				}
				counts[name] = n
			}

			if flags.jsonMode {
				out, err := json.MarshalIndent(counts, "", "  ")
				if err != nil {
					fmt.Fprintln(os.Stderr, "marshal JSON:", err)
					os.Exit(exitSysError)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			for _, name := range sqlite.TableNames() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", name, counts[name])
			}
			return nil
		},
	}
}
