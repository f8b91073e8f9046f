// Reset command for the larder CLI.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all tables and recreate an empty schema",
		Long:  "Irreversibly delete every recipe, template, tag, and setting, then\nrecreate the empty schema in place.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force && !confirm(cmd, "This permanently deletes all data. Continue? [y/N] ") {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}

			store, err := openStore()
			if err != nil {
				fmt.Fprintln(os.Stderr, "reset:", err)
				os.Exit(exitSysError)
			}
			defer store.Close()

			if err := store.Reset(cmd.Context()); err != nil {
				fmt.Fprintln(os.Stderr, "reset:", err)
				os.Exit(exitSysError)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Larder reset")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
