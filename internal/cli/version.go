// Version command for the larder CLI.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the larder release version.
const Version = "0.1.0"

const modulePath = "github.com/ovenbird/larder"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the larder version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "larder v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
