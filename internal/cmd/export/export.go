package export

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/enthus-appdev/n8nctl/internal/cmd/cmdutil"
	"github.com/enthus-appdev/n8nctl/internal/export"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/loader"
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <dir> [remote-target]",
		Short: "Write the remote state as definition files",
		Long: `Export every workflow, tag and credential reference of an n8n instance
into a directory of definition files, one file per entity.

Reconciling the instance against a fresh export applies no operations.
Credential secrets are never exported.`,
		Example: `  n8nctl export ./n8n prod`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) > 1 {
				target = args[1]
			}

			logger, err := cmdutil.Logger(cmd)
			if err != nil {
				return err
			}

			remote, _, err := cmdutil.Remote(target)
			if err != nil {
				return err
			}

			current, err := loader.NewRemote(entity.HashStructural, logger).Load(cmd.Context(), remote)
			if err != nil {
				return err
			}

			written, err := export.New(logger).Export(cmd.Context(), current, args[0])
			if err != nil {
				return err
			}

			if cmdutil.IsJSON(cmd) {
				return cmdutil.PrintJSON(map[string]interface{}{
					"directory": args[0],
					"files":     written,
				})
			}

			for _, name := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nExported %d entities to %s\n", len(written), args[0])
			return nil
		},
	}

	return cmd
}
