package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/enthus-appdev/n8nctl/internal/cmd/cmdutil"
	configcmd "github.com/enthus-appdev/n8nctl/internal/cmd/config"
	exportcmd "github.com/enthus-appdev/n8nctl/internal/cmd/export"
	reconcilecmd "github.com/enthus-appdev/n8nctl/internal/cmd/reconcile"
	"github.com/enthus-appdev/n8nctl/internal/reconcile"
)

var version = "dev"

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "n8nctl",
		Short: "Declarative reconciliation for n8n",
		Long: `n8nctl keeps an n8n instance in sync with workflow, tag and credential
definitions stored in a directory, so they can live in version control.

It plans the minimal set of create, update, activate and delete operations,
applies them in dependency order and reports the outcome of each one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool(cmdutil.FlagJSON, false, "Output in JSON format")
	rootCmd.PersistentFlags().String(cmdutil.FlagLogLevel, "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String(cmdutil.FlagLogFormat, "console", "Log format (console or json)")

	rootCmd.AddCommand(configcmd.NewConfigCmd())
	rootCmd.AddCommand(reconcilecmd.NewReconcileCmd(version))
	rootCmd.AddCommand(reconcilecmd.NewPlanCmd(version))
	rootCmd.AddCommand(exportcmd.NewExportCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCmd()
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		printError(rootCmd, os.Stderr, err)
	}
	return reconcile.ExitCode(err)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			if cmdutil.IsJSON(cmd) {
				out, _ := json.Marshal(map[string]string{"version": version})
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "n8nctl %s\n", version)
			}
		},
	}
}

// printError outputs an error in the appropriate format
func printError(rootCmd *cobra.Command, w io.Writer, err error) {
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool(cmdutil.FlagJSON)
	if jsonOutput {
		_ = cmdutil.PrintJSON(map[string]interface{}{
			"error":    err.Error(),
			"exitCode": reconcile.ExitCode(err),
		})
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err)
}
