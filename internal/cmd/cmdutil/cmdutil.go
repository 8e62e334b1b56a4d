// Package cmdutil holds helpers shared by the command packages.
package cmdutil

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/enthus-appdev/n8nctl/internal/api"
	"github.com/enthus-appdev/n8nctl/internal/config"
	"github.com/enthus-appdev/n8nctl/internal/logging"
)

// Names of the persistent flags registered on the root command.
const (
	FlagJSON      = "json"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"
)

// IsJSON reports whether --json was given
func IsJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool(FlagJSON)
	return v
}

// Logger builds the logger selected by the persistent log flags.
func Logger(cmd *cobra.Command) (zerolog.Logger, error) {
	level, _ := cmd.Flags().GetString(FlagLogLevel)
	format, _ := cmd.Flags().GetString(FlagLogFormat)
	return logging.New(logging.Options{Level: level, Format: format})
}

// Remote resolves target to a configured instance and returns its API adapter.
func Remote(target string) (*api.Remote, *config.Instance, error) {
	instance, err := config.ResolveTarget(target)
	if err != nil {
		return nil, nil, err
	}
	return api.NewRemote(api.NewClient(instance.URL, instance.APIKey)), instance, nil
}

// PrintJSON outputs data as formatted JSON
func PrintJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
