package config

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/enthus-appdev/n8nctl/internal/api"
	"github.com/enthus-appdev/n8nctl/internal/cmd/cmdutil"
	"github.com/enthus-appdev/n8nctl/internal/config"
)

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage n8n instance connections",
		Long:  `Configure the n8n instances that reconcile and export can target.`,
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newUseCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newTestCmd())

	return cmd
}

func newInitCmd() *cobra.Command {
	var (
		name       string
		url        string
		apiKey     string
		apiKeyEnv  string
		setDefault bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Configure a new n8n instance",
		Long: `Interactively configure a new n8n instance connection.

You can also provide flags for non-interactive setup:
  n8nctl config init --name prod --url https://n8n.example.com --api-key YOUR_KEY

With --api-key-env the key is not stored; it is read from the named
environment variable whenever the instance is used:
  n8nctl config init --name ci --url https://n8n.example.com --api-key-env CI_N8N_KEY

Instances are stored in ~/.config/n8nctl/instances.toml, or in the directory
named by N8NCTL_CONFIG_DIR.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			prompt := func(label string, value *string) {
				if *value != "" {
					return
				}
				fmt.Fprint(cmd.OutOrStdout(), label)
				line, _ := reader.ReadString('\n')
				*value = strings.TrimSpace(line)
			}

			prompt("Instance name (e.g., 'local', 'prod'): ", &name)
			prompt("n8n URL (e.g., 'http://localhost:5678'): ", &url)
			if apiKeyEnv == "" {
				prompt("API Key: ", &apiKey)
			}
			if name == "" || url == "" {
				return fmt.Errorf("name and URL are required")
			}

			cfg := &config.Config{Instances: make(map[string]config.Instance)}
			if config.Exists() {
				loaded, err := config.Load()
				if err != nil {
					return err
				}
				cfg = loaded
			}

			cfg.Instances[name] = config.Instance{
				Name:      name,
				URL:       strings.TrimSuffix(url, "/"),
				APIKey:    apiKey,
				APIKeyEnv: apiKeyEnv,
			}
			if len(cfg.Instances) == 1 || setDefault {
				cfg.CurrentInstance = name
			}

			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Instance '%s' configured successfully.\n", name)
			if cfg.CurrentInstance == name {
				fmt.Fprintln(cmd.OutOrStdout(), "Set as active instance.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Instance name")
	cmd.Flags().StringVar(&url, "url", "", "n8n instance URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	cmd.Flags().StringVar(&apiKeyEnv, "api-key-env", "", "Environment variable to read the API key from instead of storing it")
	cmd.Flags().BoolVar(&setDefault, "default", false, "Set as default instance")
	cmd.MarkFlagsMutuallyExclusive("api-key", "api-key-env")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured n8n instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			names := cfg.Names()

			if cmdutil.IsJSON(cmd) {
				// API keys are never printed.
				type instanceInfo struct {
					Name      string `json:"name"`
					URL       string `json:"url"`
					APIKeyEnv string `json:"apiKeyEnv,omitempty"`
					Active    bool   `json:"active"`
				}
				instances := make([]instanceInfo, 0, len(names))
				for _, name := range names {
					instances = append(instances, instanceInfo{
						Name:      name,
						URL:       cfg.Instances[name].URL,
						APIKeyEnv: cfg.Instances[name].APIKeyEnv,
						Active:    name == cfg.CurrentInstance,
					})
				}
				return cmdutil.PrintJSON(map[string]interface{}{
					"instances": instances,
					"current":   cfg.CurrentInstance,
				})
			}

			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No instances configured. Run 'n8nctl config init' to add one.")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%-2s%-20s  %s\n", "", "NAME", "URL")
			for _, name := range names {
				marker := ""
				if name == cfg.CurrentInstance {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-2s%-20s  %s\n", marker, name, cfg.Instances[name].URL)
			}
			return nil
		},
	}
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <instance-name>",
		Short: "Switch to a different n8n instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if _, exists := cfg.Instances[name]; !exists {
				return fmt.Errorf("instance '%s' not found", name)
			}

			cfg.CurrentInstance = name
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Switched to instance '%s'\n", name)
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <instance-name>",
		Short: "Remove a configured n8n instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if _, exists := cfg.Instances[name]; !exists {
				return fmt.Errorf("instance '%s' not found", name)
			}

			delete(cfg.Instances, name)

			// Fall back to the first remaining instance by name.
			if cfg.CurrentInstance == name {
				cfg.CurrentInstance = ""
				if names := cfg.Names(); len(names) > 0 {
					cfg.CurrentInstance = names[0]
				}
			}

			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Instance '%s' removed.\n", name)
			return nil
		},
	}
}

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [remote-target]",
		Short: "Check that an instance is reachable with its API key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) > 0 {
				target = args[0]
			}

			instance, err := config.ResolveTarget(target)
			if err != nil {
				return err
			}

			client := api.NewClient(instance.URL, instance.APIKey)
			if _, err := client.ListTags(cmd.Context(), 1, ""); err != nil {
				return fmt.Errorf("instance '%s' is not reachable: %w", instance.Name, err)
			}

			if cmdutil.IsJSON(cmd) {
				return cmdutil.PrintJSON(map[string]interface{}{"instance": instance.Name, "url": instance.URL, "ok": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to '%s' (%s)\n", instance.Name, instance.URL)
			return nil
		},
	}
}
