package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/blumidealabs/blumbike/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configGenerate bool
	configValidate bool
	configShow     bool
	configFormat   string
)

// NewConfigCmd creates the config management command
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage blumbike configuration",
		Long: `Manage blumbike configuration files and settings.

Configuration can be loaded from multiple sources with the following
precedence:

1. Command line flags (highest priority)
2. Environment variables (BLUMBIKE_*, plus the legacy REDIS_URL,
   PARTICLE_ID, PARTICLE_TOKEN, apikey, SECRET_KEY and mode names)
3. Configuration file
4. Built-in defaults (lowest priority)

Configuration file locations (searched in order):
- ~/.blumbike.yaml
- ~/.config/blumbike/.blumbike.yaml
- ./.blumbike.yaml

Examples:
  # Generate example configuration file
  blumbike config --generate

  # Show current configuration
  blumbike config --show

  # Validate configuration file
  blumbike config --validate

  # Show configuration in JSON format
  blumbike config --show --format json`,
		RunE: runConfig,
	}

	cmd.Flags().BoolVar(&configGenerate, "generate", false, "Generate example configuration file")
	cmd.Flags().BoolVar(&configValidate, "validate", false, "Validate configuration file")
	cmd.Flags().BoolVar(&configShow, "show", false, "Show current configuration")
	cmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")

	return cmd
}

func runConfig(cmd *cobra.Command, _ []string) error {
	if configGenerate {
		return generateConfig(cmd)
	}

	manager := config.NewManager()
	if configValidate || configShow {
		if err := manager.LoadConfig(cfgFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	if configValidate {
		return summarizeConfig(cmd, manager)
	}

	if configShow {
		return showConfig(cmd, manager)
	}

	return cmd.Help()
}

func generateConfig(cmd *cobra.Command) error {
	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "# blumbike Configuration Example\n")
	fmt.Fprintf(cmd.OutOrStdout(), "# Save this to ~/.blumbike.yaml to use as your configuration\n\n")
	fmt.Fprint(cmd.OutOrStdout(), string(data))

	return nil
}

func summarizeConfig(cmd *cobra.Command, manager *config.Manager) error {
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Configuration is valid!\n")

	cfg := manager.GetConfig()

	fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration summary:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  Listen Address: %s\n", cfg.Server.Listen)
	fmt.Fprintf(cmd.OutOrStdout(), "  Dev Mode: %t\n", cfg.DevMode())
	fmt.Fprintf(cmd.OutOrStdout(), "  Redis URL: %s\n", cfg.Redis.URL)
	fmt.Fprintf(cmd.OutOrStdout(), "  API Key Set: %t\n", cfg.Auth.APIKey != "")
	fmt.Fprintf(cmd.OutOrStdout(), "  Resistance Control: %t\n", cfg.Particle.DeviceID != "")
	fmt.Fprintf(cmd.OutOrStdout(), "  Settle Delay: %s\n", cfg.Ingest.SettleDelay)
	fmt.Fprintf(cmd.OutOrStdout(), "  Legacy Trim: %d\n", cfg.Ingest.LegacyTrim)
	fmt.Fprintf(cmd.OutOrStdout(), "  Log Level: %s\n", cfg.Logging.Level)

	return nil
}

func showConfig(cmd *cobra.Command, manager *config.Manager) error {
	cfg := manager.GetConfig()

	switch configFormat {
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml", "yml":
		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		defer encoder.Close() // nolint:errcheck
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use yaml or json)", configFormat)
	}
}
