// Package cli implements the leakguard command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-kessel/leakguard/internal/config"
)

var configFile string

// NewRootCmd creates the leakguard root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leakguard",
		Short: "Keep usernames from leaking out of a WordPress site",
		Long: `leakguard stops a WordPress site from disclosing its usernames to
anonymous visitors through the REST API, author archives, feeds, comments
and login error messages.

It runs as an Envoy ext_authz service in front of the REST API and as an
HTTP filter API the site calls when rendering public text.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		fmt.Sprintf("config file (YAML, JSON or TOML; default $%s)", config.EnvConfigFile))

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCheckCmd())

	return cmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration from the --config file (or $LEAKGUARD_CONFIG),
// the environment and the command's flags.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath := configFile
	if configPath == "" {
		configPath = os.Getenv(config.EnvConfigFile)
	}

	loader, err := config.NewLoaderWithFlags(configPath, cmd.Flags())
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := loader.Get()
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, configPath, nil
}
