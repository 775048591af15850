package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/kate/pkg/cli"
	"mercator-hq/kate/pkg/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kate",
	Short: "Kate - programmable API gateway",
	Long: `Kate is an API gateway configured by service definitions.

Every registered route runs a pipeline of stages:
  - JWT or key authentication, ownership and permission checks
  - Token-bucket rate limiting per caller
  - Publishing request bodies to a message queue
  - Aggregating several upstream responses into one
  - Proxying to the upstream service

Services are managed through a JSON or YAML file, or at runtime through the
admin API under /_services.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus KATE_* overrides when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the config file with KATE_* overrides and installs it as
// the process configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	config.SetConfig(cfg)
	return cfg, nil
}
