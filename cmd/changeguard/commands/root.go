package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/changeguard/changeguard/pkg/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// loadConfig returns the configuration from --config, or the defaults
// when no config file was given.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.NewParser().LoadFile(configPath)
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "changeguard",
		Short: "ChangeGuard - Infrastructure Change Policy Engine",
		Long: `ChangeGuard evaluates planned infrastructure changes against policy
rules before they are applied.

It parses a change set (the JSON plan emitted by an IaC tool), runs every
applicable rule against every resource change, and reports violations. A
change set passes only when no rule is violated.

Features:
  - Declarative rules in YAML or JSON, schema-checked via CUE
  - Existential quantification over nested resource blocks
  - Negation-safe predicates, rejected at load time when unsound
  - Built-in guardrails for common storage misconfigurations
  - Run history persisted to SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (CUE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newEvalCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newRulesCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
