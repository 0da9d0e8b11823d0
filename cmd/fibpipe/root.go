package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string // overrides log.level when set
}

// ValidLogLevels defines the accepted --log-level values.
var ValidLogLevels = []string{"", "debug", "info", "warn", "error"}

// NewRootCommand creates the root command for the fibpipe CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fibpipe",
		Short: "fibpipe - asynchronous Fibonacci pipeline",
		Long: `fibpipe accepts indices over HTTP, records them durably, computes
their Fibonacci value in a separate worker and serves the results from a
cache.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidLogLevel(opts.LogLevel) {
				return fmt.Errorf("invalid log level %q: must be one of debug|info|warn|error", opts.LogLevel)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	// Add subcommands
	cmd.AddCommand(NewAPICommand(opts))
	cmd.AddCommand(NewWorkerCommand(opts))
	cmd.AddCommand(NewStandaloneCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func isValidLogLevel(level string) bool {
	for _, l := range ValidLogLevels {
		if l == level {
			return true
		}
	}
	return false
}
