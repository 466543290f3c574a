// Package cli wires the bidding-live commands.
package cli

import (
	"fmt"
	"os"

	"bidding-live/internal/config"
	"bidding-live/utils"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bidding-live",
		Short: "Real-time auction bidding server",
		Long: `bidding-live runs the auction bidding core: bid admission, seller acceptance,
deadline expiry and live push of auction events over websockets.

Settings come from the environment (and .env / .env.local when present).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		utils.Error("command failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the global log level
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		return config.Config{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return cfg, nil
}
