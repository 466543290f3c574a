package cli

import (
	"errors"

	"bidding-live/internal/repository"
	"bidding-live/utils"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			if err := repository.Migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
				return err
			}
			utils.Info("migrations applied", nil)
			return nil
		},
	}
}
