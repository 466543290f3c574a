package cli

import (
	"fmt"
	"time"

	"bidding-live/internal/auth"
	model "bidding-live/internal/models"

	"github.com/spf13/cobra"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	UserID string
	Name   string
	Role   string
	TTL    time.Duration
}

// NewTokenCommand creates the token command. It signs a development token with JWT_SECRET.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for local testing",
		Long: `Issue a signed access token for local testing.

Example:
  bidding-live token --user u-42 --name "Ada" --role buyer
  bidding-live token --user s-1 --role seller --ttl 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}

			role := model.Role(opts.Role)
			if !role.Valid() {
				return fmt.Errorf("invalid role %q: must be buyer, seller or admin", opts.Role)
			}

			signer, err := auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer)
			if err != nil {
				return err
			}
			token, err := signer.IssueToken(model.Identity{UserID: opts.UserID, Name: opts.Name, Role: role}, opts.TTL)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Role, "role", string(model.RoleBuyer), "role (buyer|seller|admin)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
