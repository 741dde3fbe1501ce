package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := repo.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() { _ = repo.Close(db) }()
		if err := repo.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

var setRoleCmd = &cobra.Command{
	Use:   "set-role <user-id> <admin|user>",
	Short: "Change the role of an existing profile",
	Long: `Change the role of an existing profile.

Profiles are created on first sign-in, so the user must have signed in once.

Examples:
  scenariochat set-role 7f9c... admin`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := parseRole(args[1])
		if err != nil {
			return err
		}
		db, err := repo.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() { _ = repo.Close(db) }()
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := repo.SetRole(ctx, db, args[0], role); err != nil {
			return fmt.Errorf("set role: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
		return nil
	},
}

var (
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a development access token",
	Long: `Mint an HS256 access token signed with AUTH_JWT_SECRET.

Production tokens come from the auth provider; this is for local testing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := session.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)
		tok, err := v.Issue(session.Identity{UserID: args[0], Email: tokenEmail}, tokenTTL)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}

func parseRole(s string) (domain.Role, error) {
	switch domain.Role(s) {
	case domain.RoleAdmin, domain.RoleUser:
		return domain.Role(s), nil
	}
	return "", fmt.Errorf("role must be admin or user, got %q", s)
}
