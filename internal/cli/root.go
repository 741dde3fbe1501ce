// Package cli provides the command-line interface for scenario chat.
package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/scenario-chat/internal/config"
	"github.com/tbourn/scenario-chat/internal/sysutil"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	envFile  string
	logLevel string

	cfg config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scenariochat",
	Short: "Role-gated scenario chat backend",
	Long: `Scenario chat serves conversations steered by admin-authored scenarios.

Admins author scenarios and assign them to users; users chat under their
active assignments while replies come from an external webhook or relay.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// A missing .env is normal outside development.
		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
			return fmt.Errorf("load %s: %w", envFile, err)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		sysutil.SetupLogger(nil, sysutil.FirstNonEmpty(logLevel, cfg.LogLevel), cfg.LogPretty)
		log.Debug().Str("command", cmd.Name()).Msg("config loaded")
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(setRoleCmd)
	rootCmd.AddCommand(tokenCmd)
}
