// Package root contains the root command for the application
package root

import (
	"fmt"

	"ecobridge/internal/config"
	"ecobridge/internal/container"
	"ecobridge/internal/logging"

	"github.com/spf13/cobra"
)

// CommonFlags represents the flags that are common to multiple commands
type CommonFlags struct {
	Database string
	LogLevel string
}

var (
	// Log is the shared logger instance for commands
	Log logging.Logger = logging.GetLogger()

	// AppConfig is loaded before any subcommand runs
	AppConfig *config.Config

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "ecobridge",
		Short: "EcoCash to Deriv reconciliation engine.",
		Long: `ecobridge reconciles EcoCash mobile-money payments with Deriv payment-agent orders.
It ingests provider SMS notifications, reads proofs of payment, computes transaction charges
and releases deposits and withdrawals through the trading API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnv(Log)

			cfg, err := config.InitializeConfig()
			if err != nil {
				return err
			}
			if SharedFlags.Database != "" {
				cfg.Database.Path = SharedFlags.Database
			}
			if SharedFlags.LogLevel != "" {
				cfg.Log.Level = SharedFlags.LogLevel
			}

			AppConfig = cfg
			Log = logging.NewLogrusAdapterFromLogger(config.ConfigureLoggingFromConfig(cfg))
			return nil
		},
	}

	// SharedFlags are accessible to all commands
	SharedFlags = CommonFlags{}
)

// Init initializes the root command and all flags
func Init() {
	Cmd.PersistentFlags().StringVar(&SharedFlags.Database, "db", "", "Database file (overrides database.path)")
	Cmd.PersistentFlags().StringVar(&SharedFlags.LogLevel, "log-level", "", "Log level (overrides log.level)")
}

// NewContainer wires the application from the loaded configuration.
func NewContainer() (*container.Container, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return container.NewContainerWithLogger(AppConfig, Log)
}
