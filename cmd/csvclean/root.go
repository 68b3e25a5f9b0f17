package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvclean/internal/config"
	"github.com/JonMunkholm/csvclean/internal/logging"
)

// NewRootCmd creates the root command for csvclean.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csvclean",
		Short: "Normalize CSV files to clean, fully quoted UTF-8 or ASCII",
		Long: `csvclean detects the character encoding of CSV files, converts them to
UTF-8 (or lossy ASCII), replaces control characters with visible <0xHH>
markers and writes a copy in which every non-numeric field is quoted.

Settings are read from the environment (and a .env file), the same
variables the web server uses. Flags override them.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := "warn"
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = "debug"
			}
			logging.SetupWriter(cmd.ErrOrStderr(), level, "text")
		},
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("history-db", "",
		"History database path (default: $XDG_DATA_HOME/csvclean/history.db)")

	cmd.AddCommand(NewNormalizeCmd())
	cmd.AddCommand(NewDetectCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	_ = godotenv.Load()

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads settings from the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// historyPath resolves the --history-db flag against the configuration.
func historyPath(cmd *cobra.Command, cfg *config.Config) string {
	if p, _ := cmd.Flags().GetString("history-db"); p != "" {
		return p
	}
	if cfg.History.SQLitePath != "" {
		return cfg.History.SQLitePath
	}
	return config.DefaultSQLitePath()
}
