// Package cli implements retailctl, the administrative command line used for
// schema migration and demo data.
package cli

import (
	"fmt"
	"os"
	"time"

	"retailcore/internal/config"
	"retailcore/internal/infra"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseURL string
	Verbose     bool
}

// NewRootCommand creates the root command for retailctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "retailctl",
		Short:         "Administrative tooling for the retail order engine",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if opts.Verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "database URL (defaults to DATABASE_URL)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

// openDatabase resolves the DSN from the flag or the environment.
func openDatabase(opts *RootOptions) (*gorm.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	dsn := opts.DatabaseURL
	if dsn == "" {
		dsn = cfg.DatabaseURL
	}
	db, err := infra.NewDatabase(infra.DatabaseConfig{
		DSN:              dsn,
		MaxOpenConns:     2,
		StatementTimeout: cfg.StatementTimeout(),
		SlowQuery:        cfg.SlowQueryThreshold(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return db, cfg, nil
}
