package cli

import (
	"retailcore/internal/infra"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewMigrateCommand applies the schema, including row-level security
// policies. Every statement is idempotent.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables, indexes and tenant isolation policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDatabase(opts)
			if err != nil {
				return err
			}
			if err := infra.RunMigrations(db); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
