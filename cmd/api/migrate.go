package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"bookintake/internal/config"
	"bookintake/internal/logging"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the submissions table and indexes if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.New(os.Stdout, cfg.Location())

			if !cfg.Database.Configured() {
				return errors.New("database is not configured: set DATABASE_URL or DB_HOST")
			}

			db, _, err := openRepository(cmd, cfg, logger, true)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}
