package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"bookintake/internal/config"
	"bookintake/internal/database"
	"bookintake/internal/database/migration"
	"bookintake/internal/repository"
	"bookintake/internal/repository/postgres"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookintake",
		Short: "Book cover and copyright page collection service",
		Long: `bookintake receives book submissions from field devices: a device serial,
the submitter's mobile number, the ISBN and photos of the cover and copyright page.
Photos go to object storage and a record is written to PostgreSQL.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Real environment variables win over .env.
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

// openRepository returns an unconfigured repository and a nil *sql.DB when no
// database settings are present.
func openRepository(cmd *cobra.Command, cfg *config.AppConfig, logger *slog.Logger, migrate bool) (*sql.DB, repository.SubmissionRepository, error) {
	if !cfg.Database.Configured() {
		logger.Warn("database not configured; submissions cannot be stored")
		return nil, repository.Unconfigured(), nil
	}

	db, err := database.NewPostgres(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if migrate {
		if err := migration.EnsureMigrated(cmd.Context(), db, logger); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return db, postgres.NewSubmissionPostgres(db), nil
}
