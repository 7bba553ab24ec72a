package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_submissions",
		SQL: `CREATE TABLE IF NOT EXISTS submissions (
  id                  BIGSERIAL   PRIMARY KEY,
  device_serial       TEXT        NOT NULL,
  phone_number        TEXT        NOT NULL,
  isbn                TEXT        NOT NULL,
  cover_image_url     TEXT        NOT NULL,
  copyright_image_url TEXT        NULL,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_submissions_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions (created_at DESC);`,
	},
	{
		Name: "create_index_submissions_device_serial",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_submissions_device_serial ON submissions (device_serial);`,
	},
	{
		Name: "create_index_submissions_phone_number",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_submissions_phone_number ON submissions (phone_number);`,
	},
	{
		Name: "create_index_submissions_isbn",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_submissions_isbn ON submissions (isbn);`,
	},
}

// EnsureMigrated applies every schema step. Steps use IF NOT EXISTS, so a partially
// migrated database is completed and a migrated one is left unchanged.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	start := time.Now()
	log := logger.With("component", "database")

	log.Info("checking schema", "event", "db_migration_check", "status", "starting")

	var exists bool
	err := db.QueryRowContext(ctx, "SELECT to_regclass('public.submissions') IS NOT NULL").Scan(&exists)
	if err != nil {
		log.Error("failed to check sentinel table",
			"event", "db_migration_failed",
			"status", "error",
			"error_message", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	log.Info("applying schema",
		"event", "db_migration_start",
		"status", "in_progress",
		"table_exists", exists,
	)

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("migration step failed",
				"event", "db_migration_failed",
				"status", "error",
				"migration_step", step.Name,
				"error_message", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Info("migration step applied",
			"event", "db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	log.Info("schema ready",
		"event", "db_migration_success",
		"status", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
