package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"bookintake/internal/config"
	"bookintake/internal/export"
	"bookintake/internal/logging"
	"bookintake/internal/repository"
	"bookintake/internal/service"
	"bookintake/internal/storage"
)

func newExportCmd() *cobra.Command {
	var (
		format string
		output string
		filter repository.ListFilter
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored submissions to an xlsx or parquet file",
		Example: `  # Everything, as a spreadsheet named after today's date
  bookintake export

  # One device's submissions as parquet
  bookintake export --format parquet --device-serial DEV001 -o dev001.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			cfg := config.Load()
			loc := cfg.Location()
			logger := logging.New(os.Stderr, loc)

			db, repo, err := openRepository(cmd, cfg, logger, false)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			svc := service.NewSubmissionService(storage.Unconfigured(), repo,
				service.WithLogger(logger),
				service.WithLocation(loc),
			)

			if output == "" {
				output = export.Filename(f, time.Now(), loc)
			}
			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}

			if err := svc.Export(cmd.Context(), f, filter, file); err != nil {
				_ = file.Close()
				_ = os.Remove(output)
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "xlsx", "Output format: xlsx or parquet")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default submissions_<date>.<ext>)")
	cmd.Flags().StringVar(&filter.DeviceSerial, "device-serial", "", "Only this device serial")
	cmd.Flags().StringVar(&filter.PhoneNumber, "phone", "", "Only this phone number")
	cmd.Flags().StringVar(&filter.ISBN, "isbn", "", "Only this ISBN")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum rows (0 = all)")

	return cmd
}
