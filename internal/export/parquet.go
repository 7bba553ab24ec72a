package export

import (
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"bookintake/internal/model"
)

// Row is the parquet schema for exported submissions.
type Row struct {
	No                int64   `parquet:"no"`
	ID                int64   `parquet:"id"`
	DeviceSerial      string  `parquet:"device_serial"`
	PhoneNumber       string  `parquet:"phone_number"`
	ISBN              string  `parquet:"isbn"`
	CoverImageURL     string  `parquet:"cover_image_url"`
	CopyrightImageURL *string `parquet:"copyright_image_url,optional"`
	SubmittedAt       string  `parquet:"submitted_at"`
	SubmittedAtUnixMs int64   `parquet:"submitted_at_unix_ms"`
}

// WriteParquet writes one parquet row per submission.
func WriteParquet(w io.Writer, rows []model.Submission, loc *time.Location) error {
	out := make([]Row, len(rows))
	for i, s := range rows {
		out[i] = Row{
			No:                int64(i + 1),
			ID:                s.ID,
			DeviceSerial:      s.DeviceSerial,
			PhoneNumber:       s.PhoneNumber,
			ISBN:              s.ISBN,
			CoverImageURL:     s.CoverImageURL,
			CopyrightImageURL: s.CopyrightImageURL,
			SubmittedAt:       s.CreatedAt.In(loc).Format(TimeLayout),
			SubmittedAtUnixMs: s.CreatedAt.UnixMilli(),
		}
	}

	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(out); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
