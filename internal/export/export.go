// Package export renders submission listings as downloadable spreadsheets.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"bookintake/internal/model"
)

// Format is an export file type.
type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// TimeLayout is how submission timestamps appear in exported files.
const TimeLayout = "2006-01-02 15:04:05"

var headers = []string{
	"No.",
	"Device Serial",
	"Phone Number",
	"ISBN",
	"Cover Image URL",
	"Copyright Image URL",
	"Submitted At",
}

// ParseFormat accepts "xlsx"/"excel" and "parquet", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "parquet":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Filename returns submissions_<YYYY-MM-DD>.<ext> with the date taken in loc.
func Filename(f Format, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("submissions_%s.%s", now.In(loc).Format("2006-01-02"), f)
}

// Write renders rows in the given format. Row order is preserved.
func Write(w io.Writer, f Format, rows []model.Submission, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	switch f {
	case FormatXLSX:
		return WriteXLSX(w, rows, loc)
	case FormatParquet:
		return WriteParquet(w, rows, loc)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

func copyrightURL(s model.Submission) string {
	if s.CopyrightImageURL == nil {
		return ""
	}
	return *s.CopyrightImageURL
}
