package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"bookintake/internal/model"
)

// SheetName is the single worksheet in the workbook.
const SheetName = "Submissions"

var columnWidths = []float64{8, 20, 15, 20, 50, 50, 20}

// WriteXLSX writes a workbook with a bold header row and one row per submission.
func WriteXLSX(w io.Writer, rows []model.Submission, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetCellStyle(SheetName, "A1", last+"1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("column width %s: %w", col, err)
		}
	}

	for i, s := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []any{
			i + 1,
			s.DeviceSerial,
			s.PhoneNumber,
			s.ISBN,
			s.CoverImageURL,
			copyrightURL(s),
			s.CreatedAt.In(loc).Format(TimeLayout),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	return f.Write(w)
}
