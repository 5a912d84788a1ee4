// Package export writes click dumps as CSV or XLSX with a fixed column
// order: timestamp, page, country, city, device, browser, os, source,
// referrer.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/linktrail/linktrail/internal/model"
)

const timestampLayout = time.RFC3339

// WriteCSV streams rows as CSV, header first.
func WriteCSV(w io.Writer, rows []model.ClickExportRow) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(model.ExportColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range rows {
		if err := writer.Write(recordOf(row)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes rows as a single-sheet spreadsheet.
func WriteXLSX(w io.Writer, rows []model.ClickExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Clicks"
	f.SetSheetName("Sheet1", sheet)

	header := make([]any, len(model.ExportColumns))
	for i, col := range model.ExportColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row coordinates: %w", err)
		}

		record := recordOf(row)
		values := make([]any, len(record))
		for j, v := range record {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	return nil
}

// recordOf flattens a row into the fixed column order.
func recordOf(row model.ClickExportRow) []string {
	return []string{
		row.Timestamp.UTC().Format(timestampLayout),
		row.Page,
		row.Country,
		row.City,
		row.Device,
		row.Browser,
		row.OS,
		row.Source,
		row.Referrer,
	}
}
