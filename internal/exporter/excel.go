// Package exporter writes validation reports to disk: a highlighted Excel
// workbook and a CSV error list.
package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"coursecheck/internal/classify"
	"coursecheck/internal/report"
	"coursecheck/pkg/contracts/domain"
)

const (
	sheetData    = "Validated Data"
	sheetSummary = "Validation Summary"
	sheetErrors  = "Error Details"

	headerFill    = "366092"
	errorRowFill  = "FF0000"
	maxColumnWidth = 50
)

// ExcelWriter writes highlighted workbooks into a target directory.
type ExcelWriter struct {
	dir    string
	logger *slog.Logger
}

// NewExcelWriter creates a writer rooted at dir.
func NewExcelWriter(dir string, logger *slog.Logger) *ExcelWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelWriter{dir: dir, logger: logger.With(slog.String("component", "exporter"))}
}

// Write renders the report into a timestamped workbook and returns its
// path. The data sheet highlights each flagged cell with its
// classification color; summary and error-detail sheets follow.
func (w *ExcelWriter) Write(rep *report.Report) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("validated_course_data_%s.xlsx", time.Now().Format("20060102_150405")))

	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeDataSheet(f, rep); err != nil {
		return "", err
	}
	if err := w.writeSummarySheet(f, rep); err != nil {
		return "", err
	}
	if err := w.writeErrorSheet(f, rep); err != nil {
		return "", err
	}
	f.DeleteSheet("Sheet1")

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	w.logger.Info("exported workbook",
		slog.String("path", path),
		slog.Int("rows", len(rep.Rows)),
		slog.Int("errors", rep.Summary.TotalErrors))
	return path, nil
}

// headerStyle builds the bold white-on-blue header style.
func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
}

// kindStyles builds one fill style per error kind from the classification
// table.
func kindStyles(f *excelize.File) (map[domain.ErrorKind]int, error) {
	styles := make(map[domain.ErrorKind]int)
	for _, c := range classify.All() {
		id, err := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{c.Color}},
		})
		if err != nil {
			return nil, err
		}
		styles[c.Kind] = id
	}
	return styles, nil
}

func (w *ExcelWriter) writeDataSheet(f *excelize.File, rep *report.Report) error {
	if _, err := f.NewSheet(sheetData); err != nil {
		return err
	}

	hs, err := headerStyle(f)
	if err != nil {
		return err
	}
	styles, err := kindStyles(f)
	if err != nil {
		return err
	}
	errCountStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{errorRowFill}},
	})
	if err != nil {
		return err
	}

	headers := append(append([]string{}, rep.Headers...), "Error Count")
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheetData, cell, h)
		f.SetCellStyle(sheetData, cell, cell, hs)
	}

	for _, row := range rep.Rows {
		excelRow := row.Index + 2
		for col, c := range row.Cells {
			cell, _ := excelize.CoordinatesToCellName(col+1, excelRow)
			f.SetCellValue(sheetData, cell, c.Value)
			if c.Classification != nil {
				f.SetCellStyle(sheetData, cell, cell, styles[c.Kind])
			}
		}
		countCell, _ := excelize.CoordinatesToCellName(len(rep.Headers)+1, excelRow)
		f.SetCellValue(sheetData, countCell, row.ErrorCount)
		if row.ErrorCount > 0 {
			f.SetCellStyle(sheetData, countCell, countCell, errCountStyle)
		}
	}

	autoFitColumns(f, sheetData, headers, rep)
	return nil
}

func (w *ExcelWriter) writeSummarySheet(f *excelize.File, rep *report.Report) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return err
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	f.SetCellValue(sheetSummary, "A1", "Validation Summary")
	f.SetCellStyle(sheetSummary, "A1", "A1", titleStyle)

	f.SetCellValue(sheetSummary, "A3", "Total Rows:")
	f.SetCellValue(sheetSummary, "B3", rep.Summary.TotalRows)
	f.SetCellValue(sheetSummary, "A4", "Total Errors:")
	f.SetCellValue(sheetSummary, "B4", rep.Summary.TotalErrors)
	f.SetCellValue(sheetSummary, "A5", "Rows with Errors:")
	f.SetCellValue(sheetSummary, "B5", rep.Summary.RowsWithErrors)
	f.SetCellValue(sheetSummary, "A6", "Run Status:")
	f.SetCellValue(sheetSummary, "B6", string(rep.Summary.Status))

	f.SetCellValue(sheetSummary, "A8", "Error Breakdown by Type:")
	f.SetCellStyle(sheetSummary, "A8", "A8", boldStyle)

	r := 9
	for _, kind := range domain.ErrorKinds() {
		if count := rep.Summary.ByKind[kind]; count > 0 {
			f.SetCellValue(sheetSummary, "A"+strconv.Itoa(r), string(kind))
			f.SetCellValue(sheetSummary, "B"+strconv.Itoa(r), count)
			r++
		}
	}

	r += 2
	f.SetCellValue(sheetSummary, "A"+strconv.Itoa(r), "Error Breakdown by Field:")
	f.SetCellStyle(sheetSummary, "A"+strconv.Itoa(r), "A"+strconv.Itoa(r), boldStyle)
	r++
	for _, field := range domain.CanonicalFields() {
		if count := rep.Summary.ByField[field]; count > 0 {
			f.SetCellValue(sheetSummary, "A"+strconv.Itoa(r), string(field))
			f.SetCellValue(sheetSummary, "B"+strconv.Itoa(r), count)
			r++
		}
	}
	return nil
}

func (w *ExcelWriter) writeErrorSheet(f *excelize.File, rep *report.Report) error {
	if _, err := f.NewSheet(sheetErrors); err != nil {
		return err
	}

	hs, err := headerStyle(f)
	if err != nil {
		return err
	}

	headers := []string{"Row", "Column", "Error Type", "Message", "Value"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheetErrors, cell, h)
		f.SetCellStyle(sheetErrors, cell, cell, hs)
	}

	for i, e := range rep.Errors {
		excelRow := i + 2
		// Row numbers are 1-based in the export for the people reading it.
		f.SetCellValue(sheetErrors, "A"+strconv.Itoa(excelRow), e.RowIndex+1)
		f.SetCellValue(sheetErrors, "B"+strconv.Itoa(excelRow), string(e.Field))
		f.SetCellValue(sheetErrors, "C"+strconv.Itoa(excelRow), string(e.Kind))
		f.SetCellValue(sheetErrors, "D"+strconv.Itoa(excelRow), e.Message)
		f.SetCellValue(sheetErrors, "E"+strconv.Itoa(excelRow), e.Value)
	}
	return nil
}

// autoFitColumns widens columns to their longest value, capped so one long
// URL does not blow the layout up.
func autoFitColumns(f *excelize.File, sheet string, headers []string, rep *report.Report) {
	for col, h := range headers {
		width := len(h)
		for _, row := range rep.Rows {
			if col < len(row.Cells) && len(row.Cells[col].Value) > width {
				width = len(row.Cells[col].Value)
			}
		}
		if width+2 > maxColumnWidth {
			width = maxColumnWidth - 2
		}
		name, _ := excelize.ColumnNumberToName(col + 1)
		f.SetColWidth(sheet, name, name, float64(width+2))
	}
}
