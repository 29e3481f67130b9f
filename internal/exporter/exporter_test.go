package exporter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"coursecheck/internal/classify"
	"coursecheck/internal/report"
	"coursecheck/pkg/contracts/domain"
)

func reportFixture() *report.Report {
	numeric := classify.For(domain.KindNumeric)
	return &report.Report{
		RunID:   "run-1",
		Source:  "fixture.csv",
		Headers: []string{"Course Id", "Course Name"},
		Rows: []report.GridRow{
			{
				Index: 0,
				Cells: []report.Cell{{Value: "101"}, {Value: "Engineering"}},
			},
			{
				Index:      1,
				ErrorCount: 1,
				Cells: []report.Cell{
					{Value: "abc", Kind: domain.KindNumeric, Classification: &numeric},
					{Value: "Maths"},
				},
			},
		},
		Summary: report.Summary{
			TotalRows:      2,
			TotalErrors:    1,
			RowsWithErrors: 1,
			ByKind:         map[domain.ErrorKind]int{domain.KindNumeric: 1},
			ByField:        map[domain.Field]int{domain.FieldCourseID: 1},
			Status:         domain.RunStatusFinished,
		},
		Errors: []report.FlatError{
			{RowIndex: 1, Field: domain.FieldCourseID, Kind: domain.KindNumeric, Message: "Course Id must be a whole number", Value: "abc"},
		},
	}
}

func TestExcelWriter(t *testing.T) {
	dir := t.TempDir()
	path, err := NewExcelWriter(dir, nil).Write(reportFixture())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "validated_course_data_"))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.ElementsMatch(t, []string{"Validated Data", "Validation Summary", "Error Details"}, sheets)

	// Data sheet: header row plus values and the error count column.
	v, err := f.GetCellValue("Validated Data", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Course Id", v)
	v, _ = f.GetCellValue("Validated Data", "C1")
	assert.Equal(t, "Error Count", v)
	v, _ = f.GetCellValue("Validated Data", "A3")
	assert.Equal(t, "abc", v)
	v, _ = f.GetCellValue("Validated Data", "C3")
	assert.Equal(t, "1", v)

	// The flagged cell carries a fill, the clean one does not.
	flaggedStyle, err := f.GetCellStyle("Validated Data", "A3")
	require.NoError(t, err)
	cleanStyle, err := f.GetCellStyle("Validated Data", "A2")
	require.NoError(t, err)
	assert.NotEqual(t, cleanStyle, flaggedStyle)

	// Summary sheet.
	v, _ = f.GetCellValue("Validation Summary", "B3")
	assert.Equal(t, "2", v)
	v, _ = f.GetCellValue("Validation Summary", "B4")
	assert.Equal(t, "1", v)

	// Error details sheet uses 1-based row numbers.
	v, _ = f.GetCellValue("Error Details", "A2")
	assert.Equal(t, "2", v)
	v, _ = f.GetCellValue("Error Details", "C2")
	assert.Equal(t, "Numeric", v)
}

func TestCSVWriter(t *testing.T) {
	dir := t.TempDir()
	path, err := NewCSVWriter(dir, nil).Write(reportFixture())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "validation_errors_"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM), "file must open with a UTF-8 BOM")

	lines := strings.Split(strings.TrimSpace(string(bytes.TrimPrefix(data, utf8BOM))), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Row,Column,Error Type,Message,Value", lines[0])
	assert.Equal(t, "2,Course Id,Numeric,Course Id must be a whole number,abc", lines[1])
}

func TestWritersCreateDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	_, err := NewCSVWriter(dir, nil).Write(reportFixture())
	require.NoError(t, err)
	_, err = NewExcelWriter(dir, nil).Write(reportFixture())
	require.NoError(t, err)
}
