package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ExcelSource loads a dataset from an Excel workbook. When Sheet is empty
// the first sheet in the workbook is used.
type ExcelSource struct {
	Path  string
	Sheet string
}

// Name returns the file name.
func (s *ExcelSource) Name() string {
	return filepath.Base(s.Path)
}

// Load reads the sheet. The first row is the header row; later rows may be
// shorter than the header, which excelize reports as ragged slices.
func (s *ExcelSource) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := s.Sheet
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", s.Path)
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}

	ds := &Dataset{
		Headers: rows[0],
		Records: rows[1:],
	}
	ScrubNulls(ds)
	return ds, nil
}
