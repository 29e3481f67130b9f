package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// CSVSource loads a dataset from a CSV file. The first record is the header
// row.
type CSVSource struct {
	Path string
}

// Name returns the file name.
func (s *CSVSource) Name() string {
	return filepath.Base(s.Path)
}

// Load reads the whole file. Ragged records are allowed; the column mapper
// deals with short rows.
func (s *CSVSource) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file %s has no header row", s.Path)
	}

	ds := &Dataset{
		Headers: records[0],
		Records: records[1:],
	}
	ScrubNulls(ds)
	return ds, nil
}
