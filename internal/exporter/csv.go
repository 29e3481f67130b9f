package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"coursecheck/internal/report"
)

// utf8BOM keeps Excel from mangling non-ASCII characters when the CSV is
// opened directly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes the flat error list into a target directory.
type CSVWriter struct {
	dir    string
	logger *slog.Logger
}

// NewCSVWriter creates a writer rooted at dir.
func NewCSVWriter(dir string, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{dir: dir, logger: logger.With(slog.String("component", "exporter"))}
}

// Write dumps the report's error list as CSV and returns the file path.
func (w *CSVWriter) Write(rep *report.Report) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("validation_errors_%s.csv", time.Now().Format("20060102_150405")))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(utf8BOM); err != nil {
		return "", fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(file)
	if err := cw.Write([]string{"Row", "Column", "Error Type", "Message", "Value"}); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range rep.Errors {
		record := []string{
			strconv.Itoa(e.RowIndex + 1),
			string(e.Field),
			string(e.Kind),
			e.Message,
			e.Value,
		}
		if err := cw.Write(record); err != nil {
			return "", fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}

	w.logger.Info("exported error list",
		slog.String("path", path),
		slog.Int("errors", len(rep.Errors)))
	return path, nil
}
