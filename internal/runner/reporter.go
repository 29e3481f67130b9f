package runner

import (
	"log/slog"

	"coursecheck/pkg/contracts/domain"
)

// Reporter receives run progress. Row completions are delivered in ascending
// row order; amendments for URL results may interleave out of order but
// always name their row. Finished/Cancelled/Failed is delivered at least
// once per run. Implementations must not block for long: they run on the
// validation path.
type Reporter interface {
	Started(runID string, totalRows int)
	RowCompleted(runID string, row domain.RowResult)
	RowAmended(runID string, rowIndex int, errors []domain.ValidationError)
	Finished(result *domain.ValidationResult)
	Cancelled(partial *domain.ValidationResult)
	Failed(runID string, err error)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) Started(string, int)                                  {}
func (NopReporter) RowCompleted(string, domain.RowResult)                {}
func (NopReporter) RowAmended(string, int, []domain.ValidationError)     {}
func (NopReporter) Finished(*domain.ValidationResult)                    {}
func (NopReporter) Cancelled(*domain.ValidationResult)                   {}
func (NopReporter) Failed(string, error)                                 {}

// SlogReporter logs run progress; used by the one-shot CLI where no
// WebSocket subscriber exists.
type SlogReporter struct {
	Logger *slog.Logger
}

func (r SlogReporter) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r SlogReporter) Started(runID string, totalRows int) {
	r.logger().Info("validation run started",
		slog.String("run_id", runID),
		slog.Int("total_rows", totalRows))
}

func (r SlogReporter) RowCompleted(runID string, row domain.RowResult) {
	if len(row.Errors) == 0 {
		return
	}
	r.logger().Debug("row completed with errors",
		slog.String("run_id", runID),
		slog.Int("row", row.Row.Index),
		slog.Int("error_count", len(row.Errors)))
}

func (r SlogReporter) RowAmended(runID string, rowIndex int, errors []domain.ValidationError) {
	r.logger().Debug("row amended",
		slog.String("run_id", runID),
		slog.Int("row", rowIndex),
		slog.Int("error_count", len(errors)))
}

func (r SlogReporter) Finished(result *domain.ValidationResult) {
	r.logger().Info("validation run finished",
		slog.String("run_id", result.RunID),
		slog.Int("rows", len(result.Rows)),
		slog.Int("errors", result.TotalErrors()))
}

func (r SlogReporter) Cancelled(partial *domain.ValidationResult) {
	r.logger().Info("validation run cancelled",
		slog.String("run_id", partial.RunID),
		slog.Int("rows_processed", len(partial.Rows)))
}

func (r SlogReporter) Failed(runID string, err error) {
	r.logger().Error("validation run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()))
}

// MultiReporter fans events out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) Started(runID string, totalRows int) {
	for _, r := range m {
		r.Started(runID, totalRows)
	}
}

func (m MultiReporter) RowCompleted(runID string, row domain.RowResult) {
	for _, r := range m {
		r.RowCompleted(runID, row)
	}
}

func (m MultiReporter) RowAmended(runID string, rowIndex int, errors []domain.ValidationError) {
	for _, r := range m {
		r.RowAmended(runID, rowIndex, errors)
	}
}

func (m MultiReporter) Finished(result *domain.ValidationResult) {
	for _, r := range m {
		r.Finished(result)
	}
}

func (m MultiReporter) Cancelled(partial *domain.ValidationResult) {
	for _, r := range m {
		r.Cancelled(partial)
	}
}

func (m MultiReporter) Failed(runID string, err error) {
	for _, r := range m {
		r.Failed(runID, err)
	}
}
