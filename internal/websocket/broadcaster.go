package websocket

import (
	"coursecheck/pkg/contracts/domain"
	"coursecheck/pkg/contracts/events"
)

// ProgressBroadcaster forwards run progress to the hub as event envelopes.
// One broadcaster is created per run so the start event can name the source
// and the cancel event can report the planned total.
type ProgressBroadcaster struct {
	hub       *Hub
	source    string
	totalRows int
}

// NewProgressBroadcaster creates a broadcaster for a run reading from the
// named source.
func NewProgressBroadcaster(hub *Hub, source string) *ProgressBroadcaster {
	return &ProgressBroadcaster{hub: hub, source: source}
}

func (b *ProgressBroadcaster) Started(runID string, totalRows int) {
	b.totalRows = totalRows
	b.hub.BroadcastEvent(events.TypeRunStarted, runID, events.RunStarted{
		TotalRows: totalRows,
		Source:    b.source,
	})
}

func (b *ProgressBroadcaster) RowCompleted(runID string, row domain.RowResult) {
	b.hub.BroadcastEvent(events.TypeRowCompleted, runID, events.RowCompleted{
		RowIndex: row.Row.Index,
		Row:      row.Row,
		Errors:   row.Errors,
		Phase:    row.Phase,
	})
}

func (b *ProgressBroadcaster) RowAmended(runID string, rowIndex int, errs []domain.ValidationError) {
	b.hub.BroadcastEvent(events.TypeRowAmended, runID, events.RowAmended{
		RowIndex: rowIndex,
		Errors:   errs,
	})
}

func (b *ProgressBroadcaster) Finished(result *domain.ValidationResult) {
	b.hub.BroadcastEvent(events.TypeRunFinished, result.RunID, events.RunFinished{
		TotalRows:   len(result.Rows),
		TotalErrors: result.TotalErrors(),
		Counts:      result.Counts,
		Duration:    result.FinishedAt.Sub(result.StartedAt),
	})
}

func (b *ProgressBroadcaster) Cancelled(partial *domain.ValidationResult) {
	b.hub.BroadcastEvent(events.TypeRunCancelled, partial.RunID, events.RunCancelled{
		RowsProcessed: len(partial.Rows),
		TotalRows:     b.totalRows,
	})
}

func (b *ProgressBroadcaster) Failed(runID string, err error) {
	b.hub.BroadcastEvent(events.TypeRunFailed, runID, events.RunFailed{
		Reason: err.Error(),
	})
}
