// Package events contains the event contract for WebSocket delivery of
// validation run progress.
package events

import (
	"time"

	"coursecheck/pkg/contracts/domain"
)

// Event types carried on the progress feed. Row completion events are
// delivered in ascending row order; amendment events may interleave out of
// order but always name the row they belong to.
const (
	TypeRunStarted   = "run:started"
	TypeRowCompleted = "run:row_completed"
	TypeRowAmended   = "run:row_amended"
	TypeRunFinished  = "run:finished"
	TypeRunCancelled = "run:cancelled"
	TypeRunFailed    = "run:failed"
)

// Envelope is the wire frame every progress event is wrapped in.
type Envelope struct {
	Type      string      `json:"type"`
	RunID     string      `json:"run_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// RunStarted announces a new run and the total row count, which is known
// before the first row is validated.
type RunStarted struct {
	TotalRows int    `json:"total_rows"`
	Source    string `json:"source"`
}

// RowCompleted is sent once per row as the synchronous pass finishes it.
// The errors listed are the ones known so far; rows with outstanding URL
// probes report Phase pending_url and are amended later.
type RowCompleted struct {
	RowIndex int                      `json:"row_index"`
	Row      domain.Row               `json:"row"`
	Errors   []domain.ValidationError `json:"errors"`
	Phase    domain.RowPhase          `json:"phase"`
}

// RowAmended updates a previously completed row with the full error list
// after its reachability probes resolved.
type RowAmended struct {
	RowIndex int                      `json:"row_index"`
	Errors   []domain.ValidationError `json:"errors"`
}

// RunFinished carries aggregate counts for a run that processed every row.
type RunFinished struct {
	TotalRows   int                       `json:"total_rows"`
	TotalErrors int                       `json:"total_errors"`
	Counts      map[domain.ErrorKind]int  `json:"counts"`
	Duration    time.Duration             `json:"duration"`
}

// RunCancelled carries the size of the partial result kept after a
// cancellation request.
type RunCancelled struct {
	RowsProcessed int `json:"rows_processed"`
	TotalRows     int `json:"total_rows"`
}

// RunFailed reports an unrecoverable input error. Individual row errors
// never produce this event.
type RunFailed struct {
	Reason string `json:"reason"`
}
