// Package report derives the read-only views an exporter needs from a
// finished or cancelled validation result: the annotated data grid, the
// aggregate summary, and the flat error list.
package report

import (
	"sort"

	"coursecheck/internal/classify"
	"coursecheck/pkg/contracts/domain"
)

// Cell is one grid value, annotated with an error classification when a
// rule flagged it. At most one classification is shown per cell; the first
// raised error for the field wins.
type Cell struct {
	Value          string                  `json:"value"`
	Kind           domain.ErrorKind        `json:"kind,omitempty"`
	Classification *classify.Classification `json:"classification,omitempty"`
}

// GridRow is one annotated data row plus its total error count.
type GridRow struct {
	Index      int    `json:"index"`
	Cells      []Cell `json:"cells"`
	ErrorCount int    `json:"error_count"`
}

// Summary aggregates error counts for the whole run.
type Summary struct {
	TotalRows      int                      `json:"total_rows"`
	TotalErrors    int                      `json:"total_errors"`
	RowsWithErrors int                      `json:"rows_with_errors"`
	ByKind         map[domain.ErrorKind]int `json:"by_kind"`
	ByField        map[domain.Field]int     `json:"by_field"`
	Status         domain.RunStatus         `json:"status"`
}

// FlatError is one entry of the ordered flat error list.
type FlatError struct {
	RowIndex int              `json:"row_index"`
	Field    domain.Field     `json:"field"`
	Kind     domain.ErrorKind `json:"kind"`
	Message  string           `json:"message"`
	Value    string           `json:"value,omitempty"`
}

// Report is the complete export-facing view of one run. It takes read-only
// ownership of the result; nothing here mutates it.
type Report struct {
	RunID   string      `json:"run_id"`
	Source  string      `json:"source"`
	Headers []string    `json:"headers"`
	Rows    []GridRow   `json:"rows"`
	Summary Summary     `json:"summary"`
	Errors  []FlatError `json:"errors"`
}

// Build assembles the three views from a result. Cancelled partial results
// are accepted; their rows are reported like any other.
func Build(result *domain.ValidationResult) *Report {
	headers := headerOrder(result)

	rep := &Report{
		RunID:   result.RunID,
		Source:  result.Source,
		Headers: headers,
		Summary: Summary{
			TotalRows: len(result.Rows),
			ByKind:    make(map[domain.ErrorKind]int),
			ByField:   make(map[domain.Field]int),
			Status:    result.Status,
		},
	}

	for _, rr := range result.Rows {
		errByField := make(map[domain.Field]domain.ValidationError)
		for _, e := range rr.Errors {
			if _, seen := errByField[e.Field]; !seen {
				errByField[e.Field] = e
			}
			rep.Summary.ByKind[e.Kind]++
			rep.Summary.ByField[e.Field]++
			rep.Summary.TotalErrors++
			rep.Errors = append(rep.Errors, FlatError{
				RowIndex: e.RowIndex,
				Field:    e.Field,
				Kind:     e.Kind,
				Message:  e.Message,
				Value:    e.Value,
			})
		}
		if len(rr.Errors) > 0 {
			rep.Summary.RowsWithErrors++
		}

		grid := GridRow{Index: rr.Row.Index, ErrorCount: len(rr.Errors)}
		for _, h := range headers {
			cell := Cell{}
			if f, canonical := fieldForHeader(h); canonical {
				cell.Value = rr.Row.Values[f]
				if e, flagged := errByField[f]; flagged {
					c := classify.For(e.Kind)
					cell.Kind = e.Kind
					cell.Classification = &c
				}
			} else {
				cell.Value = rr.Row.Extra[h]
			}
			grid.Cells = append(grid.Cells, cell)
		}
		rep.Rows = append(rep.Rows, grid)
	}

	// The flat list is ordered by row, then field name for determinism.
	sort.SliceStable(rep.Errors, func(i, j int) bool {
		if rep.Errors[i].RowIndex != rep.Errors[j].RowIndex {
			return rep.Errors[i].RowIndex < rep.Errors[j].RowIndex
		}
		return rep.Errors[i].Field < rep.Errors[j].Field
	})

	return rep
}

// headerOrder lays out the grid: canonical fields first in schema order,
// then any preserved unmapped columns found in the data.
func headerOrder(result *domain.ValidationResult) []string {
	headers := make([]string, 0, len(domain.CanonicalFields()))
	for _, f := range domain.CanonicalFields() {
		headers = append(headers, string(f))
	}

	extra := make(map[string]bool)
	var extras []string
	for _, rr := range result.Rows {
		for h := range rr.Row.Extra {
			if !extra[h] {
				extra[h] = true
				extras = append(extras, h)
			}
		}
	}
	sort.Strings(extras)
	return append(headers, extras...)
}

// fieldForHeader reports whether a grid header is a canonical field.
func fieldForHeader(h string) (domain.Field, bool) {
	for _, f := range domain.CanonicalFields() {
		if string(f) == h {
			return f, true
		}
	}
	return "", false
}
