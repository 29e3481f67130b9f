// Package source loads course-catalog datasets from spreadsheets, CSV files
// and Google Sheets. A dataset is an ordered, finite snapshot: the total row
// count is known before validation starts and the data does not change for
// the duration of one run.
package source

import "context"

// Dataset is one loaded table: a header row plus data records in source
// order. Records may be ragged; the column mapper pads them against the
// headers.
type Dataset struct {
	Headers []string
	Records [][]string
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Source is a restartable-per-run loader. Load failures are system errors:
// the run fails without producing a result, because the input set itself
// could not be established.
type Source interface {
	// Name identifies the source for logs and result metadata.
	Name() string
	// Load materializes the dataset.
	Load(ctx context.Context) (*Dataset, error)
}
