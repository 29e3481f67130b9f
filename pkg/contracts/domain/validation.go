package domain

import (
	"time"
)

// Field identifies a column of the canonical course-catalog schema.
// Raw source headers are mapped onto these names before any rule runs.
type Field string

const (
	FieldInstitutionID   Field = "Institution Id"
	FieldCourseID        Field = "Course Id"
	FieldCourseName      Field = "Course Name"
	FieldL3Tagging       Field = "L3 Tagging"
	FieldDegreeType      Field = "Degree Type"
	FieldCourseType      Field = "Course Type"
	FieldCourseStartDate Field = "Course Start Date"
	FieldCourseLevelURL  Field = "Course Level URL"
	FieldCourseIntakeIDs Field = "Course Intake Ids"
	FieldShow            Field = "Show"
	FieldCourseStatus    Field = "Course Status"
	FieldStudyMode       Field = "Study Mode"
)

// CanonicalFields lists every schema field in display order.
func CanonicalFields() []Field {
	return []Field{
		FieldInstitutionID,
		FieldCourseID,
		FieldCourseName,
		FieldL3Tagging,
		FieldDegreeType,
		FieldCourseType,
		FieldCourseStartDate,
		FieldCourseLevelURL,
		FieldCourseIntakeIDs,
		FieldShow,
		FieldCourseStatus,
		FieldStudyMode,
	}
}

// ErrorKind is the fixed category a validation failure falls into.
type ErrorKind string

const (
	KindNumeric        ErrorKind = "Numeric"
	KindUnique         ErrorKind = "Unique"
	KindCapitalization ErrorKind = "Capitalization"
	KindBlank          ErrorKind = "Blank"
	KindDate           ErrorKind = "Date"
	KindURL            ErrorKind = "URL"
	KindCount          ErrorKind = "Count"
	KindStatus         ErrorKind = "Status"
)

// ErrorKinds lists every kind the rule engine or URL checker can produce.
func ErrorKinds() []ErrorKind {
	return []ErrorKind{
		KindNumeric,
		KindUnique,
		KindCapitalization,
		KindBlank,
		KindDate,
		KindURL,
		KindCount,
		KindStatus,
	}
}

// Row is one record of the dataset after column mapping. Values holds the
// canonical fields that resolved to a source column; Extra preserves
// unmatched source columns verbatim so exports can round-trip them.
// Rows are immutable once read.
type Row struct {
	Index  int               `json:"index"`
	Values map[Field]string  `json:"values"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Value returns the raw cell for a canonical field. The second return is
// false when the field had no source column at all, which is a different
// condition from a mapped-but-empty cell.
func (r Row) Value(f Field) (string, bool) {
	v, ok := r.Values[f]
	return v, ok
}

// ValidationError is a single data error attached to a row. Data errors are
// values, never Go errors; they are collected and reported, and never halt
// a run.
type ValidationError struct {
	RowIndex int       `json:"row_index"`
	Field    Field     `json:"field"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Value    string    `json:"value,omitempty"`
}

// RowPhase tracks whether a row can still receive URL-check amendments.
type RowPhase string

const (
	// RowPhasePendingURL means the synchronous pass finished but one or
	// more reachability probes for this row are still outstanding.
	RowPhasePendingURL RowPhase = "pending_url"
	// RowPhaseFinal means the row's error list will not change again.
	RowPhaseFinal RowPhase = "final"
)

// RowResult pairs a row with every error raised against it.
type RowResult struct {
	Row    Row               `json:"row"`
	Errors []ValidationError `json:"errors"`
	Phase  RowPhase          `json:"phase"`
}

// RunStatus is the orchestrator state machine value for one validation run.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusFinished  RunStatus = "finished"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// ValidationResult is the ordered outcome of one run. Rows are sorted by
// index. A cancelled run carries the rows fully processed before the
// cancellation request; a failed run carries no result at all.
type ValidationResult struct {
	RunID      string                `json:"run_id"`
	Status     RunStatus             `json:"status"`
	Source     string                `json:"source"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Rows       []RowResult           `json:"rows"`
	Counts     map[ErrorKind]int     `json:"counts"`
}

// TotalErrors returns the number of errors across all rows.
func (v *ValidationResult) TotalErrors() int {
	n := 0
	for _, c := range v.Counts {
		n += c
	}
	return n
}

// RowsWithErrors returns how many rows carry at least one error.
func (v *ValidationResult) RowsWithErrors() int {
	n := 0
	for _, rr := range v.Rows {
		if len(rr.Errors) > 0 {
			n++
		}
	}
	return n
}

// ReachabilityResult records the outcome of probing one normalized URL.
// Results are cached per run, keyed by the normalized URL string, and are
// never persisted across runs.
type ReachabilityResult struct {
	URL        string    `json:"url"`
	Reachable  bool      `json:"reachable"`
	StatusCode int       `json:"status_code,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}
