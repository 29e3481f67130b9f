package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"coursecheck/internal/config"
	"coursecheck/internal/source"
	"coursecheck/pkg/contracts/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		Rules: config.RulesConfig{
			Delimiter:         ",",
			LowercaseWords:    []string{"and", "or", "of", "the", "in", "for", "to", "a", "an"},
			HeaderAliases:     config.DefaultHeaderAliases(),
			AllowedShow:       []string{"Yes", "No"},
			AllowedStatus:     []string{"Open", "Closed"},
			AllowedStudyModes: []string{"Full time", "Part time"},
		},
		URL: config.URLConfig{
			Timeout:   2 * time.Second,
			Retries:   0,
			Workers:   4,
			UserAgent: "coursecheck-test",
		},
	}
}

func canonicalHeaders() []string {
	fields := domain.CanonicalFields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = string(f)
	}
	return headers
}

// record builds one dataset record in canonical column order.
func record(courseID, name, url, intakes, dates string) []string {
	return []string{
		"1001",        // Institution Id
		courseID,      // Course Id
		name,          // Course Name
		"Business",    // L3 Tagging
		"Bachelor",    // Degree Type
		"Undergrad",   // Course Type
		dates,         // Course Start Date
		url,           // Course Level URL
		intakes,       // Course Intake Ids
		"Yes",         // Show
		"Open",        // Course Status
		"Full time",   // Study Mode
	}
}

// fakeSource serves an in-memory dataset, optionally failing to load.
type fakeSource struct {
	ds      *source.Dataset
	loadErr error
	block   chan struct{} // when set, Load waits for it to close
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Load(ctx context.Context) (*source.Dataset, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.ds, nil
}

// recordingReporter captures every progress event; safe for concurrent use.
type recordingReporter struct {
	mu         sync.Mutex
	started    int
	totalRows  int
	completed  []int
	amended    map[int][][]domain.ValidationError
	finished   *domain.ValidationResult
	cancelled  *domain.ValidationResult
	failed     error
	onComplete func(rowIndex int)
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{amended: make(map[int][][]domain.ValidationError)}
}

func (r *recordingReporter) Started(runID string, totalRows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	r.totalRows = totalRows
}

func (r *recordingReporter) RowCompleted(runID string, row domain.RowResult) {
	r.mu.Lock()
	r.completed = append(r.completed, row.Row.Index)
	cb := r.onComplete
	r.mu.Unlock()
	if cb != nil {
		cb(row.Row.Index)
	}
}

func (r *recordingReporter) RowAmended(runID string, rowIndex int, errs []domain.ValidationError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.amended[rowIndex] = append(r.amended[rowIndex], errs)
}

func (r *recordingReporter) Finished(result *domain.ValidationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = result
}

func (r *recordingReporter) Cancelled(partial *domain.ValidationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = partial
}

func (r *recordingReporter) Failed(runID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = err
}

func TestRunFinished(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer badSrv.Close()

	ds := &source.Dataset{
		Headers: canonicalHeaders(),
		Records: [][]string{
			record("1", "Business and Technology", okSrv.URL, "A1", "2026-09-01"),
			record("2", "bad name", badSrv.URL, "A2", "2026-09-01"),
			record("x", "Engineering", okSrv.URL, "A3", "2026-09-01"),
		},
	}

	rep := newRecordingReporter()
	r := New(testConfig(), nil, nil)
	result, err := r.Run(context.Background(), &fakeSource{ds: ds}, rep)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, domain.RunStatusFinished, result.Status)
	assert.Equal(t, "fake", result.Source)
	require.Len(t, result.Rows, 3)

	// Row order and phases.
	assert.Equal(t, []int{0, 1, 2}, rep.completed)
	for i, rr := range result.Rows {
		assert.Equal(t, i, rr.Row.Index)
		assert.Equal(t, domain.RowPhaseFinal, rr.Phase)
	}

	assert.Empty(t, result.Rows[0].Errors, "clean row carries no errors")

	// Row 1: capitalization plus the unreachable URL amendment.
	kinds := make(map[domain.ErrorKind]bool)
	for _, e := range result.Rows[1].Errors {
		kinds[e.Kind] = true
	}
	assert.True(t, kinds[domain.KindCapitalization])
	assert.True(t, kinds[domain.KindURL])

	// Row 2: non-numeric course id.
	require.NotEmpty(t, result.Rows[2].Errors)
	assert.Equal(t, domain.KindNumeric, result.Rows[2].Errors[0].Kind)

	// Counts cover every recorded error.
	total := 0
	for _, rr := range result.Rows {
		total += len(rr.Errors)
	}
	assert.Equal(t, total, result.TotalErrors())
	assert.Equal(t, 2, result.RowsWithErrors())

	assert.Equal(t, 1, rep.started)
	assert.Equal(t, 3, rep.totalRows)
	require.NotNil(t, rep.finished)
	assert.Nil(t, rep.cancelled)

	// Unreachable URL produced an amendment event naming row 1.
	assert.NotEmpty(t, rep.amended[1])

	assert.Equal(t, domain.RunStatusFinished, r.Status())
}

func TestRunSharedUnreachableURL(t *testing.T) {
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer badSrv.Close()

	ds := &source.Dataset{
		Headers: canonicalHeaders(),
		Records: [][]string{
			record("1", "Engineering", badSrv.URL, "A1", "2026-09-01"),
			record("2", "Engineering", badSrv.URL, "A2", "2026-09-01"),
		},
	}

	r := New(testConfig(), nil, nil)
	result, err := r.Run(context.Background(), &fakeSource{ds: ds}, nil)
	require.NoError(t, err)

	for i, rr := range result.Rows {
		require.Len(t, rr.Errors, 1, "row %d", i)
		assert.Equal(t, domain.KindURL, rr.Errors[0].Kind)
	}
}

func TestRunDeferredIntakeReuse(t *testing.T) {
	ds := &source.Dataset{
		Headers: canonicalHeaders(),
		Records: [][]string{
			record("1", "Engineering", "https://127.0.0.1:1/x", "SHARED", "2026-09-01"),
			record("2", "Engineering", "https://127.0.0.1:1/x", "SHARED", "2026-09-01"),
		},
	}

	// The unroutable URL makes both rows fail reachability too; the point
	// here is the deferred intake error landing on the later row.
	rep := newRecordingReporter()
	r := New(testConfig(), nil, nil)
	result, err := r.Run(context.Background(), &fakeSource{ds: ds}, rep)
	require.NoError(t, err)

	var intakeErrs []domain.ValidationError
	for _, e := range result.Rows[1].Errors {
		if e.Field == domain.FieldCourseIntakeIDs {
			intakeErrs = append(intakeErrs, e)
		}
	}
	require.Len(t, intakeErrs, 1)
	assert.Equal(t, domain.KindCount, intakeErrs[0].Kind)

	for _, e := range result.Rows[0].Errors {
		assert.NotEqual(t, domain.FieldCourseIntakeIDs, e.Field,
			"first occurrence stays accepted")
	}
}

func TestRunCancellation(t *testing.T) {
	records := make([][]string, 50)
	for i := range records {
		// No URLs: keeps the cancelled run free of outstanding probes.
		records[i] = record(fmt.Sprintf("%d", i+1), "Engineering", "", fmt.Sprintf("A%d", i), "2026-09-01")
	}
	ds := &source.Dataset{Headers: canonicalHeaders(), Records: records}

	rep := newRecordingReporter()
	r := New(testConfig(), nil, nil)
	rep.onComplete = func(rowIndex int) {
		if rowIndex == 4 {
			assert.True(t, r.Cancel())
		}
	}

	partial, err := r.Run(context.Background(), &fakeSource{ds: ds}, rep)
	require.NoError(t, err, "cancellation is not an error")
	require.NotNil(t, partial)

	assert.Equal(t, domain.RunStatusCancelled, partial.Status)
	assert.GreaterOrEqual(t, len(partial.Rows), 5)
	assert.Less(t, len(partial.Rows), 50)
	for i, rr := range partial.Rows {
		assert.Equal(t, i, rr.Row.Index)
		assert.Equal(t, domain.RowPhaseFinal, rr.Phase)
	}

	require.NotNil(t, rep.cancelled)
	assert.Nil(t, rep.finished)
	assert.Equal(t, domain.RunStatusCancelled, r.Status())
}

func TestRunFailedLoad(t *testing.T) {
	rep := newRecordingReporter()
	r := New(testConfig(), nil, nil)

	result, err := r.Run(context.Background(), &fakeSource{loadErr: fmt.Errorf("boom")}, rep)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, domain.RunStatusFailed, r.Status())
	require.NotNil(t, rep.failed)
	assert.Contains(t, rep.failed.Error(), "boom")
}

func TestRunSerialized(t *testing.T) {
	block := make(chan struct{})
	blocking := &fakeSource{
		ds:    &source.Dataset{Headers: canonicalHeaders()},
		block: block,
	}

	r := New(testConfig(), nil, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.Run(context.Background(), blocking, nil)
		assert.NoError(t, err)
	}()

	// Wait until the first run holds the running state.
	require.Eventually(t, func() bool {
		return r.Status() == domain.RunStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	_, err := r.Run(context.Background(), &fakeSource{ds: &source.Dataset{Headers: canonicalHeaders()}}, nil)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(block)
	<-done
	assert.Equal(t, domain.RunStatusFinished, r.Status())
}

// Two runs over the same dataset report identical error counts when no
// reachability probes are involved.
func TestRunIdempotentCounts(t *testing.T) {
	ds := &source.Dataset{
		Headers: canonicalHeaders(),
		Records: [][]string{
			record("1", "bad name", "", "A1", "2026-99-01"),
			record("1", "Engineering", "", "A1", "2026-09-01"),
		},
	}

	r := New(testConfig(), nil, nil)
	first, err := r.Run(context.Background(), &fakeSource{ds: ds}, nil)
	require.NoError(t, err)
	second, err := r.Run(context.Background(), &fakeSource{ds: ds}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Counts, second.Counts)
	assert.NotEqual(t, first.RunID, second.RunID)
}

// Every run is wrapped in a span carrying the run outcome.
func TestRunEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ds := &source.Dataset{
		Headers: canonicalHeaders(),
		Records: [][]string{
			record("1", "Engineering", "", "A1", "2026-09-01"),
			record("x", "bad name", "", "A2", "2026-09-01"),
		},
	}

	r := New(testConfig(), nil, nil)
	result, err := r.Run(context.Background(), &fakeSource{ds: ds}, nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "run.validate", span.Name())

	attrs := make(map[attribute.Key]attribute.Value, len(span.Attributes()))
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, result.RunID, attrs["run.id"].AsString())
	assert.Equal(t, "fake", attrs["run.source"].AsString())
	assert.Equal(t, int64(2), attrs["run.total_rows"].AsInt64())
	assert.Equal(t, string(domain.RunStatusFinished), attrs["run.status"].AsString())
	assert.Equal(t, int64(len(result.Rows)), attrs["run.rows"].AsInt64())
	assert.Equal(t, int64(result.TotalErrors()), attrs["run.errors"].AsInt64())
}
