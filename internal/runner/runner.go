// Package runner drives one validation run end to end: it loads the
// dataset, maps columns, streams rows through the rule engine, schedules
// reachability probes, and assembles the final result while reporting
// progress.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"coursecheck/internal/config"
	"coursecheck/internal/infrastructure"
	"coursecheck/internal/rules"
	"coursecheck/internal/schema"
	"coursecheck/internal/source"
	"coursecheck/internal/urlcheck"
	"coursecheck/pkg/contracts/domain"
)

// ErrRunInProgress is returned when a run is started while another one is
// still active.
var ErrRunInProgress = errors.New("a validation run is already active")

const tracerName = "coursecheck.runner"

// Runner executes validation runs. Runs are serialized: starting a run while
// one is active is an error. The Runner owns the per-run RuleContext and
// result; both are created at run start and handed off (read-only) at run
// end.
type Runner struct {
	rulesCfg config.RulesConfig
	engine   *rules.Engine
	checker  *urlcheck.Checker
	logger   *slog.Logger
	metrics  *infrastructure.RunMetrics

	mu     sync.Mutex
	status domain.RunStatus
	cancel context.CancelFunc
}

// New creates a runner. metrics may be nil.
func New(cfg *config.Config, logger *slog.Logger, metrics *infrastructure.RunMetrics) *Runner {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Runner{
		rulesCfg: cfg.Rules,
		engine:   rules.NewEngine(cfg.Rules),
		checker:  urlcheck.New(cfg.URL, logger, metrics),
		logger:   logger.With(slog.String("component", "runner")),
		metrics:  metrics,
		status:   domain.RunStatusIdle,
	}
}

// Status returns the current state machine value.
func (r *Runner) Status() domain.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Cancel requests cooperative cancellation of the active run and reports
// whether a run was in flight. Cancellation is honored between rows and
// before each probe dispatch; probes already in flight are abandoned, not
// force-killed.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == domain.RunStatusRunning && r.cancel != nil {
		r.cancel()
		return true
	}
	return false
}

// resultState guards the incrementally built result against the race
// between the synchronous pass and URL amendments from the worker pool.
type resultState struct {
	mu      sync.Mutex
	rows    []*domain.RowResult
	byIndex map[int]*domain.RowResult
	counts  map[domain.ErrorKind]int
	pending map[int]int // row index -> outstanding probes
}

func newResultState() *resultState {
	return &resultState{
		byIndex: make(map[int]*domain.RowResult),
		counts:  make(map[domain.ErrorKind]int),
		pending: make(map[int]int),
	}
}

// addRow registers a freshly validated row.
func (s *resultState) addRow(rr *domain.RowResult, probes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rr)
	s.byIndex[rr.Row.Index] = rr
	for _, e := range rr.Errors {
		s.counts[e.Kind]++
	}
	if probes > 0 {
		s.pending[rr.Row.Index] = probes
	}
}

// amend appends errors to an existing row and returns the updated error
// list. Amendments never touch any other row.
func (s *resultState) amend(rowIndex int, errs []domain.ValidationError) []domain.ValidationError {
	s.mu.Lock()
	defer s.mu.Unlock()
	rr, ok := s.byIndex[rowIndex]
	if !ok {
		return nil
	}
	rr.Errors = append(rr.Errors, errs...)
	for _, e := range errs {
		s.counts[e.Kind]++
	}
	return append([]domain.ValidationError(nil), rr.Errors...)
}

// probeResolved decrements the outstanding-probe count for a row. It
// returns true when the row just became final.
func (s *resultState) probeResolved(rowIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[rowIndex]--
	if s.pending[rowIndex] <= 0 {
		delete(s.pending, rowIndex)
		if rr, ok := s.byIndex[rowIndex]; ok {
			rr.Phase = domain.RowPhaseFinal
		}
		return true
	}
	return false
}

// errorsFor returns a snapshot of a row's error list.
func (s *resultState) errorsFor(rowIndex int) []domain.ValidationError {
	s.mu.Lock()
	defer s.mu.Unlock()
	rr, ok := s.byIndex[rowIndex]
	if !ok {
		return nil
	}
	return append([]domain.ValidationError(nil), rr.Errors...)
}

// snapshot assembles the immutable ValidationResult.
func (s *resultState) snapshot(runID, src string, status domain.RunStatus, started time.Time) *domain.ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := &domain.ValidationResult{
		RunID:      runID,
		Status:     status,
		Source:     src,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Counts:     make(map[domain.ErrorKind]int, len(s.counts)),
	}
	for _, rr := range s.rows {
		rr.Phase = domain.RowPhaseFinal
		result.Rows = append(result.Rows, *rr)
	}
	for k, v := range s.counts {
		result.Counts[k] = v
	}
	return result
}

// Run executes one validation run over the given source, reporting progress
// to rep. It returns the finished or partial (cancelled) result. A nil
// result with an error means the input set could not be established; row
// data errors never cause that.
func (r *Runner) Run(ctx context.Context, src source.Source, rep Reporter) (*domain.ValidationResult, error) {
	if rep == nil {
		rep = NopReporter{}
	}

	runID := uuid.New().String()

	r.mu.Lock()
	if r.status == domain.RunStatusRunning {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.status = domain.RunStatusRunning
	r.cancel = cancel
	r.mu.Unlock()

	runCtx, span := otel.Tracer(tracerName).Start(runCtx, "run.validate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.source", src.Name()),
		))
	defer span.End()

	setStatus := func(st domain.RunStatus) {
		r.mu.Lock()
		r.status = st
		r.cancel = nil
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.RecordRunCompleted(context.Background(), string(st))
		}
	}

	started := time.Now()
	logger := r.logger.With(slog.String("run_id", runID), slog.String("source", src.Name()))
	logger.Info("loading dataset")

	ds, err := src.Load(runCtx)
	if err != nil {
		setStatus(domain.RunStatusFailed)
		wrapped := fmt.Errorf("failed to load dataset from %s: %w", src.Name(), err)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, "dataset load failed")
		rep.Failed(runID, wrapped)
		return nil, wrapped
	}

	mapping := schema.Map(ds.Headers, r.rulesCfg.HeaderAliases)
	if len(mapping.Absent) > 0 {
		logger.Warn("canonical fields missing from source",
			slog.Any("absent", mapping.Absent))
	}

	rc := rules.NewContext(mapping.Absent)
	session := r.checker.Open(runCtx, rc.URLCache)
	state := newResultState()

	span.SetAttributes(attribute.Int("run.total_rows", ds.Len()))
	rep.Started(runID, ds.Len())
	logger.Info("validation run started", slog.Int("total_rows", ds.Len()))

	// URL amendments arrive concurrently with the main pass. Each row gets
	// one amendment event, once its last probe resolved.
	var amender sync.WaitGroup
	amender.Add(1)
	go func() {
		defer amender.Done()
		for res := range session.Results() {
			if !res.Reachability.Reachable {
				verr := domain.ValidationError{
					RowIndex: res.RowIndex,
					Field:    res.Field,
					Kind:     domain.KindURL,
					Message:  unreachableMessage(res.Reachability),
					Value:    res.URL,
				}
				state.amend(res.RowIndex, []domain.ValidationError{verr})
				if r.metrics != nil {
					r.metrics.RecordError(runCtx, string(domain.KindURL))
				}
			}
			if state.probeResolved(res.RowIndex) {
				rep.RowAmended(runID, res.RowIndex, state.errorsFor(res.RowIndex))
			}
		}
	}()

	// Main pass: synchronous rules in row order. The cancellation flag is
	// checked between rows.
	cancelled := false
	for i, record := range ds.Records {
		if runCtx.Err() != nil {
			cancelled = true
			break
		}

		row := mapping.BuildRow(i, ds.Headers, record)
		source.CleanRow(row, r.rulesCfg.Delimiter)

		errs, probes := r.engine.Validate(row, rc)

		phase := domain.RowPhaseFinal
		if len(probes) > 0 {
			phase = domain.RowPhasePendingURL
		}
		rr := &domain.RowResult{Row: row, Errors: errs, Phase: phase}
		state.addRow(rr, len(probes))

		if r.metrics != nil {
			r.metrics.RowsValidated.Add(runCtx, 1)
			for _, e := range errs {
				r.metrics.RecordError(runCtx, string(e.Kind))
			}
		}

		rep.RowCompleted(runID, *rr)

		for _, u := range probes {
			session.Submit(urlcheck.Request{
				RowIndex: i,
				Field:    domain.FieldCourseLevelURL,
				URL:      u,
			})
		}
	}

	// Deferred cross-row checks amend rows already reported.
	if !cancelled {
		for _, verr := range r.engine.Finalize(rc) {
			updated := state.amend(verr.RowIndex, []domain.ValidationError{verr})
			if r.metrics != nil {
				r.metrics.RecordError(runCtx, string(verr.Kind))
			}
			rep.RowAmended(runID, verr.RowIndex, updated)
		}
	}

	session.Close()
	amender.Wait()

	if cancelled || runCtx.Err() != nil {
		partial := state.snapshot(runID, src.Name(), domain.RunStatusCancelled, started)
		setStatus(domain.RunStatusCancelled)
		span.SetAttributes(
			attribute.String("run.status", string(domain.RunStatusCancelled)),
			attribute.Int("run.rows", len(partial.Rows)),
			attribute.Int("run.errors", partial.TotalErrors()),
		)
		logger.Info("validation run cancelled",
			slog.Int("rows_processed", len(partial.Rows)),
			slog.Int("total_rows", ds.Len()))
		rep.Cancelled(partial)
		return partial, nil
	}

	result := state.snapshot(runID, src.Name(), domain.RunStatusFinished, started)
	setStatus(domain.RunStatusFinished)
	span.SetAttributes(
		attribute.String("run.status", string(domain.RunStatusFinished)),
		attribute.Int("run.rows", len(result.Rows)),
		attribute.Int("run.errors", result.TotalErrors()),
	)
	logger.Info("validation run finished",
		slog.Int("rows", len(result.Rows)),
		slog.Int("errors", result.TotalErrors()),
		slog.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))
	rep.Finished(result)
	return result, nil
}

// unreachableMessage renders a reachability failure as a row-level message.
func unreachableMessage(r domain.ReachabilityResult) string {
	if r.StatusCode != 0 {
		return fmt.Sprintf("URL returned %d (%s): %s", r.StatusCode, r.Reason, r.URL)
	}
	if r.Reason != "" {
		return fmt.Sprintf("URL unreachable (%s): %s", r.Reason, r.URL)
	}
	return fmt.Sprintf("URL unreachable: %s", r.URL)
}
