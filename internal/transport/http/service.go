package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"coursecheck/internal/config"
	"coursecheck/internal/exporter"
	"coursecheck/internal/report"
	"coursecheck/internal/runner"
	"coursecheck/internal/source"
	"coursecheck/internal/websocket"
	"coursecheck/pkg/contracts/domain"
)

// RunService owns the single active validation run and the result of the
// most recent one.
type RunService struct {
	cfg    *config.Config
	runner *runner.Runner
	hub    *websocket.Hub
	logger *slog.Logger

	uploadDir string

	mu         sync.RWMutex
	lastResult *domain.ValidationResult
	lastReport *report.Report
}

// NewRunService wires the orchestrator to the progress hub and exporters.
func NewRunService(cfg *config.Config, r *runner.Runner, hub *websocket.Hub, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{
		cfg:       cfg,
		runner:    r,
		hub:       hub,
		logger:    logger.With(slog.String("component", "run_service")),
		uploadDir: filepath.Join(cfg.Export.Dir, "uploads"),
	}
}

// SaveUpload stores an uploaded spreadsheet and returns its server path.
func (s *RunService) SaveUpload(file multipart.File, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv", ".xlsx", ".xlsm":
	default:
		return "", fmt.Errorf("unsupported file type %q, expected .csv or .xlsx", ext)
	}

	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), filepath.Base(filename)))

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

// buildSource turns a start request into a loadable dataset source.
func (s *RunService) buildSource(req *StartRunRequest) (source.Source, error) {
	switch req.SourceType {
	case "csv":
		return &source.CSVSource{Path: req.Path}, nil
	case "excel":
		return &source.ExcelSource{Path: req.Path, Sheet: req.Sheet}, nil
	case "sheets":
		id, err := source.ExtractSpreadsheetID(req.Spreadsheet)
		if err != nil {
			return nil, err
		}
		return &source.SheetsSource{SpreadsheetID: id, Config: s.cfg.Sheets}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", req.SourceType)
	}
}

// Start launches a validation run in the background. Only one run may be in
// flight at a time.
func (s *RunService) Start(req *StartRunRequest) error {
	if s.runner.Status() == domain.RunStatusRunning {
		return runner.ErrRunInProgress
	}

	src, err := s.buildSource(req)
	if err != nil {
		return err
	}

	rep := runner.MultiReporter{
		runner.SlogReporter{Logger: s.logger},
		websocket.NewProgressBroadcaster(s.hub, src.Name()),
	}

	go func() {
		result, err := s.runner.Run(context.Background(), src, rep)
		if err != nil {
			s.logger.Error("validation run failed",
				slog.String("source", src.Name()),
				slog.String("error", err.Error()))
			return
		}
		s.mu.Lock()
		s.lastResult = result
		s.lastReport = report.Build(result)
		s.mu.Unlock()
	}()
	return nil
}

// Cancel requests cancellation of the active run. It returns false when no
// run is in flight.
func (s *RunService) Cancel() bool {
	return s.runner.Cancel()
}

// Status reports the orchestrator state and, if a run has completed, its
// identifier.
func (s *RunService) Status() (domain.RunStatus, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := s.runner.Status()
	runID := ""
	if s.lastResult != nil {
		runID = s.lastResult.RunID
	}
	return status, runID
}

// Report returns the report built from the most recent completed run, or nil
// when none exists yet.
func (s *RunService) Report() *report.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Export writes the last report to disk in the requested format and returns
// the file path.
func (s *RunService) Export(format string) (string, error) {
	rep := s.Report()
	if rep == nil {
		return "", fmt.Errorf("no completed run to export")
	}
	switch format {
	case "xlsx":
		return exporter.NewExcelWriter(s.cfg.Export.Dir, s.logger).Write(rep)
	case "csv":
		return exporter.NewCSVWriter(s.cfg.Export.Dir, s.logger).Write(rep)
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
}
