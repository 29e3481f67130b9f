// Command validate runs one validation pass over a course catalog extract
// and writes the highlighted report to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"coursecheck/internal/config"
	"coursecheck/internal/exporter"
	"coursecheck/internal/infrastructure"
	"coursecheck/internal/report"
	"coursecheck/internal/runner"
	"coursecheck/internal/source"
	"coursecheck/pkg/contracts/domain"
)

func main() {
	configFile := flag.String("config", "coursecheck.yaml", "path to the YAML configuration file")
	csvPath := flag.String("csv", "", "path to a CSV extract")
	excelPath := flag.String("excel", "", "path to an Excel workbook")
	excelSheet := flag.String("sheet", "", "worksheet name inside the workbook (defaults to the first)")
	sheetsURL := flag.String("sheets", "", "Google Sheets URL or spreadsheet id")
	format := flag.String("format", "xlsx", "export format: xlsx or csv")
	outDir := flag.String("out", "", "output directory (overrides configuration)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Export.Dir = *outDir
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	src, err := pickSource(cfg, *csvPath, *excelPath, *excelSheet, *sheetsURL)
	if err != nil {
		logger.Error("Invalid source selection", "error", err)
		flag.Usage()
		os.Exit(2)
	}

	// Ctrl-C cancels the run; a partial report is still written.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New(cfg, logger, nil)
	result, err := r.Run(ctx, src, runner.SlogReporter{Logger: logger})
	if err != nil {
		logger.Error("Validation run failed", "error", err)
		os.Exit(1)
	}

	rep := report.Build(result)
	printSummary(rep)

	path, err := export(cfg, logger, rep, *format)
	if err != nil {
		logger.Error("Export failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Report written to %s\n", path)

	if result.Status == domain.RunStatusCancelled {
		os.Exit(130)
	}
}

// pickSource selects exactly one dataset source from the flags.
func pickSource(cfg *config.Config, csvPath, excelPath, excelSheet, sheetsURL string) (source.Source, error) {
	given := 0
	for _, s := range []string{csvPath, excelPath, sheetsURL} {
		if s != "" {
			given++
		}
	}
	if given != 1 {
		return nil, fmt.Errorf("exactly one of -csv, -excel or -sheets is required")
	}
	switch {
	case csvPath != "":
		return &source.CSVSource{Path: csvPath}, nil
	case excelPath != "":
		return &source.ExcelSource{Path: excelPath, Sheet: excelSheet}, nil
	default:
		id, err := source.ExtractSpreadsheetID(sheetsURL)
		if err != nil {
			return nil, err
		}
		return &source.SheetsSource{SpreadsheetID: id, Config: cfg.Sheets}, nil
	}
}

func export(cfg *config.Config, logger *slog.Logger, rep *report.Report, format string) (string, error) {
	switch strings.ToLower(format) {
	case "xlsx":
		return exporter.NewExcelWriter(cfg.Export.Dir, logger).Write(rep)
	case "csv":
		return exporter.NewCSVWriter(cfg.Export.Dir, logger).Write(rep)
	default:
		return "", fmt.Errorf("unknown format %q, expected xlsx or csv", format)
	}
}

func printSummary(rep *report.Report) {
	fmt.Printf("Rows validated: %d\n", rep.Summary.TotalRows)
	fmt.Printf("Rows with errors: %d\n", rep.Summary.RowsWithErrors)
	fmt.Printf("Total errors: %d\n", rep.Summary.TotalErrors)
	for _, kind := range domain.ErrorKinds() {
		if count := rep.Summary.ByKind[kind]; count > 0 {
			fmt.Printf("  %-16s %d\n", kind, count)
		}
	}
}
