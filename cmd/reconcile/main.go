// Command reconcile runs the sales reconciliation pipeline over two CSV files
// and writes the merged, mapped and filtered tables, the exception workbook
// and the report workbook to a directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/salesrecon/internal/config"
	"github.com/JonMunkholm/salesrecon/internal/core"
	"github.com/JonMunkholm/salesrecon/internal/export"
	"github.com/JonMunkholm/salesrecon/internal/job"
	"github.com/JonMunkholm/salesrecon/internal/logging"
	"github.com/JonMunkholm/salesrecon/internal/report"
)

// Output file names written to the -out directory.
const (
	mergedFile     = "merged.csv"
	mappedFile     = "mapped.csv"
	filteredFile   = "filtered.csv"
	exceptionsFile = "exceptions.xlsx"
	reportsFile    = "reports.xlsx"
)

// output is one file written to the output directory.
type output struct {
	name  string
	write func(io.Writer) error
}

type options struct {
	primary   string
	secondary string
	request   string
	out       string
}

func main() {
	var opts options
	flag.StringVar(&opts.primary, "primary", "", "primary sales CSV (required)")
	flag.StringVar(&opts.secondary, "secondary", "", "secondary sales CSV")
	flag.StringVar(&opts.request, "request", "", "YAML request: mapping, policies, filters, rules, reports")
	flag.StringVar(&opts.out, "out", ".", "output directory")
	logLevel := flag.String("log-level", "info", "debug | info | warn | error")
	logFormat := flag.String("log-format", "text", "text | json")
	flag.Parse()

	logger := logging.New(os.Stderr, *logLevel, *logFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	pipeline := core.Options{
		Fields:         cfg.Pipeline.Fields(),
		EnumerationCap: cfg.Pipeline.EnumerationCap,
	}
	if err := run(context.Background(), opts, pipeline); err != nil {
		logger.Error("reconcile failed", "error", err, "hint", core.FormatUserError(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, pipeline core.Options) error {
	if opts.primary == "" {
		return core.ErrNoPrimary
	}

	var (
		primary, secondary *core.Table
		inputs             errgroup.Group
	)
	inputs.Go(func() (err error) {
		primary, err = readTable(opts.primary)
		return err
	})
	if opts.secondary != "" {
		inputs.Go(func() (err error) {
			secondary, err = readTable(opts.secondary)
			return err
		})
	}
	if err := inputs.Wait(); err != nil {
		return err
	}

	req, err := loadRequest(opts.request)
	if err != nil {
		return err
	}

	svc := core.NewService(pipeline)
	res, err := svc.Run(ctx, req.Pipeline(primary, secondary))
	if err != nil {
		return err
	}
	for _, e := range res.MappingErrors {
		slog.Warn("mapping entry rejected", "code", e.Code, "field", e.Field, "target", e.Value)
	}

	var reports report.Results
	if len(req.Reports) > 0 {
		var warnings []core.Warning
		reports, warnings = report.Generate(res.Filtered, req.Reports, svc.Fields())
		for _, w := range warnings {
			slog.Warn("report warning", "code", w.Code, "field", w.Field, "message", w.Message)
		}
	}

	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	writes := []output{
		{mergedFile, func(w io.Writer) error { return export.WriteCSV(w, res.Merged) }},
		{filteredFile, func(w io.Writer) error { return export.WriteCSV(w, res.Filtered) }},
		{exceptionsFile, func(w io.Writer) error { return export.WriteWorkbook(w, export.ExceptionSheets(res.Exceptions)) }},
	}
	if res.Cleaned != nil {
		writes = append(writes, output{mappedFile, func(w io.Writer) error { return export.WriteCSV(w, res.Cleaned) }})
	}
	if len(reports) > 0 {
		writes = append(writes, output{reportsFile, func(w io.Writer) error { return export.WriteWorkbook(w, reports.Sheets()) }})
	}
	var outputs errgroup.Group
	for _, o := range writes {
		outputs.Go(func() error {
			path := filepath.Join(opts.out, o.name)
			if err := writeFile(path, o.write); err != nil {
				return err
			}
			slog.Info("wrote output", "path", path)
			return nil
		})
	}
	if err := outputs.Wait(); err != nil {
		return err
	}

	slog.Info("reconcile complete",
		"run_id", res.RunID,
		"merged_rows", res.Merged.Len(),
		"filtered_rows", res.Filtered.Len(),
		"exception_results", len(res.Exceptions),
		"reports", len(reports),
		"warnings", len(res.Warnings),
	)
	return nil
}

func readTable(path string) (*core.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := core.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// loadRequest reads and validates a YAML request file. An empty path is an
// empty request.
func loadRequest(path string) (job.Request, error) {
	if path == "" {
		return job.Request{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return job.Request{}, fmt.Errorf("read request: %w", err)
	}
	return job.DecodeYAML(data)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
