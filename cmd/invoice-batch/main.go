package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/invoicetools/template-engine/internal/batch"
	"github.com/invoicetools/template-engine/internal/common"
	"github.com/invoicetools/template-engine/internal/engine"
	"github.com/invoicetools/template-engine/internal/export"
	"github.com/invoicetools/template-engine/internal/input"
	"github.com/invoicetools/template-engine/internal/template"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		templatesDir = flag.String("templates", "", "directory with template JSON files (default: TEMPLATES_DIR)")
		dir          = flag.String("dir", "", "directory with extracted invoice .txt documents (required)")
		out          = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		workers      = flag.Int("workers", 0, "worker count (default: BATCH_WORKERS or CPU count)")
		hint         = flag.String("hint", "", "supplier hint applied to every document")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		parentDir := filepath.Dir(*dir)
		*out = filepath.Join(parentDir, "extractions.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if *templatesDir != "" {
		cfg.Templates.Dir = *templatesDir
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Load templates once; the repository is shared read-only by workers.
	repo, err := template.Load(cfg.Templates.Dir, logger)
	if err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}
	for _, skipped := range repo.Skipped() {
		logger.Warn("template skipped during load", "file", skipped.File, "error", skipped.Err)
	}

	stats, err := batch.OpenStats(cfg.Stats.Path)
	if err != nil {
		logger.Error("failed to open stats store", "error", err)
		os.Exit(1)
	}
	defer stats.Close()

	paths, err := input.ScanDirectory(*dir)
	if err != nil {
		logger.Error("failed to scan input directory", "error", err)
		os.Exit(1)
	}
	logger.Info("starting batch", "documents", len(paths), "workers", cfg.Batch.Workers, "templates", len(repo.All()))

	eng := engine.New(logger, engine.Options{PatternBudget: cfg.Templates.PatternBudget})

	var (
		mu       sync.Mutex
		rows     []export.Row
		failures int
	)
	done := func(name string) func(batch.Job, *engine.Result, error) {
		return func(job batch.Job, res *engine.Result, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				return
			}
			rows = append(rows, export.Row{Document: name, Result: res})
			// Single serialized writer for bookkeeping; workers never
			// touch the stats store from inside extraction.
			if rerr := stats.Record(ctx, res.TemplateID, res.Quality > 0); rerr != nil {
				logger.Warn("stats record failed", "template_id", res.TemplateID, "error", rerr)
			}
		}
	}

	queue := batch.NewQueue(eng, repo, logger,
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithQueueSize(cfg.Batch.QueueSize),
		batch.WithDocumentTimeout(cfg.Batch.DocumentTimeout),
	)

	enqueued := 0
	for _, path := range paths {
		doc, err := input.LoadFile(path)
		if err != nil {
			logger.Error("failed to load document", "path", path, "error", err)
			failures++
			continue
		}
		_ = queue.Enqueue(ctx, batch.Job{
			ID:       uuid.New(),
			Doc:      doc,
			Hint:     *hint,
			Callback: done(doc.Name),
		})
		enqueued++
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	queue.Shutdown(shutdownCtx)
	cancel()

	mu.Lock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].Document < rows[j].Document })
	processed := len(rows)
	mu.Unlock()

	xlsxBytes, err := export.NewService(logger).ResultsXLSX(rows)
	if err != nil {
		logger.Error("failed to export results", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	if snap, err := stats.Snapshot(ctx); err == nil {
		for _, s := range snap {
			logger.Info("template usage",
				"template_id", s.TemplateID,
				"usage_count", s.UsageCount,
				"success_rate", fmt.Sprintf("%.2f", s.SuccessRate()))
		}
	}

	logger.Info("batch complete",
		"documents", enqueued,
		"processed", processed,
		"failures", failures,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents: %d\n", enqueued)
	fmt.Printf("- Processed: %d\n", processed)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}
