package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/joseph-ayodele/receipt-analyzer/internal/app"
	"github.com/joseph-ayodele/receipt-analyzer/internal/async"
	"github.com/joseph-ayodele/receipt-analyzer/internal/common"
	"github.com/joseph-ayodele/receipt-analyzer/internal/export"
	"github.com/joseph-ayodele/receipt-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/receipt-analyzer/internal/source"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		inmem   = flag.Bool("inmem", false, "use an in-memory SQLite store instead of STORE_DRIVER")
		dir     = flag.String("dir", "", "directory to process receipts from (required)")
		out     = flag.String("out", "", "output XLSX report path (defaults to <dir>/../receipts-report.xlsx)")
		workers = flag.Int("workers", 0, "concurrent documents (defaults to QUEUE_WORKERS)")
		hidden  = flag.Bool("hidden", false, "include hidden files and directories")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		return 1
	}
	absDir, err := filepath.Abs(*dir)
	if err != nil {
		printError("Error: invalid --dir: %v\n", err)
		return 1
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(absDir), "receipts-report.xlsx")
	}

	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stdout, cfg.Log.Level, "json")

	cfg.Source.Kind = "fs"
	cfg.Source.Root = absDir
	if *inmem {
		cfg.Store.Driver = "sqlite"
		cfg.Store.DSN = ":memory:"
	}
	if *workers > 0 {
		cfg.Queue.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refs, stats, err := source.ScanDir(absDir, !*hidden)
	if err != nil {
		logger.Error("failed to scan directory", "dir", absDir, "error", err)
		return 1
	}
	logger.Info("scan complete", "dir", absDir, "matched", stats.Matched, "scanned", stats.Scanned, "errors", stats.Errors)

	comps, cleanup, err := app.NewOrchestrator(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("failed to wire pipeline", "error", err)
		return 1
	}
	defer cleanup()

	start := time.Now()
	var (
		mu      sync.Mutex
		results []pipeline.PipelineResult
	)
	queue := async.NewProcessorQueue(comps.Orchestrator,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(len(refs)+1),
		async.WithProcessTimeout(cfg.Pipeline.DocumentDeadline+30*time.Second),
		async.WithLogger(logger),
		async.WithResultHandler(func(r pipeline.PipelineResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}),
	)
	for _, ref := range refs {
		if err := queue.Enqueue(ctx, ref); err != nil {
			logger.Warn("enqueue stopped", "ref", ref, "error", err)
			break
		}
	}
	if err := queue.Shutdown(context.Background()); err != nil {
		logger.Warn("queue did not drain", "error", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Ref < results[j].Ref })

	f, err := os.Create(*out)
	if err != nil {
		logger.Error("failed to create report", "path", *out, "error", err)
		return 1
	}
	report, err := export.WriteReport(f, results, logger)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.Error("failed to write report", "path", *out, "error", err)
		return 1
	}

	logger.Info("batch processing complete",
		"documents", len(refs),
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"output_file", *out,
	)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents: %d\n", len(refs))
	fmt.Printf("- Succeeded: %d\n", report.Succeeded)
	fmt.Printf("- Failed: %d\n", report.Failed)
	fmt.Printf("- Output: %s\n", *out)
	if report.Failed > 0 {
		return 3
	}
	return 0
}
