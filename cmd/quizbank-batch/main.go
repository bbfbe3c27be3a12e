package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hanzhifeng/quizbank/constants"
	"github.com/hanzhifeng/quizbank/internal/batch"
	"github.com/hanzhifeng/quizbank/internal/common"
	"github.com/hanzhifeng/quizbank/internal/corpus"
	"github.com/hanzhifeng/quizbank/internal/dedup"
	"github.com/hanzhifeng/quizbank/internal/export"
	"github.com/hanzhifeng/quizbank/internal/llm"
	"github.com/hanzhifeng/quizbank/internal/llm/openai"
	"github.com/hanzhifeng/quizbank/internal/ocr"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem   = flag.Bool("inmem", false, "use an in-memory SQLite corpus")
		dir     = flag.String("dir", "", "directory of question screenshots to process (required)")
		out     = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		workers = flag.Int("workers", 0, "worker pool size (optional, overrides BATCH_MAX_WORKERS)")
		force   = flag.Bool("force", false, "bypass duplicate detection for every item")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		parentDir := filepath.Dir(*dir)
		*out = filepath.Join(parentDir, "questions.xlsx")
	}

	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)

	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Corpus store: Postgres when DB_URL is set, SQLite otherwise.
	var repo corpus.Repository
	switch {
	case *inmem:
		sq, err := corpus.OpenSQLite(ctx, ":memory:", logger)
		if err != nil {
			logger.Error("failed to open in-memory corpus", "error", err)
			os.Exit(1)
		}
		defer func() { _ = sq.Close() }()
		repo = sq
	case cfg.Database.DSN != "":
		pg, err := corpus.OpenPostgres(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to open postgres corpus", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		repo = pg
	default:
		sq, err := corpus.OpenSQLite(ctx, cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Error("failed to open sqlite corpus", "error", err, "path", cfg.Database.SQLitePath)
			os.Exit(1)
		}
		defer func() { _ = sq.Close() }()
		repo = sq
	}

	resolver, err := dedup.NewResolver(repo, dedup.Config{
		Threshold:    cfg.Dedup.Threshold,
		MinTextLen:   cfg.Dedup.MinTextLen,
		RecentWindow: cfg.Dedup.RecentWindow,
		CacheSize:    cfg.Dedup.CacheSize,
	}, logger)
	if err != nil {
		logger.Error("failed to create resolver", "error", err)
		os.Exit(1)
	}

	recognizer := ocr.NewTesseractRecognizer(ocr.Config{
		Languages:   cfg.OCR.Languages,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
	}, logger)

	extractor := openai.NewClient(openai.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Temperature:    float32(cfg.LLM.Temperature),
		Timeout:        cfg.LLM.Timeout,
		MaxAttempts:    cfg.LLM.MaxAttempts,
		RetryBaseDelay: cfg.LLM.RetryBaseDelay,
	}, logger)
	logger.Info("extraction client initialized", "model", cfg.LLM.Model, "base_url", cfg.LLM.BaseURL)

	pricing := llm.Pricing{InputPerK: cfg.Pricing.InputPerK, OutputPerK: cfg.Pricing.OutputPerK}
	inserter := corpus.NewInserter(repo, logger)
	step := batch.NewStep(recognizer, extractor, resolver, inserter, pricing, logger)

	poolSize := cfg.Batch.MaxWorkers
	if *workers > 0 {
		poolSize = *workers
	}
	scheduler := batch.NewScheduler(step, batch.SchedulerConfig{
		Workers:      poolSize,
		ItemTimeout:  cfg.Batch.ItemTimeout,
		DupThreshold: cfg.Dedup.Threshold,
	}, logger)

	requests, err := collectRequests(*dir, *force)
	if err != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(requests) == 0 {
		printError("Error: no image files found in %s\n", *dir)
		os.Exit(1)
	}
	logger.Info("starting batch", "dir", *dir, "items", len(requests))

	progress := func(done, total int, res batch.Result) {
		fmt.Printf("[%d/%d] %s: %s\n", done, total, res.FileName, progressLabel(res))
	}

	br, err := scheduler.Run(ctx, requests, progress)
	if err != nil {
		logger.Error("batch run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("exporting to XLSX", "output", *out)
	xlsxBytes, err := export.NewService(logger).BatchResultXLSX(br)
	if err != nil {
		logger.Error("failed to export results", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch complete!\n")
	fmt.Printf("- Items: %d\n", br.Stats.Total)
	fmt.Printf("- Succeeded: %d\n", br.Stats.Succeeded)
	fmt.Printf("- Failed: %d\n", br.Stats.Failed)
	fmt.Printf("- Duplicates: %d (in-batch: %d)\n", br.Stats.Duplicates, br.Stats.BatchDuplicates)
	fmt.Printf("- Tokens: %d, Cost: %.6f\n", br.Stats.TotalTokens, br.Stats.TotalCost)
	fmt.Printf("- Elapsed: %s (avg %s/item)\n", br.Elapsed.Round(1e6), br.Stats.AvgTime.Round(1e6))
	fmt.Printf("- Output: %s\n", *out)
}

// collectRequests lists supported image files in dir, sorted by name so batch
// positions are stable across runs.
func collectRequests(dir string, force bool) ([]batch.Request, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if constants.IsAllowedImage(filepath.Ext(e.Name())) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	reqs := make([]batch.Request, 0, len(paths))
	for _, p := range paths {
		reqs = append(reqs, batch.Request{
			Image:          ocr.Image{Path: p},
			ForceReanalyze: force,
		})
	}
	return reqs, nil
}

func progressLabel(res batch.Result) string {
	switch {
	case res.Duplicate:
		return fmt.Sprintf("duplicate (%.2f)", res.Similarity)
	case res.Success:
		return "ok"
	default:
		return strings.ToLower(string(res.ErrKind))
	}
}
