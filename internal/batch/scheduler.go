package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hanzhifeng/quizbank/constants"
	"github.com/hanzhifeng/quizbank/internal/common"
	"github.com/hanzhifeng/quizbank/internal/dedup"
)

const (
	minWorkers   = 3
	maxWorkers   = 20
	maxBatchSize = 100
)

// SchedulerConfig tunes a batch run.
type SchedulerConfig struct {
	Workers     int           // requested pool size; clamped to [3, 20]
	ItemTimeout time.Duration // per-item deadline; default 25s
	// DupThreshold is the similarity ratio above which two items of the same
	// run count as duplicates of each other; default 0.85.
	DupThreshold float64
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = 25 * time.Second
	}
	if c.DupThreshold <= 0 {
		c.DupThreshold = 0.85
	}
	return c
}

// ProgressFunc is invoked after each item completes. done counts completed
// items so far; res is the item that just finished. Calls are serialized.
type ProgressFunc func(done, total int, res Result)

// Scheduler fans a batch out over a bounded worker pool and reassembles the
// results in request order.
type Scheduler struct {
	step   *Step
	cfg    SchedulerConfig
	logger *slog.Logger
}

func NewScheduler(step *Step, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{step: step, cfg: cfg.withDefaults(), logger: logger}
}

// Run processes the whole batch and returns per-item results positionally
// aligned with requests. Batches over the size limit are rejected before any
// work starts. Cancelling ctx stops dispatch; items never dispatched are
// reported as timed out.
func (s *Scheduler) Run(ctx context.Context, requests []Request, progress ProgressFunc) (*BatchResult, error) {
	batchID := uuid.New()
	start := time.Now()

	if len(requests) > maxBatchSize {
		return nil, common.NewAppError("BATCH_TOO_LARGE",
			fmt.Sprintf("batch size %d exceeds limit %d", len(requests), maxBatchSize), common.ErrInvalidInput)
	}
	if len(requests) == 0 {
		return &BatchResult{BatchID: batchID, Results: []Result{}}, nil
	}
	ctx = common.WithBatchID(ctx, batchID.String())

	workers := s.cfg.Workers
	if workers < minWorkers {
		workers = minWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if workers > len(requests) {
		workers = len(requests)
	}

	s.logger.Info("batch.start",
		"batch_id", batchID, "items", len(requests), "workers", workers,
		"item_timeout", s.cfg.ItemTimeout.String())

	results := make([]Result, len(requests))
	idxCh := make(chan int)

	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)
	complete := func(i int, res Result) {
		results[i] = res
		mu.Lock()
		done++
		d := done
		if progress != nil {
			progress(d, len(requests), res)
		}
		mu.Unlock()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range idxCh {
				if ctx.Err() != nil {
					complete(i, s.cancelled(i, requests[i]))
					continue
				}
				itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
				res := s.runItem(itemCtx, i, requests[i])
				cancel()
				complete(i, res)
			}
		}(w + 1)
	}

	for i := range requests {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()

	s.markBatchDuplicates(results)

	elapsed := time.Since(start)
	out := &BatchResult{
		BatchID: batchID,
		Results: results,
		Stats:   Aggregate(results, elapsed),
		Elapsed: elapsed,
	}
	s.logger.Info("batch.done",
		"batch_id", batchID,
		"succeeded", out.Stats.Succeeded,
		"failed", out.Stats.Failed,
		"duplicates", out.Stats.Duplicates,
		"batch_duplicates", out.Stats.BatchDuplicates,
		"total_tokens", out.Stats.TotalTokens,
		"total_cost", out.Stats.TotalCost,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return out, nil
}

// runItem shields the pool from a panicking stage; a panic costs one item,
// not the run.
func (s *Scheduler) runItem(ctx context.Context, i int, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch.item.panic", "index", i, "panic", r)
			res = Result{
				Index:            i,
				DuplicateOfIndex: -1,
				ErrKind:          constants.ErrKindInternal,
				ErrMessage:       fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return s.step.Process(ctx, i, req)
}

func (s *Scheduler) cancelled(i int, req Request) Result {
	res := Result{
		Index:            i,
		DuplicateOfIndex: -1,
		ErrKind:          constants.ErrKindTimeout,
		ErrMessage:       "batch cancelled before item started",
	}
	if req.Image.Path != "" {
		res.FileName = filepath.Base(req.Image.Path)
	}
	return res
}

// markBatchDuplicates flags items that duplicate an earlier successful item
// of the same run. The earlier item keeps its standing; only the later one is
// marked, and both remain successes.
func (s *Scheduler) markBatchDuplicates(results []Result) {
	type entry struct {
		index     int
		canonical string
	}
	var seen []entry
	for i := range results {
		r := &results[i]
		if !r.Success || r.Duplicate {
			continue
		}
		canonical := dedup.Normalize(r.Question.QuestionText)
		if canonical == "" {
			continue
		}
		matched := false
		for _, e := range seen {
			if score := dedup.Ratio(canonical, e.canonical); score >= s.cfg.DupThreshold {
				r.BatchDuplicate = true
				r.DuplicateOfIndex = e.index
				r.Similarity = score
				s.logger.Info("batch.item.batch_duplicate",
					"index", r.Index, "duplicate_of", e.index, "score", score)
				matched = true
				break
			}
		}
		if !matched {
			seen = append(seen, entry{index: r.Index, canonical: canonical})
		}
	}
}
