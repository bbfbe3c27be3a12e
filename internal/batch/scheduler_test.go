package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanzhifeng/quizbank/constants"
	"github.com/hanzhifeng/quizbank/internal/common"
	"github.com/hanzhifeng/quizbank/internal/corpus"
	"github.com/hanzhifeng/quizbank/internal/dedup"
	"github.com/hanzhifeng/quizbank/internal/llm"
	"github.com/hanzhifeng/quizbank/internal/ocr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRecognizer struct {
	fn func(ctx context.Context, img ocr.Image) (ocr.Result, error)
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img ocr.Image) (ocr.Result, error) {
	if f.fn == nil {
		return ocr.Result{}, errors.New("unexpected recognition call")
	}
	return f.fn(ctx, img)
}

type fakeExtractor struct {
	fn          func(ctx context.Context, req llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error)
	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeExtractor) ExtractQuestion(ctx context.Context, req llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error) {
	f.calls.Add(1)
	cur := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)
	return f.fn(ctx, req)
}

type fakeResolver struct {
	fn func(ctx context.Context, canonical string) (*dedup.Match, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, canonical string) (*dedup.Match, error) {
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(ctx, canonical)
}

type fakeInserter struct {
	mu       sync.Mutex
	inserted []*corpus.Question
	err      error
}

func (f *fakeInserter) Insert(_ context.Context, q *corpus.Question) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, q)
	return q.ID, nil
}

// distinctText yields per-item question text with zero overlap across items,
// so unrelated items never trip the in-batch duplicate pass.
func distinctText(i int) string {
	return strings.Repeat(string(rune('a'+i%26)), 15) + fmt.Sprintf("%d", i)
}

func happyExtractor() *fakeExtractor {
	return &fakeExtractor{fn: func(_ context.Context, req llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error) {
		return llm.QuestionFields{
			QuestionText: req.OCRText,
			Options:      []string{"第一项", "第二项"},
		}, llm.Usage{InputTokens: 100, OutputTokens: 50}, nil
	}}
}

func newTestScheduler(ext *fakeExtractor, res *fakeResolver, ins *fakeInserter, cfg SchedulerConfig) *Scheduler {
	step := NewStep(&fakeRecognizer{}, ext, res, ins, llm.DefaultPricing(), discardLogger())
	return NewScheduler(step, cfg, discardLogger())
}

func textRequests(n int) []Request {
	reqs := make([]Request, n)
	for i := range reqs {
		reqs[i] = Request{OCRText: distinctText(i)}
	}
	return reqs
}

func TestRunPreservesRequestOrder(t *testing.T) {
	ext := happyExtractor()
	ins := &fakeInserter{}
	s := newTestScheduler(ext, &fakeResolver{}, ins, SchedulerConfig{Workers: 8})

	reqs := textRequests(12)
	br, err := s.Run(context.Background(), reqs, nil)
	require.NoError(t, err)
	require.Len(t, br.Results, len(reqs))

	for i, r := range br.Results {
		assert.Equal(t, i, r.Index)
		assert.True(t, r.Success)
		assert.Equal(t, reqs[i].OCRText, r.Question.QuestionText)
		assert.NotEqual(t, uuid.Nil, r.RecordID)
	}
	assert.Equal(t, len(reqs), br.Stats.Succeeded)
	assert.Zero(t, br.Stats.Failed)
}

func TestRunRejectsOversizedBatch(t *testing.T) {
	s := newTestScheduler(happyExtractor(), &fakeResolver{}, &fakeInserter{}, SchedulerConfig{})

	br, err := s.Run(context.Background(), textRequests(101), nil)
	require.Error(t, err)
	assert.Nil(t, br)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestRunEmptyBatch(t *testing.T) {
	ext := happyExtractor()
	s := newTestScheduler(ext, &fakeResolver{}, &fakeInserter{}, SchedulerConfig{})

	br, err := s.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, br.Results)
	assert.Zero(t, br.Stats.Total)
	assert.Zero(t, br.Stats.AvgTime)
	assert.Zero(t, ext.calls.Load())
}

func TestRunIsolatesItemFailures(t *testing.T) {
	ext := &fakeExtractor{fn: func(_ context.Context, req llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error) {
		if strings.HasPrefix(req.OCRText, "ccc") {
			return llm.QuestionFields{}, llm.Usage{}, &llm.APIError{StatusCode: 401, Body: "bad key"}
		}
		return llm.QuestionFields{
			QuestionText: req.OCRText,
			Options:      []string{"第一项", "第二项"},
		}, llm.Usage{InputTokens: 10, OutputTokens: 5}, nil
	}}
	s := newTestScheduler(ext, &fakeResolver{}, &fakeInserter{}, SchedulerConfig{})

	br, err := s.Run(context.Background(), textRequests(5), nil)
	require.NoError(t, err)

	for i, r := range br.Results {
		if i == 2 {
			assert.False(t, r.Success)
			assert.Equal(t, constants.ErrKindAICall, r.ErrKind)
			assert.NotEmpty(t, r.ErrMessage)
		} else {
			assert.True(t, r.Success, "item %d", i)
		}
	}
	assert.Equal(t, 4, br.Stats.Succeeded)
	assert.Equal(t, 1, br.Stats.Failed)
}

func TestRunMarksTimedOutItems(t *testing.T) {
	ext := &fakeExtractor{fn: func(ctx context.Context, req llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error) {
		if strings.HasPrefix(req.OCRText, "aaa") {
			<-ctx.Done()
			return llm.QuestionFields{}, llm.Usage{}, ctx.Err()
		}
		return llm.QuestionFields{
			QuestionText: req.OCRText,
			Options:      []string{"第一项", "第二项"},
		}, llm.Usage{}, nil
	}}
	s := newTestScheduler(ext, &fakeResolver{}, &fakeInserter{}, SchedulerConfig{ItemTimeout: 30 * time.Millisecond})

	br, err := s.Run(context.Background(), textRequests(3), nil)
	require.NoError(t, err)

	assert.False(t, br.Results[0].Success)
	assert.Equal(t, constants.ErrKindTimeout, br.Results[0].ErrKind)
	assert.True(t, br.Results[1].Success)
	assert.True(t, br.Results[2].Success)
}

func TestRunDuplicateShortCircuitsExtraction(t *testing.T) {
	stored := &corpus.Question{
		ID:           uuid.New(),
		QuestionText: "已入库的题干内容",
		Options:      []string{"A. 一", "B. 二"},
		QuestionType: "VERBAL",
	}
	dupCanonicals := map[string]bool{
		dedup.Normalize(distinctText(1)): true,
		dedup.Normalize(distinctText(3)): true,
	}
	res := &fakeResolver{fn: func(_ context.Context, canonical string) (*dedup.Match, error) {
		if dupCanonicals[canonical] {
			return &dedup.Match{Record: stored, Score: 0.92}, nil
		}
		return nil, nil
	}}
	ext := happyExtractor()
	s := newTestScheduler(ext, res, &fakeInserter{}, SchedulerConfig{})

	br, err := s.Run(context.Background(), textRequests(5), nil)
	require.NoError(t, err)

	for _, i := range []int{1, 3} {
		dup := br.Results[i]
		assert.True(t, dup.Success)
		assert.True(t, dup.Duplicate)
		assert.Equal(t, stored.ID, dup.MatchedID)
		assert.Equal(t, stored.ID, dup.RecordID)
		assert.Equal(t, stored.QuestionText, dup.Question.QuestionText)
		assert.InDelta(t, 0.92, dup.Similarity, 1e-9)
		assert.Zero(t, dup.Usage.Total(), "duplicates must not spend tokens")
		assert.Zero(t, dup.Cost)
	}

	assert.Equal(t, int32(3), ext.calls.Load(), "duplicate items must skip extraction")
	assert.Equal(t, 5, br.Stats.Succeeded)
	assert.Equal(t, 2, br.Stats.Duplicates)
	assert.Zero(t, br.Stats.TotalCost, "duplicate hits carry no cost")
}

func TestRunForceBypassesDedup(t *testing.T) {
	resolverCalls := atomic.Int32{}
	res := &fakeResolver{fn: func(context.Context, string) (*dedup.Match, error) {
		resolverCalls.Add(1)
		return nil, nil
	}}
	ext := happyExtractor()
	s := newTestScheduler(ext, res, &fakeInserter{}, SchedulerConfig{})

	reqs := textRequests(3)
	for i := range reqs {
		reqs[i].ForceReanalyze = true
	}
	br, err := s.Run(context.Background(), reqs, nil)
	require.NoError(t, err)

	assert.Zero(t, resolverCalls.Load())
	assert.Equal(t, int32(3), ext.calls.Load())
	assert.Equal(t, 3, br.Stats.Succeeded)
}

func TestRunBoundsConcurrency(t *testing.T) {
	ext := &fakeExtractor{fn: func(_ context.Context, req llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error) {
		time.Sleep(15 * time.Millisecond)
		return llm.QuestionFields{
			QuestionText: req.OCRText,
			Options:      []string{"第一项", "第二项"},
		}, llm.Usage{}, nil
	}}
	s := newTestScheduler(ext, &fakeResolver{}, &fakeInserter{}, SchedulerConfig{Workers: 5})

	_, err := s.Run(context.Background(), textRequests(20), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, ext.maxInFlight.Load(), int32(5))
}

func TestRunRecoversFromPanicInOneItem(t *testing.T) {
	ext := &fakeExtractor{fn: func(_ context.Context, req llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error) {
		if strings.HasPrefix(req.OCRText, "bbb") {
			panic("stage exploded")
		}
		return llm.QuestionFields{
			QuestionText: req.OCRText,
			Options:      []string{"第一项", "第二项"},
		}, llm.Usage{}, nil
	}}
	s := newTestScheduler(ext, &fakeResolver{}, &fakeInserter{}, SchedulerConfig{})

	br, err := s.Run(context.Background(), textRequests(3), nil)
	require.NoError(t, err)

	assert.False(t, br.Results[1].Success)
	assert.Equal(t, constants.ErrKindInternal, br.Results[1].ErrKind)
	assert.Contains(t, br.Results[1].ErrMessage, "stage exploded")
	assert.True(t, br.Results[0].Success)
	assert.True(t, br.Results[2].Success)
}

func TestRunMarksMalformedReplyAsValidationFailure(t *testing.T) {
	ext := &fakeExtractor{fn: func(context.Context, llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error) {
		return llm.QuestionFields{}, llm.Usage{InputTokens: 80, OutputTokens: 10}, fmt.Errorf("%w: gibberish", llm.ErrMalformedReply)
	}}
	s := newTestScheduler(ext, &fakeResolver{}, &fakeInserter{}, SchedulerConfig{})

	br, err := s.Run(context.Background(), textRequests(1), nil)
	require.NoError(t, err)

	r := br.Results[0]
	assert.False(t, r.Success)
	assert.Equal(t, constants.ErrKindValidation, r.ErrKind)
	assert.Equal(t, 90, r.Usage.Total(), "failed calls still account their tokens")
}

func TestRunMarksInsertFailureAsInternal(t *testing.T) {
	ins := &fakeInserter{err: errors.New("disk full")}
	s := newTestScheduler(happyExtractor(), &fakeResolver{}, ins, SchedulerConfig{})

	br, err := s.Run(context.Background(), textRequests(1), nil)
	require.NoError(t, err)
	assert.False(t, br.Results[0].Success)
	assert.Equal(t, constants.ErrKindInternal, br.Results[0].ErrKind)
	assert.Empty(t, br.Results[0].Question.QuestionText, "failed results must not carry a payload")
	assert.Empty(t, br.Results[0].Question.Options)
}

func TestRunMarksBatchInternalDuplicates(t *testing.T) {
	reqs := textRequests(4)
	reqs[3].OCRText = reqs[0].OCRText

	s := newTestScheduler(happyExtractor(), &fakeResolver{}, &fakeInserter{}, SchedulerConfig{})
	br, err := s.Run(context.Background(), reqs, nil)
	require.NoError(t, err)

	first, last := br.Results[0], br.Results[3]
	assert.True(t, first.Success)
	assert.False(t, first.BatchDuplicate, "the earlier item keeps its standing")
	assert.True(t, last.Success, "in-batch duplicates still count as successes")
	assert.True(t, last.BatchDuplicate)
	assert.Equal(t, 0, last.DuplicateOfIndex)
	assert.GreaterOrEqual(t, last.Similarity, 0.85)
	assert.Equal(t, 1, br.Stats.BatchDuplicates)
}

func TestRunCancellationMarksUndispatchedItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first extraction cancels the batch; in-flight items run to
	// completion, items not yet picked up must not start.
	var once sync.Once
	ext := &fakeExtractor{fn: func(_ context.Context, req llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error) {
		once.Do(cancel)
		time.Sleep(20 * time.Millisecond)
		return llm.QuestionFields{
			QuestionText: req.OCRText,
			Options:      []string{"第一项", "第二项"},
		}, llm.Usage{}, nil
	}}
	s := newTestScheduler(ext, &fakeResolver{}, &fakeInserter{}, SchedulerConfig{Workers: 3})

	br, err := s.Run(ctx, textRequests(10), nil)
	require.NoError(t, err)
	require.Len(t, br.Results, 10)

	succeeded := 0
	for i, r := range br.Results {
		if r.Success {
			succeeded++
			continue
		}
		assert.Equal(t, constants.ErrKindTimeout, r.ErrKind, "item %d", i)
	}
	assert.GreaterOrEqual(t, succeeded, 1, "the item that triggered cancellation still completes")

	// Only the first wave fits the pool; everything dispatched afterwards
	// must have been cut off.
	for i := 3; i < 10; i++ {
		r := br.Results[i]
		assert.False(t, r.Success, "item %d", i)
		assert.Equal(t, constants.ErrKindTimeout, r.ErrKind, "item %d", i)
		assert.Contains(t, r.ErrMessage, "cancelled", "item %d", i)
	}
	assert.LessOrEqual(t, ext.calls.Load(), int32(3), "cancelled items must not reach extraction")
	assert.Equal(t, br.Stats.Total, br.Stats.Succeeded+br.Stats.Failed)
}

func TestRunReportsProgress(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	progress := func(done, total int, _ Result) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, done)
		assert.Equal(t, 6, total)
	}

	s := newTestScheduler(happyExtractor(), &fakeResolver{}, &fakeInserter{}, SchedulerConfig{})
	_, err := s.Run(context.Background(), textRequests(6), progress)
	require.NoError(t, err)

	require.Len(t, seen, 6)
	for i, d := range seen {
		assert.Equal(t, i+1, d, "done counter must be monotonic")
	}
}
