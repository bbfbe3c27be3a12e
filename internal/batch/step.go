package batch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hanzhifeng/quizbank/constants"
	"github.com/hanzhifeng/quizbank/internal/common"
	"github.com/hanzhifeng/quizbank/internal/corpus"
	"github.com/hanzhifeng/quizbank/internal/dedup"
	"github.com/hanzhifeng/quizbank/internal/llm"
	"github.com/hanzhifeng/quizbank/internal/ocr"
)

// Step runs one item through the full pipeline: recognize, dedup, extract,
// validate, persist. Every failure is folded into the Result; Process never
// returns an error because one bad item must not disturb its batch.
type Step struct {
	recognizer ocr.Recognizer
	extractor  llm.FieldExtractor
	resolver   DuplicateResolver
	inserter   RecordInserter
	pricing    llm.Pricing
	logger     *slog.Logger
}

func NewStep(recognizer ocr.Recognizer, extractor llm.FieldExtractor, resolver DuplicateResolver, inserter RecordInserter, pricing llm.Pricing, logger *slog.Logger) *Step {
	if logger == nil {
		logger = slog.Default()
	}
	return &Step{
		recognizer: recognizer,
		extractor:  extractor,
		resolver:   resolver,
		inserter:   inserter,
		pricing:    pricing,
		logger:     logger,
	}
}

// Process runs one request. idx is the request's position in the batch and is
// echoed into the Result.
func (s *Step) Process(ctx context.Context, idx int, req Request) Result {
	start := time.Now()
	res := Result{
		Index:            idx,
		FileName:         filepath.Base(req.Image.Path),
		DuplicateOfIndex: -1,
	}
	defer func() { res.TotalTime = time.Since(start) }()

	log := s.logger
	if bid := common.BatchIDFromContext(ctx); bid != "" {
		log = log.With("batch_id", bid)
	}

	// Stage 1: recognition, unless the caller already supplied text.
	rawText := req.OCRText
	if rawText == "" {
		ocrRes, err := s.recognizer.Recognize(ctx, req.Image)
		res.OCRTime = ocrRes.Duration
		if err != nil {
			return s.fail(log, &res, classifyErr(ctx, err, constants.ErrKindRecognition), err, "batch.item.ocr_failed")
		}
		rawText = ocrRes.Text
	}
	res.OCRText = rawText

	// Stage 2: duplicate check against the corpus.
	if !req.ForceReanalyze {
		canonical := dedup.Normalize(rawText)
		match, err := s.resolver.Resolve(ctx, canonical)
		if err != nil {
			// Dedup is an optimization; a failed lookup falls through to
			// extraction rather than failing the item.
			log.Warn("batch.item.dedup_error", "index", idx, "error", err)
		}
		if match != nil {
			res.Success = true
			res.Duplicate = true
			res.MatchedID = match.Record.ID
			res.RecordID = match.Record.ID
			res.Similarity = match.Score
			res.Question = llm.QuestionFields{
				QuestionText: match.Record.QuestionText,
				Options:      match.Record.Options,
				QuestionType: match.Record.QuestionType,
			}
			log.Info("batch.item.duplicate",
				"index", idx, "match_id", match.Record.ID, "score", match.Score)
			return res
		}
	}

	// Stage 3: extraction. Chrome lines are filtered from the prompt but the
	// raw text is kept for storage.
	promptText := dedup.StripChrome(rawText)
	if promptText == "" {
		promptText = rawText
	}
	aiStart := time.Now()
	fields, usage, err := s.extractor.ExtractQuestion(ctx, llm.ExtractRequest{
		OCRText:               promptText,
		TypeHint:              req.TypeHint,
		IncludeClassification: true,
	})
	res.AITime = time.Since(aiStart)
	res.Usage = usage
	res.Cost = s.pricing.Cost(usage)
	if err != nil {
		kind := classifyErr(ctx, err, constants.ErrKindAICall)
		if errors.Is(err, llm.ErrMalformedReply) {
			kind = constants.ErrKindValidation
		}
		return s.fail(log, &res, kind, err, "batch.item.extract_failed")
	}

	// Stage 4: validation and canonical formatting.
	if err := llm.ValidateAndFormat(&fields); err != nil {
		return s.fail(log, &res, constants.ErrKindValidation, err, "batch.item.invalid_reply")
	}
	fields.QuestionType = string(constants.NormalizeQuestionType(fields.QuestionType))
	res.Question = fields

	// Stage 5: persist the new question.
	canonical := dedup.Normalize(fields.QuestionText)
	record := &corpus.Question{
		ID:            uuid.New(),
		QuestionText:  fields.QuestionText,
		Options:       fields.Options,
		RawText:       rawText,
		CanonicalText: canonical,
		Fingerprint:   dedup.Fingerprint(canonical, fields.Options),
		QuestionType:  fields.QuestionType,
		CreatedAt:     time.Now().UTC(),
	}
	id, err := s.inserter.Insert(ctx, record)
	if err != nil {
		return s.fail(log, &res, classifyErr(ctx, err, constants.ErrKindInternal), err, "batch.item.persist_failed")
	}
	res.RecordID = id
	res.Success = true

	log.Info("batch.item.ok",
		"index", idx,
		"record_id", id,
		"question_type", fields.QuestionType,
		"tokens", usage.Total(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// fail finalizes a terminal failure. Failed results never carry a question
// payload, even when a later stage (e.g. persistence) was the one that broke.
func (s *Step) fail(log *slog.Logger, res *Result, kind constants.ErrorKind, err error, event string) Result {
	res.Success = false
	res.Question = llm.QuestionFields{}
	res.ErrKind = kind
	res.ErrMessage = err.Error()
	log.Error(event, "index", res.Index, "kind", string(kind), "error", err)
	return *res
}

// classifyErr maps an error to its taxonomy kind; deadline expiry always wins
// over the stage default.
func classifyErr(ctx context.Context, err error, def constants.ErrorKind) constants.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return constants.ErrKindTimeout
	}
	return def
}
