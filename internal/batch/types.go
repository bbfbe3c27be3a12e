package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/hanzhifeng/quizbank/constants"
	"github.com/hanzhifeng/quizbank/internal/llm"
	"github.com/hanzhifeng/quizbank/internal/ocr"
)

// Request is one item submitted to a batch run.
type Request struct {
	Image ocr.Image

	// OCRText carries client-side recognition. When set, the recognition
	// stage is skipped and this text feeds extraction directly.
	OCRText string

	// TypeHint is an optional caller-supplied question-type hint.
	TypeHint string

	// ForceReanalyze bypasses duplicate detection for this item.
	ForceReanalyze bool
}

// Result is the outcome for one item. Its position in BatchResult.Results is
// always the position of the originating Request.
type Result struct {
	Index    int
	FileName string
	Success  bool

	Question llm.QuestionFields

	// RecordID is the corpus record backing this item: the freshly inserted
	// record for new questions, the matched record for duplicates.
	RecordID uuid.UUID

	Duplicate  bool
	MatchedID  uuid.UUID
	Similarity float64

	// BatchDuplicate marks items that duplicate an earlier item of the same
	// run rather than a stored record.
	BatchDuplicate   bool
	DuplicateOfIndex int // -1 unless BatchDuplicate

	OCRText   string
	OCRTime   time.Duration
	AITime    time.Duration
	TotalTime time.Duration

	Usage llm.Usage
	Cost  float64

	ErrKind    constants.ErrorKind
	ErrMessage string
}

// Statistics aggregates one run.
type Statistics struct {
	Total           int
	Succeeded       int
	Failed          int
	Duplicates      int
	BatchDuplicates int

	TotalTokens int
	TotalCost   float64

	TotalTime time.Duration
	AvgTime   time.Duration
}

// BatchResult is the full outcome of a run: per-item results in request
// order plus the aggregate statistics.
type BatchResult struct {
	BatchID uuid.UUID
	Results []Result
	Stats   Statistics
	Elapsed time.Duration
}
