package llm

import (
	"context"
	"errors"
)

// QuestionFields is the normalized shape we want from the LLM.
type QuestionFields struct {
	QuestionText      string   `json:"question_text"`
	Options           []string `json:"options"`
	QuestionType      string   `json:"question_type,omitempty"`
	PreliminaryAnswer string   `json:"preliminary_answer,omitempty"` // single letter A-F
	AnswerReason      string   `json:"answer_reason,omitempty"`
}

// Usage is the token accounting for one extraction call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// ExtractRequest carries the recognized text into the extraction call.
type ExtractRequest struct {
	OCRText               string
	TypeHint              string // caller-supplied taxonomy hint, may be empty
	IncludeClassification bool   // also ask for type + preliminary answer
}

// FieldExtractor is the interface the pipeline depends on. Implementations
// return the decoded reply as-is; shape validation happens in the pipeline's
// validate step.
type FieldExtractor interface {
	ExtractQuestion(ctx context.Context, req ExtractRequest) (QuestionFields, Usage, error)
}

// ErrMalformedReply marks replies that arrived but could not be decoded into
// QuestionFields. Callers treat it as a validation failure, not a call failure.
var ErrMalformedReply = errors.New("malformed extraction reply")
