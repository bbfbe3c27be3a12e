package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidateAndFormat rejects malformed or incomplete replies and canonicalizes
// the fields in place: trimmed question text, "LETTER. "-prefixed options and
// a bare answer letter. Returns an error describing the first defect found.
func ValidateAndFormat(f *QuestionFields) error {
	f.QuestionText = strings.TrimSpace(f.QuestionText)
	if f.QuestionText == "" {
		return fmt.Errorf("missing question text")
	}

	opts, err := FormatOptions(f.Options)
	if err != nil {
		return err
	}
	f.Options = opts

	f.QuestionType = strings.TrimSpace(f.QuestionType)
	f.PreliminaryAnswer = NormalizeAnswerLetter(f.PreliminaryAnswer)
	f.AnswerReason = strings.TrimSpace(f.AnswerReason)

	// Final gate: the canonical form must satisfy the reply schema.
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if err := ValidateJSONAgainstSchema(BuildQuestionJSONSchema(true, nil), b); err != nil {
		return err
	}
	return nil
}
