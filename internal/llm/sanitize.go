package llm

import (
	"fmt"
	"regexp"
	"strings"
)

// ExtractJSON pulls the JSON object out of a chat reply. Models occasionally
// wrap the object in prose or markdown fences despite the JSON-only
// instruction, so we take the outermost brace pair.
func ExtractJSON(content string) ([]byte, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedReply)
	}
	return []byte(content[start : end+1]), nil
}

const maxOptionCount = 6 // letters A-F

// A prefix is only a prefix when a separator follows the letter; a body that
// merely starts with A-F ("Apple") keeps its first letter.
var optionPrefixRe = regexp.MustCompile(`^([A-Fa-f])(?:[\.。．、]\s*|\s+)(.+)$`)

// FormatOptions canonicalizes an option list so every entry carries a
// "LETTER. " prefix. Prefixes already present are kept (normalized); missing
// ones are assigned by position. Duplicate letters mean the upstream ordering
// cannot be reconstructed and are rejected.
func FormatOptions(options []string) ([]string, error) {
	if len(options) < 2 {
		return nil, fmt.Errorf("need at least 2 options, got %d", len(options))
	}
	if len(options) > maxOptionCount {
		return nil, fmt.Errorf("too many options: %d (max %d)", len(options), maxOptionCount)
	}

	seen := make(map[byte]bool, len(options))
	out := make([]string, 0, len(options))
	for i, opt := range options {
		s := strings.TrimSpace(opt)
		if s == "" {
			return nil, fmt.Errorf("option %d is empty", i+1)
		}
		letter := byte('A' + i)
		body := s
		if m := optionPrefixRe.FindStringSubmatch(s); m != nil {
			letter = strings.ToUpper(m[1])[0]
			body = strings.TrimSpace(m[2])
		}
		if seen[letter] {
			return nil, fmt.Errorf("duplicate option letter %c", letter)
		}
		seen[letter] = true
		out = append(out, fmt.Sprintf("%c. %s", letter, body))
	}
	return out, nil
}

// NormalizeAnswerLetter reduces a preliminary answer to a single A-F letter,
// or empty when nothing usable remains ("B。", "b", "答案B" all yield "B").
func NormalizeAnswerLetter(s string) string {
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		if r >= 'A' && r <= 'F' {
			return string(r)
		}
	}
	return ""
}
