// Package dedup canonicalizes recognized text and resolves near-duplicates
// against the stored question corpus.
package dedup

import (
	"strings"
	"unicode"
)

// chromeKeywords mark screenshot interface noise: app navigation, share bars,
// creator watermarks. Lines containing any of these never belong to a question.
var chromeKeywords = []string{
	"KB/s",
	"首页",
	"朋友",
	"消息",
	"点击推荐",
	"粉笔正确率",
	"华图正确率",
	"答案一样",
	"解析在作品",
	"展开",
	"收起",
	"分享",
	"点赞",
	"收藏",
	"评论",
	"橱窗",
	"Never give up",
}

var normalizedChromeKeywords = func() []string {
	out := make([]string, 0, len(chromeKeywords))
	for _, k := range chromeKeywords {
		if n := normalizeRunes(k); n != "" {
			out = append(out, n)
		}
	}
	return out
}()

// Normalize turns raw recognized text into its canonical comparable form:
// interface-chrome lines are dropped, then everything except letters and
// digits is removed and the rest lowercased. Idempotent; never fails.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isChromeLine(line) {
			continue
		}
		b.WriteString(normalizeRunes(line))
	}
	out := b.String()
	// A keyword can survive inside a kept line or form across joined lines;
	// strip to a fixed point so repeated normalization is a no-op.
	for changed := true; changed; {
		changed = false
		for _, k := range normalizedChromeKeywords {
			if strings.Contains(out, k) {
				out = strings.ReplaceAll(out, k, "")
				changed = true
			}
		}
	}
	return out
}

// StripChrome filters interface noise at line granularity while preserving the
// readable text, for feeding the AI prompt. Option markers and question
// phrasing are always kept; short fragments without punctuation are dropped.
func StripChrome(raw string) string {
	if raw == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isChromeLine(line) {
			continue
		}
		if hasOptionMarker(line) || hasQuestionKeyword(line) {
			kept = append(kept, line)
			continue
		}
		if runeLen(line) > 10 || (runeLen(line) > 3 && hasCJKPunct(line)) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func isChromeLine(line string) bool {
	for _, k := range chromeKeywords {
		if strings.Contains(line, k) {
			return true
		}
	}
	return false
}

var optionMarkers = []string{"A.", "B.", "C.", "D.", "E.", "F.", "A ", "B ", "C ", "D "}

func hasOptionMarker(line string) bool {
	for _, m := range optionMarkers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

var questionKeywords = []string{"这段文字", "意在说明", "根据", "以下", "题目", "题干"}

func hasQuestionKeyword(line string) bool {
	for _, k := range questionKeywords {
		if strings.Contains(line, k) {
			return true
		}
	}
	return false
}

func hasCJKPunct(line string) bool {
	return strings.ContainsAny(line, "。，、；？：")
}

func runeLen(s string) int {
	return len([]rune(s))
}

func normalizeRunes(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
