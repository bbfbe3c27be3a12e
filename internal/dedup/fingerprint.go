package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint derives the deterministic corpus identifier for a question:
// MD5 over the canonical text plus the sorted, trimmed options. Option order
// does not affect the fingerprint, so reshuffled OCR output maps to the same
// record.
func Fingerprint(canonicalText string, options []string) string {
	trimmed := make([]string, 0, len(options))
	for _, opt := range options {
		trimmed = append(trimmed, strings.TrimSpace(opt))
	}
	sort.Strings(trimmed)

	combined := canonicalText + "|" + strings.Join(trimmed, "|")
	sum := md5.Sum([]byte(combined))
	return hex.EncodeToString(sum[:])
}
