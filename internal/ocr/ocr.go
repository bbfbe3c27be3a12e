// Package ocr wraps the text-recognition collaborator behind a narrow
// interface. The pipeline only cares about "image in, text out"; everything
// engine-specific stays here.
package ocr

import (
	"context"
	"time"
)

// Image is one question screenshot, by path or by raw bytes. Bytes win when
// both are set.
type Image struct {
	Path  string
	Bytes []byte
}

// Result is the recognition outcome for one image.
type Result struct {
	Text      string
	Language  string
	CharCount int
	Duration  time.Duration
}

// Recognizer turns a question image into raw text.
type Recognizer interface {
	Recognize(ctx context.Context, img Image) (Result, error)
}
