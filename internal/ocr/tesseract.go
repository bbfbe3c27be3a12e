package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// Config for the Tesseract recognizer.
type Config struct {
	Languages   []string // default ["chi_sim", "eng"]
	TessdataDir string   // override TESSDATA_PREFIX when set
	PSM         int      // page segmentation mode; 6 = uniform block of text
}

// TesseractRecognizer implements Recognizer on top of gosseract. A fresh
// client is created per call: the underlying API is not safe for concurrent
// use from the worker pool.
type TesseractRecognizer struct {
	cfg    Config
	logger *slog.Logger
}

func NewTesseractRecognizer(cfg Config, logger *slog.Logger) *TesseractRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"chi_sim", "eng"}
	}
	if cfg.PSM == 0 {
		cfg.PSM = 6
	}
	return &TesseractRecognizer{cfg: cfg, logger: logger}
}

func (r *TesseractRecognizer) Recognize(ctx context.Context, img Image) (Result, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	c := gosseract.NewClient()
	defer c.Close()

	if err := c.SetLanguage(r.cfg.Languages...); err != nil {
		return Result{}, fmt.Errorf("set languages: %w", err)
	}
	if r.cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(r.cfg.TessdataDir); err != nil {
			return Result{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(r.cfg.PSM)); err != nil {
		return Result{}, fmt.Errorf("set page seg mode: %w", err)
	}

	if len(img.Bytes) > 0 {
		if err := c.SetImageFromBytes(img.Bytes); err != nil {
			return Result{}, fmt.Errorf("set image: %w", err)
		}
	} else if img.Path != "" {
		if err := c.SetImage(img.Path); err != nil {
			return Result{}, fmt.Errorf("set image: %w", err)
		}
	} else {
		return Result{}, fmt.Errorf("no image provided")
	}

	text, err := c.Text()
	if err != nil {
		r.logger.Warn("ocr.recognize.failed", "path", img.Path, "error", err)
		return Result{}, fmt.Errorf("recognize text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("no text recognized")
	}

	res := Result{
		Text:      text,
		Language:  r.cfg.Languages[0],
		CharCount: len([]rune(text)),
		Duration:  time.Since(start),
	}
	r.logger.Debug("ocr.recognize.ok", "path", img.Path, "chars", res.CharCount, "elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}
