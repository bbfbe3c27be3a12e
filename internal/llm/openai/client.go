package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hanzhifeng/quizbank/internal/llm"
)

// ExtractQuestion implements llm.FieldExtractor using text-only
// chat/completions. The HTTP call is retried with exponential backoff; the
// decoded reply is returned as-is and shape validation is left to the caller.
func (c *Client) ExtractQuestion(ctx context.Context, req llm.ExtractRequest) (llm.QuestionFields, llm.Usage, error) {
	rid := uuid.New().String()
	start := time.Now()

	ocrText := clipRunes(req.OCRText, maxPromptOCRRunes)

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(ocrText),
		"type_hint", req.TypeHint,
		"classify", req.IncludeClassification,
	)

	schema := llm.BuildQuestionJSONSchema(req.IncludeClassification, nil)
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(req)},
			{"role": "user", "content": buildUserPrompt(ocrText, req.TypeHint, req.IncludeClassification)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	var raw []byte
	retryCfg := llm.RetryConfig{MaxAttempts: c.cfg.MaxAttempts, BaseDelay: c.cfg.RetryBaseDelay}
	httpErr := llm.WithRetry(ctx, retryCfg, c.log, func(ctx context.Context) error {
		var err error
		raw, err = c.post(ctx, endpoint, body)
		return err
	})
	if httpErr != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.QuestionFields{}, llm.Usage{}, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.QuestionFields{}, llm.Usage{}, fmt.Errorf("decode chat response: %w", err)
	}
	usage := llm.Usage{InputTokens: cc.Usage.PromptTokens, OutputTokens: cc.Usage.CompletionTokens}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.extract.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.QuestionFields{}, usage, fmt.Errorf("%w: no choices in chat response", llm.ErrMalformedReply)
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	payload, err := llm.ExtractJSON(content)
	if err != nil {
		c.log.Error("llm.extract.no_json",
			"req_id", rid, "content", content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.QuestionFields{}, usage, err
	}

	var out llm.QuestionFields
	if err := json.Unmarshal(payload, &out); err != nil {
		c.log.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.QuestionFields{}, usage, fmt.Errorf("%w: %v", llm.ErrMalformedReply, err)
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"question_len", len(out.QuestionText),
		"options", len(out.Options),
		"question_type", out.QuestionType,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, usage, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("chat response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &llm.APIError{StatusCode: resp.StatusCode, Body: buf.String()}
	}
	return buf.Bytes(), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
