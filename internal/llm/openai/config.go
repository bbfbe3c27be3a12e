package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hanzhifeng/quizbank/internal/llm"
)

// Config for the chat-completions client. Defaults target the DeepSeek
// endpoint, which speaks the OpenAI wire format.
type Config struct {
	APIKey         string        // if empty, falls back to env AI_API_KEY
	BaseURL        string        // default https://api.deepseek.com/v1
	Model          string        // e.g. "deepseek-chat"
	Temperature    float32       // 0..2
	Timeout        time.Duration // http client timeout per attempt
	MaxAttempts    int           // retry budget, including the first attempt
	RetryBaseDelay time.Duration // backoff base for retries
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("AI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

var _ llm.FieldExtractor = (*Client)(nil)
