package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// APIError is a non-2xx reply from the chat endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// RetryConfig controls the exponential backoff around extraction calls.
type RetryConfig struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before attempt n is BaseDelay * 2^(n-1)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	return c
}

// IsRetryable reports whether an error is worth another attempt. Rate limits,
// server errors and transient network failures are; auth failures and
// malformed replies are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedReply) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode == 408:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// WithRetry runs attempt up to cfg.MaxAttempts times, backing off
// exponentially between tries. Permanent errors and context cancellation stop
// the loop immediately; the last error is returned on exhaustion.
func WithRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, attempt func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for n := 1; n <= cfg.MaxAttempts; n++ {
		if n > 1 {
			delay := cfg.BaseDelay * (1 << (n - 2))
			logger.Warn("llm.extract.retry",
				"attempt", n,
				"max_attempts", cfg.MaxAttempts,
				"delay_ms", delay.Milliseconds(),
				"error", lastErr.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}
