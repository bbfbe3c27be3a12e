package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Batch    BatchConfig
	Dedup    DedupConfig
	Pricing  PricingConfig
	Log      LogConfig
}

// DatabaseConfig holds corpus-store configuration. When DSN is a postgres://
// URL the Postgres repository is used; otherwise SQLitePath (or :memory:).
type DatabaseConfig struct {
	DSN             string
	SQLitePath      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// OCRConfig holds text-recognition configuration.
type OCRConfig struct {
	Languages   []string
	TessdataDir string
	PSM         int
}

// LLMConfig holds the structured-extraction client configuration.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	Timeout        time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// BatchConfig holds scheduler limits.
type BatchConfig struct {
	MaxWorkers  int
	ItemTimeout time.Duration
}

// DedupConfig holds duplicate-detection tuning. Threshold and MinTextLen are
// deliberately configuration, not constants; defaults follow the documented policy.
type DedupConfig struct {
	Threshold    float64
	MinTextLen   int
	RecentWindow int
	CacheSize    int
}

// PricingConfig holds the per-1K-token cost model.
type PricingConfig struct {
	InputPerK  float64
	OutputPerK float64
}

// LogConfig holds logging output configuration. File enables rotation.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			SQLitePath:      getEnv("SQLITE_PATH", "quizbank.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		OCR: OCRConfig{
			Languages:   []string{getEnv("OCR_LANG", "chi_sim"), "eng"},
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			PSM:         getEnvAsInt("OCR_PSM", 6),
		},
		LLM: LLMConfig{
			BaseURL:        getEnv("AI_API_BASE", "https://api.deepseek.com/v1"),
			APIKey:         getEnv("AI_API_KEY", ""),
			Model:          getEnv("AI_MODEL", "deepseek-chat"),
			Temperature:    getEnvAsFloat64("AI_TEMPERATURE", 0.1),
			Timeout:        getEnvAsDuration("AI_TIMEOUT", 30*time.Second),
			MaxAttempts:    getEnvAsInt("AI_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getEnvAsDuration("AI_RETRY_BASE_DELAY", 500*time.Millisecond),
		},
		Batch: BatchConfig{
			MaxWorkers:  getEnvAsInt("BATCH_MAX_WORKERS", 10),
			ItemTimeout: getEnvAsDuration("BATCH_ITEM_TIMEOUT", 25*time.Second),
		},
		Dedup: DedupConfig{
			Threshold:    getEnvAsFloat64("DEDUP_THRESHOLD", 0.85),
			MinTextLen:   getEnvAsInt("DEDUP_MIN_TEXT_LEN", 10),
			RecentWindow: getEnvAsInt("DEDUP_RECENT_WINDOW", 1000),
			CacheSize:    getEnvAsInt("DEDUP_CACHE_SIZE", 100),
		},
		Pricing: PricingConfig{
			InputPerK:  getEnvAsFloat64("AI_PRICE_INPUT_PER_K", 0.00014),
			OutputPerK: getEnvAsFloat64("AI_PRICE_OUTPUT_PER_K", 0.00056),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "AI_API_KEY is required", ErrInvalidInput)
	}
	if c.Dedup.Threshold < 0 || c.Dedup.Threshold > 1 {
		return NewAppError("CONFIG_ERROR", "DEDUP_THRESHOLD must be in [0,1]", ErrInvalidInput)
	}
	if c.Batch.ItemTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "BATCH_ITEM_TIMEOUT must be positive", ErrInvalidInput)
	}
	return nil
}
