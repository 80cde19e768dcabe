package config

import (
	"time"

	redisclient "github.com/vietddude/gramo/internal/infra/redis"
	"github.com/vietddude/gramo/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Upstream  UpstreamConfig     `yaml:"upstream"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	Retry     RetryConfig        `yaml:"retry"`
	Pipeline  PipelineConfig     `yaml:"pipeline"`
	History   HistoryConfig      `yaml:"history"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// UpstreamConfig selects and parameterizes the language model.
type UpstreamConfig struct {
	Provider       string        `yaml:"provider"` // openai, gemini, mock
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"` // 0 = bounded only by the request
}

// RateLimitConfig holds the shared token budget settings.
type RateLimitConfig struct {
	TokensPerMinute          int     `yaml:"tokens_per_minute"`
	Policy                   string  `yaml:"policy"` // block, fail_fast
	FailFastThresholdSeconds float64 `yaml:"fail_fast_threshold_seconds"`
	ResponseTokenBuffer      int     `yaml:"response_token_buffer"`
}

// RetryConfig holds upstream retry settings.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	BaseDelaySeconds float64 `yaml:"base_delay_seconds"`
	MaxDelaySeconds  float64 `yaml:"max_delay_seconds"`
}

// PipelineConfig holds request-level settings.
type PipelineConfig struct {
	MaxInputLength int           `yaml:"max_input_length"`
	DefaultStyle   string        `yaml:"default_style"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // 0 = no deadline
}

// HistoryConfig controls how long analyses are kept.
type HistoryConfig struct {
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}

// Seconds converts a float number of seconds to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
