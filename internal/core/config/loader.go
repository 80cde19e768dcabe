package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	GroqBaseURL  = "https://api.groq.com/openai/v1"
	DefaultModel = "mixtral-8x7b-32768"
)

// Default returns a complete configuration for running without a file.
func Default() *AppConfig {
	cfg := &AppConfig{
		Upstream: UpstreamConfig{
			APIKey: os.Getenv("GROQ_API_KEY"),
		},
	}
	setDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Upstream.Provider == "" {
		cfg.Upstream.Provider = "openai"
	}
	if cfg.Upstream.Provider == "openai" {
		if cfg.Upstream.BaseURL == "" {
			cfg.Upstream.BaseURL = GroqBaseURL
		}
		if cfg.Upstream.Model == "" {
			cfg.Upstream.Model = DefaultModel
		}
	}
	if cfg.Upstream.MaxTokens == 0 {
		cfg.Upstream.MaxTokens = 1000
	}
	if cfg.Upstream.Temperature == 0 {
		cfg.Upstream.Temperature = 0.7
	}
	if cfg.Upstream.AttemptTimeout == 0 {
		cfg.Upstream.AttemptTimeout = 60 * time.Second
	}

	if cfg.RateLimit.TokensPerMinute == 0 {
		cfg.RateLimit.TokensPerMinute = 3000
	}
	if cfg.RateLimit.Policy == "" {
		cfg.RateLimit.Policy = "fail_fast"
	}
	if cfg.RateLimit.FailFastThresholdSeconds == 0 {
		cfg.RateLimit.FailFastThresholdSeconds = 30
	}
	if cfg.RateLimit.ResponseTokenBuffer == 0 {
		cfg.RateLimit.ResponseTokenBuffer = 500
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelaySeconds == 0 {
		cfg.Retry.BaseDelaySeconds = 1.0
	}
	if cfg.Retry.MaxDelaySeconds == 0 {
		cfg.Retry.MaxDelaySeconds = 30
	}

	if cfg.Pipeline.MaxInputLength == 0 {
		cfg.Pipeline.MaxInputLength = 2000
	}
	if cfg.Pipeline.DefaultStyle == "" {
		cfg.Pipeline.DefaultStyle = "professional"
	}
	if cfg.Pipeline.RequestTimeout == 0 {
		cfg.Pipeline.RequestTimeout = 5 * time.Minute
	}

	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = time.Hour
	}
}

// Validate checks values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	switch c.Upstream.Provider {
	case "openai", "gemini", "mock":
	default:
		return fmt.Errorf("unknown upstream provider %q", c.Upstream.Provider)
	}
	if c.Upstream.Provider != "mock" && c.Upstream.APIKey == "" {
		return fmt.Errorf("upstream.api_key is required for provider %q", c.Upstream.Provider)
	}
	if c.Upstream.MaxTokens < 0 {
		return fmt.Errorf("upstream.max_tokens must be positive, got %d", c.Upstream.MaxTokens)
	}
	if c.Upstream.Temperature < 0 || c.Upstream.Temperature > 2 {
		return fmt.Errorf("upstream.temperature must be within [0, 2], got %v", c.Upstream.Temperature)
	}

	if c.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative, got %v", c.History.Retention)
	}

	if c.RateLimit.TokensPerMinute <= 0 {
		return fmt.Errorf("rate_limit.tokens_per_minute must be positive, got %d", c.RateLimit.TokensPerMinute)
	}
	switch c.RateLimit.Policy {
	case "block", "fail_fast":
	default:
		return fmt.Errorf("unknown rate_limit.policy %q", c.RateLimit.Policy)
	}
	if c.RateLimit.FailFastThresholdSeconds < 0 {
		return fmt.Errorf("rate_limit.fail_fast_threshold_seconds must not be negative")
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelaySeconds < 0 || c.Retry.MaxDelaySeconds < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}

	if c.Pipeline.MaxInputLength <= 0 {
		return fmt.Errorf("pipeline.max_input_length must be positive, got %d", c.Pipeline.MaxInputLength)
	}
	return nil
}
