// Package provider implements clients for the upstream language model.
//
// This package contains:
//   - Provider interface: the opaque invoke capability used by the analysis core
//   - OpenAIProvider: OpenAI-compatible chat completions (OpenAI, Groq, ...)
//   - GeminiProvider: Google Gemini via the genai SDK
//   - MockProvider: scripted replies for local runs and tests
//   - Monitor: latency and throttle tracking per provider
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: upstream rate limits, 5xx, network faults.
	ErrTransient = errors.New("transient upstream error")

	// ErrPermanent marks failures that will not succeed on retry: bad credential, invalid request.
	ErrPermanent = errors.New("permanent upstream error")
)

// Request is one completion call.
type Request struct {
	// Stage labels the call for metrics and logs.
	Stage        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Provider is the upstream model capability.
type Provider interface {
	// GetName returns the provider identifier (e.g. "openai", "gemini")
	GetName() string

	// Complete returns the raw text produced for req. Errors wrap ErrTransient or ErrPermanent.
	Complete(ctx context.Context, req Request) (string, error)

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// Close releases resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency_ns"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}

// Settings configures a provider.
type Settings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// New builds the provider named in s.Provider.
func New(ctx context.Context, s Settings) (Provider, error) {
	switch s.Provider {
	case "openai", "":
		return NewOpenAIProvider(s)
	case "gemini":
		return NewGeminiProvider(ctx, s)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", s.Provider)
	}
}

// statusError wraps an HTTP status from the upstream with the matching class.
func statusError(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return fmt.Errorf("%w: status %d: %v", ErrTransient, status, err)
	case status >= 400:
		return fmt.Errorf("%w: status %d: %v", ErrPermanent, status, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}
