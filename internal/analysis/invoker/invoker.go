// Package invoker performs one resilient upstream call: budget admission,
// retry with backoff, and recovery of structured data from the reply.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vietddude/gramo/internal/analysis/metrics"
	"github.com/vietddude/gramo/internal/analysis/recovery"
	"github.com/vietddude/gramo/internal/core/domain"
	"github.com/vietddude/gramo/internal/infra/llm/provider"
	"github.com/vietddude/gramo/internal/infra/llm/routing"
)

// Admitter reserves upstream budget before a call.
type Admitter interface {
	Acquire(ctx context.Context, tokensNeeded int) error
}

// Config holds per-call upstream parameters.
type Config struct {
	MaxTokens   int
	Temperature float64
	// ResponseTokenBuffer is added to the prompt estimate to cover the reply.
	ResponseTokenBuffer int
}

// DefaultConfig returns the parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxTokens:           1000,
		Temperature:         0.7,
		ResponseTokenBuffer: 500,
	}
}

// Call is one upstream request.
type Call struct {
	Stage        domain.StageName
	SystemPrompt string
	UserPrompt   string
}

// Result carries what came back. Raw is kept even when recovery fails.
// JSON is the clean text Parsed was decoded from.
type Result struct {
	Raw    string
	Parsed map[string]any
	JSON   []byte
	Method recovery.Method
}

// Invoker wraps a provider with rate limiting, retries and response recovery.
type Invoker struct {
	limiter  Admitter
	retrier  *routing.Retrier
	provider provider.Provider
	cfg      Config
	log      *slog.Logger
}

// New creates an invoker.
func New(limiter Admitter, retrier *routing.Retrier, p provider.Provider, cfg Config) *Invoker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.ResponseTokenBuffer < 0 {
		cfg.ResponseTokenBuffer = 0
	}
	return &Invoker{
		limiter:  limiter,
		retrier:  retrier,
		provider: p,
		cfg:      cfg,
		log:      slog.Default().With("component", "invoker", "provider", p.GetName()),
	}
}

// EstimateTokens approximates the budget cost of a prompt.
func EstimateTokens(prompt string, responseBuffer int) int {
	return len(strings.Fields(prompt)) + responseBuffer
}

// Invoke runs call once through the limiter, the retrier and recovery.
//
// A rate limit rejection is returned as is and never retried. A reply that
// cannot be recovered yields an error wrapping domain.ErrParseFailure along
// with a Result holding the raw text.
func (iv *Invoker) Invoke(ctx context.Context, call Call) (Result, error) {
	stage := string(call.Stage)
	tokens := EstimateTokens(call.UserPrompt, iv.cfg.ResponseTokenBuffer)

	if err := iv.limiter.Acquire(ctx, tokens); err != nil {
		if errors.Is(err, domain.ErrRateLimitExceeded) {
			iv.log.Warn("Upstream budget exhausted", "stage", stage, "tokens", tokens, "error", err)
			return Result{}, err
		}
		// Cancelled while waiting for budget.
		return Result{}, fmt.Errorf("%w: %w", domain.ErrUpstreamExhausted, err)
	}

	raw, err := iv.retrier.CallWithRetry(ctx, iv.provider, provider.Request{
		Stage:        stage,
		SystemPrompt: call.SystemPrompt,
		UserPrompt:   call.UserPrompt,
		MaxTokens:    iv.cfg.MaxTokens,
		Temperature:  iv.cfg.Temperature,
	})
	if err != nil {
		iv.log.Error("Upstream call failed", "stage", stage, "error", err)
		return Result{}, err
	}

	payload, err := recovery.Decode(raw)
	metrics.RecoveryFallbacks.WithLabelValues(string(payload.Method)).Inc()
	if err != nil {
		iv.log.Warn("Failed to parse upstream response", "stage", stage, "error", err)
		return Result{Raw: raw, Method: payload.Method}, err
	}
	if payload.Method != recovery.MethodStrict {
		iv.log.Debug("Recovered malformed response", "stage", stage, "method", payload.Method)
	}

	return Result{Raw: raw, Parsed: payload.Data, JSON: payload.JSON, Method: payload.Method}, nil
}
