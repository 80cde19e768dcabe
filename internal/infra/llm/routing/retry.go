// Package routing runs upstream calls with bounded exponential backoff.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/vietddude/gramo/internal/analysis/metrics"
	"github.com/vietddude/gramo/internal/core/domain"
	"github.com/vietddude/gramo/internal/infra/llm/provider"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	// AttemptTimeout bounds each single call. Zero means only the caller's context applies.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	BaseDelay:       1 * time.Second,
	MaxDelay:        30 * time.Second,
	BackoffMultiple: 2.0,
	AttemptTimeout:  60 * time.Second,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

func (a ErrorAction) String() string {
	if a == ActionFatal {
		return "fatal"
	}
	return "retry"
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	switch {
	case errors.Is(err, provider.ErrPermanent):
		return ActionFatal
	case errors.Is(err, provider.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return ActionRetry
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// Credential or request issues
	if strings.Contains(s, "401") || strings.Contains(sLower, "unauthorized") ||
		strings.Contains(s, "403") || strings.Contains(sLower, "forbidden") ||
		strings.Contains(sLower, "400 bad request") ||
		strings.Contains(sLower, "404 not found") ||
		strings.Contains(sLower, "invalid api key") ||
		strings.Contains(sLower, "invalid_request") ||
		strings.Contains(sLower, "model not found") {
		return ActionFatal
	}

	// Default to Retry (rate limits, network, 5xx, etc)
	return ActionRetry
}

// Retrier executes upstream calls with exponential backoff.
type Retrier struct {
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
	log    *slog.Logger
}

// NewRetrier creates a retrier. Zero fields fall back to DefaultRetryConfig.
func NewRetrier(config RetryConfig) *Retrier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if config.BaseDelay < 0 {
		config.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if config.BackoffMultiple <= 1 {
		config.BackoffMultiple = DefaultRetryConfig.BackoffMultiple
	}
	return &Retrier{
		config: config,
		sleep:  sleepContext,
		log:    slog.Default().With("component", "retry"),
	}
}

// Config returns the effective configuration.
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// CallWithRetry invokes p until it succeeds, fails permanently, or attempts run out.
// Exhaustion wraps domain.ErrUpstreamExhausted; a permanent failure wraps
// domain.ErrUpstreamRejected.
func (r *Retrier) CallWithRetry(ctx context.Context, p provider.Provider, req provider.Request) (string, error) {
	var lastErr error

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		result, err := r.attempt(ctx, p, req)
		if err == nil {
			metrics.UpstreamCallsTotal.WithLabelValues(p.GetName(), req.Stage, "success").Inc()
			return result, nil
		}

		lastErr = err

		// Caller gave up; an attempt timeout alone is retryable.
		if ctx.Err() != nil {
			metrics.UpstreamCallsTotal.WithLabelValues(p.GetName(), req.Stage, "cancelled").Inc()
			return "", fmt.Errorf("%w: %w", domain.ErrUpstreamExhausted, ctx.Err())
		}

		if ClassifyError(err) == ActionFatal {
			metrics.UpstreamCallsTotal.WithLabelValues(p.GetName(), req.Stage, "rejected").Inc()
			return "", fmt.Errorf("%w: %w", domain.ErrUpstreamRejected, err)
		}
		metrics.UpstreamCallsTotal.WithLabelValues(p.GetName(), req.Stage, "transient").Inc()

		if attempt == r.config.MaxAttempts-1 {
			break
		}

		delay := r.calculateBackoff(attempt)
		r.log.Warn("Retrying upstream call",
			"provider", p.GetName(),
			"stage", req.Stage,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		metrics.UpstreamRetries.WithLabelValues(req.Stage).Inc()
		if err := r.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrUpstreamExhausted, err)
		}
	}

	return "", fmt.Errorf("%w: failed after %d attempts: %w", domain.ErrUpstreamExhausted, r.config.MaxAttempts, lastErr)
}

func (r *Retrier) attempt(ctx context.Context, p provider.Provider, req provider.Request) (string, error) {
	if r.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := p.Complete(ctx, req)
	metrics.UpstreamLatency.WithLabelValues(p.GetName(), req.Stage).Observe(time.Since(start).Seconds())
	return result, err
}

func (r *Retrier) calculateBackoff(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.BackoffMultiple, float64(attempt))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
