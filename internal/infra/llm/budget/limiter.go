// Package budget guards the shared upstream token budget.
//
// This package contains:
//   - Limiter: refilling token bucket with an adaptive backoff floor
//   - RateLimitError: fail-fast rejection carrying a retry-after hint
//   - Snapshot: read-only view of the bucket for health reporting
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vietddude/gramo/internal/analysis/metrics"
	"github.com/vietddude/gramo/internal/core/domain"
)

// Policy selects what Acquire does when the bucket is short.
type Policy string

const (
	// PolicyBlock always waits for the computed time.
	PolicyBlock Policy = "block"
	// PolicyFailFast rejects when the computed wait exceeds FailFastThreshold.
	PolicyFailFast Policy = "fail_fast"
)

const minBackoffFloor = 1.0

// Config holds limiter configuration.
type Config struct {
	TokensPerMinute   int
	Policy            Policy
	FailFastThreshold time.Duration
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		TokensPerMinute:   3000,
		Policy:            PolicyFailFast,
		FailFastThreshold: 30 * time.Second,
	}
}

// RateLimitError is returned when the fail-fast policy refuses to wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %d seconds", int(math.Ceil(e.RetryAfter.Seconds())))
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimitExceeded }

// Snapshot is a point-in-time copy of the bucket state.
type Snapshot struct {
	Capacity        int       `json:"capacity"`
	AvailableTokens float64   `json:"available_tokens"`
	BackoffFloor    float64   `json:"backoff_floor_seconds"`
	LastRefill      time.Time `json:"last_refill"`
	Policy          Policy    `json:"policy"`
}

// Limiter is a token bucket shared by every caller of the upstream service.
// All reads and writes of the bucket happen while holding lock, including
// the forced wait, so concurrent Acquire calls are strictly serialized.
type Limiter struct {
	// lock is a one-slot semaphore rather than a sync.Mutex so that
	// waiting for it can be abandoned when the caller's context ends.
	lock chan struct{}

	capacity     int
	available    float64
	lastRefill   time.Time
	backoffFloor float64

	policy            Policy
	failFastThreshold time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   *slog.Logger
}

// NewLimiter creates a full bucket.
func NewLimiter(cfg Config) *Limiter {
	if cfg.TokensPerMinute <= 0 {
		cfg.TokensPerMinute = DefaultConfig().TokensPerMinute
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyFailFast
	}
	if cfg.FailFastThreshold <= 0 {
		cfg.FailFastThreshold = DefaultConfig().FailFastThreshold
	}

	l := &Limiter{
		lock:              make(chan struct{}, 1),
		capacity:          cfg.TokensPerMinute,
		available:         float64(cfg.TokensPerMinute),
		backoffFloor:      minBackoffFloor,
		policy:            cfg.Policy,
		failFastThreshold: cfg.FailFastThreshold,
		now:               time.Now,
		sleep:             sleepContext,
		log:               slog.Default().With("component", "limiter"),
	}
	l.lastRefill = l.now()

	l.log.Info("Initialized rate limiter",
		"tokens_per_minute", cfg.TokensPerMinute,
		"policy", cfg.Policy,
		"fail_fast_threshold", cfg.FailFastThreshold,
	)
	return l
}

// Acquire takes tokensNeeded tokens from the bucket, waiting if the policy allows it.
// It returns a *RateLimitError when the fail-fast policy rejects the call, or the
// context error when ctx ends while queued for the lock or during a forced wait.
func (l *Limiter) Acquire(ctx context.Context, tokensNeeded int) error {
	if tokensNeeded <= 0 {
		return nil
	}
	if err := l.enter(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	defer l.leave()

	l.refillUnsafe()

	need := float64(tokensNeeded)
	if need > float64(l.capacity) {
		l.log.Warn("Request exceeds bucket capacity, clamping", "tokens", tokensNeeded, "capacity", l.capacity)
		need = float64(l.capacity)
	}

	if l.available >= need {
		l.available -= need
		l.backoffFloor = math.Max(minBackoffFloor, l.backoffFloor*0.9)
		l.publishUnsafe()
		return nil
	}

	waitSeconds := math.Max((need-l.available)*60/float64(l.capacity), l.backoffFloor)
	wait := time.Duration(waitSeconds * float64(time.Second))

	if l.policy == PolicyFailFast && wait > l.failFastThreshold {
		l.log.Error("Rate limit exceeded", "required_wait", wait, "threshold", l.failFastThreshold)
		metrics.LimiterRejections.Inc()
		return &RateLimitError{RetryAfter: wait}
	}

	l.log.Warn("Rate limit prevention: waiting", "wait", wait, "backoff_floor", l.backoffFloor)
	metrics.LimiterWaitSeconds.Observe(wait.Seconds())
	if err := l.sleep(ctx, wait); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	l.backoffFloor *= 1.5
	l.available = float64(l.capacity) - need
	l.lastRefill = l.now()
	l.publishUnsafe()
	return nil
}

// Reset restores a full bucket and the minimum backoff floor.
// It waits for any in-flight Acquire to finish first.
func (l *Limiter) Reset() {
	l.lock <- struct{}{}
	defer l.leave()

	l.available = float64(l.capacity)
	l.lastRefill = l.now()
	l.backoffFloor = minBackoffFloor
	l.publishUnsafe()
	l.log.Info("Rate limiter reset")
}

// Snapshot returns the current bucket state after applying pending refill.
func (l *Limiter) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := l.enter(ctx); err != nil {
		return Snapshot{}, err
	}
	defer l.leave()

	l.refillUnsafe()
	return Snapshot{
		Capacity:        l.capacity,
		AvailableTokens: l.available,
		BackoffFloor:    l.backoffFloor,
		LastRefill:      l.lastRefill,
		Policy:          l.policy,
	}, nil
}

func (l *Limiter) enter(ctx context.Context) error {
	select {
	case l.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) leave() {
	<-l.lock
}

func (l *Limiter) refillUnsafe() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed > 0 {
		l.available = math.Min(float64(l.capacity), l.available+elapsed*float64(l.capacity)/60)
	}
	l.lastRefill = now
}

func (l *Limiter) publishUnsafe() {
	metrics.LimiterAvailableTokens.Set(l.available)
	metrics.LimiterBackoffFloor.Set(l.backoffFloor)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
