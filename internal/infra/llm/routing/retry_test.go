package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/gramo/internal/core/domain"
	"github.com/vietddude/gramo/internal/infra/llm/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{fmt.Errorf("%w: status 429", provider.ErrTransient), ActionRetry},
		{fmt.Errorf("%w: status 401", provider.ErrPermanent), ActionFatal},
		{context.DeadlineExceeded, ActionRetry},
		{errors.New("401 Unauthorized"), ActionFatal},
		{errors.New("403 Forbidden"), ActionFatal},
		{errors.New("404 Not Found"), ActionFatal},
		{errors.New("request timeout"), ActionRetry},
		{errors.New("Invalid API Key"), ActionFatal},
		{errors.New("429 Too Many Requests"), ActionRetry},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("500 Internal Server Error"), ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func newTestRetrier(cfg RetryConfig) (*Retrier, *[]time.Duration) {
	r := NewRetrier(cfg)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func transient() error { return fmt.Errorf("%w: status 503", provider.ErrTransient) }

func TestCallWithRetry_SucceedsAfterTransient(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Second})
	p := provider.NewMockProvider(
		provider.MockReply{Err: transient()},
		provider.MockReply{Err: transient()},
		provider.MockReply{Text: "ok"},
	)

	got, err := r.CallWithRetry(context.Background(), p, provider.Request{Stage: "grammar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestCallWithRetry_Exhausted(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Second})
	p := provider.NewMockProvider(
		provider.MockReply{Err: transient()},
		provider.MockReply{Err: transient()},
		provider.MockReply{Err: transient()},
		provider.MockReply{Text: "never reached"},
	)

	_, err := r.CallWithRetry(context.Background(), p, provider.Request{Stage: "grammar"})
	if !errors.Is(err, domain.ErrUpstreamExhausted) {
		t.Fatalf("expected ErrUpstreamExhausted, got %v", err)
	}
	if n := len(p.Calls()); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
	// No sleep after the final attempt.
	if len(*slept) != 2 {
		t.Errorf("expected 2 backoff waits, got %d", len(*slept))
	}
}

func TestCallWithRetry_PermanentStopsImmediately(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Second})
	p := provider.NewMockProvider(
		provider.MockReply{Err: fmt.Errorf("%w: status 401", provider.ErrPermanent)},
	)

	_, err := r.CallWithRetry(context.Background(), p, provider.Request{})
	if !errors.Is(err, domain.ErrUpstreamRejected) {
		t.Fatalf("expected ErrUpstreamRejected, got %v", err)
	}
	if errors.Is(err, domain.ErrUpstreamExhausted) {
		t.Error("permanent failure must not be reported as exhaustion")
	}
	if len(p.Calls()) != 1 || len(*slept) != 0 {
		t.Errorf("expected a single call and no waits, got %d calls %d waits", len(p.Calls()), len(*slept))
	}
}

func TestCallWithRetry_AttemptTimeoutIsTransient(t *testing.T) {
	r, _ := newTestRetrier(RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, AttemptTimeout: 10 * time.Millisecond})
	p := provider.NewMockProvider(
		provider.MockReply{Text: "slow", Delay: time.Second},
		provider.MockReply{Text: "fast"},
	)

	got, err := r.CallWithRetry(context.Background(), p, provider.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fast" {
		t.Errorf("got %q, want fast", got)
	}
}

func TestCallWithRetry_CallerCancel(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Hour})
	p := provider.NewMockProvider(provider.MockReply{Err: transient()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.CallWithRetry(ctx, p, provider.Request{})
	if !errors.Is(err, domain.ErrUpstreamExhausted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected exhausted deadline error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("backoff wait was not cancelled")
	}
}

func TestCalculateBackoffCapped(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second})
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{8, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := r.calculateBackoff(tt.attempt); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
