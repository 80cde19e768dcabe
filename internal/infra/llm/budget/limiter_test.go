package budget

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vietddude/gramo/internal/core/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	slept := &[]time.Duration{}

	l := NewLimiter(cfg)
	l.now = clock.Now
	l.lastRefill = clock.Now()
	l.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return l, clock, slept
}

func TestLimiter_FastPath(t *testing.T) {
	l, _, slept := newTestLimiter(Config{TokensPerMinute: 600, Policy: PolicyBlock})

	if err := l.Acquire(context.Background(), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, _ := l.Snapshot(context.Background())
	if snap.AvailableTokens != 500 {
		t.Errorf("Expected 500 tokens left, got %v", snap.AvailableTokens)
	}
	if snap.BackoffFloor != 1.0 {
		t.Errorf("Expected backoff floor 1.0, got %v", snap.BackoffFloor)
	}
	if len(*slept) != 0 {
		t.Errorf("Fast path should not sleep, slept %v", *slept)
	}
}

func TestLimiter_Refill(t *testing.T) {
	l, clock, _ := newTestLimiter(Config{TokensPerMinute: 600, Policy: PolicyBlock})

	if err := l.Acquire(context.Background(), 600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 600 tokens/min = 10 tokens/s
	clock.Advance(3 * time.Second)
	snap, _ := l.Snapshot(context.Background())
	if snap.AvailableTokens != 30 {
		t.Errorf("Expected 30 tokens after 3s, got %v", snap.AvailableTokens)
	}

	clock.Advance(10 * time.Minute)
	snap, _ = l.Snapshot(context.Background())
	if snap.AvailableTokens != 600 {
		t.Errorf("Refill must cap at capacity, got %v", snap.AvailableTokens)
	}
}

func TestLimiter_BlockAndWait(t *testing.T) {
	l, _, slept := newTestLimiter(Config{TokensPerMinute: 600, Policy: PolicyBlock})

	if err := l.Acquire(context.Background(), 600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Bucket empty: need 300 -> 300*60/600 = 30s
	if err := l.Acquire(context.Background(), 300); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*slept) != 1 || (*slept)[0] != 30*time.Second {
		t.Fatalf("Expected one 30s wait, got %v", *slept)
	}

	snap, _ := l.Snapshot(context.Background())
	if snap.AvailableTokens != 300 {
		t.Errorf("Expected capacity minus request (300), got %v", snap.AvailableTokens)
	}
	if snap.BackoffFloor != 1.5 {
		t.Errorf("Expected backoff floor 1.5 after forced wait, got %v", snap.BackoffFloor)
	}
}

func TestLimiter_WaitUsesBackoffFloor(t *testing.T) {
	l, _, slept := newTestLimiter(Config{TokensPerMinute: 6000, Policy: PolicyBlock})
	l.backoffFloor = 4

	// The fast path relaxes the floor to 3.6s.
	if err := l.Acquire(context.Background(), 6000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A 10 token shortfall refills in 0.1s, well under the floor.
	if err := l.Acquire(context.Background(), 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 1 {
		t.Fatalf("Expected one wait, got %v", *slept)
	}
	if diff := (*slept)[0] - 3600*time.Millisecond; diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("Expected wait equal to the floor (3.6s), got %v", (*slept)[0])
	}
}

func TestLimiter_FailFast(t *testing.T) {
	l, _, slept := newTestLimiter(Config{
		TokensPerMinute:   60,
		Policy:            PolicyFailFast,
		FailFastThreshold: 30 * time.Second,
	})

	if err := l.Acquire(context.Background(), 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := l.Acquire(context.Background(), 60)
	if !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("Expected ErrRateLimitExceeded, got %v", err)
	}

	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("Expected *RateLimitError, got %T", err)
	}
	if rlErr.RetryAfter <= 0 {
		t.Errorf("Expected positive retry-after, got %v", rlErr.RetryAfter)
	}
	if rlErr.RetryAfter != 60*time.Second {
		t.Errorf("Expected retry-after 60s, got %v", rlErr.RetryAfter)
	}
	if len(*slept) != 0 {
		t.Errorf("Fail-fast must not sleep, slept %v", *slept)
	}

	snap, _ := l.Snapshot(context.Background())
	if snap.AvailableTokens != 0 {
		t.Errorf("Rejected call must not consume tokens, got %v", snap.AvailableTokens)
	}
}

func TestLimiter_FailFastWaitsBelowThreshold(t *testing.T) {
	l, _, slept := newTestLimiter(Config{
		TokensPerMinute:   600,
		Policy:            PolicyFailFast,
		FailFastThreshold: 30 * time.Second,
	})

	_ = l.Acquire(context.Background(), 600)
	if err := l.Acquire(context.Background(), 100); err != nil {
		t.Fatalf("Expected a 10s wait, got error %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 10*time.Second {
		t.Errorf("Expected one 10s wait, got %v", *slept)
	}
}

func TestLimiter_ClampsOversizedRequest(t *testing.T) {
	l, _, _ := newTestLimiter(Config{TokensPerMinute: 100, Policy: PolicyBlock})

	if err := l.Acquire(context.Background(), 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Acquire(context.Background(), 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, _ := l.Snapshot(context.Background())
	if snap.AvailableTokens < 0 {
		t.Errorf("Available tokens went negative: %v", snap.AvailableTokens)
	}
}

func TestLimiter_BoundsHoldForRandomLoad(t *testing.T) {
	l, clock, _ := newTestLimiter(Config{TokensPerMinute: 1000, Policy: PolicyBlock})
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		clock.Advance(time.Duration(rng.Intn(2000)) * time.Millisecond)
		if err := l.Acquire(context.Background(), 1+rng.Intn(1500)); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		snap, _ := l.Snapshot(context.Background())
		if snap.AvailableTokens < 0 || snap.AvailableTokens > float64(snap.Capacity) {
			t.Fatalf("acquire %d: available tokens %v outside [0, %d]", i, snap.AvailableTokens, snap.Capacity)
		}
		if snap.BackoffFloor < 1.0 {
			t.Fatalf("acquire %d: backoff floor %v below 1.0", i, snap.BackoffFloor)
		}
	}
}

func TestLimiter_BackoffFloorNonDecreasingUnderContention(t *testing.T) {
	l, _, _ := newTestLimiter(Config{TokensPerMinute: 500, Policy: PolicyBlock})

	// sleep runs while the lock is held, so reading the floor here is safe.
	var floors []float64
	l.sleep = func(_ context.Context, _ time.Duration) error {
		floors = append(floors, l.backoffFloor)
		return nil
	}

	const callers = 20
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background(), 500); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(floors) != callers-1 {
		t.Fatalf("Expected %d forced waits, got %d", callers-1, len(floors))
	}
	for i := 1; i < len(floors); i++ {
		if floors[i] < floors[i-1] {
			t.Errorf("Backoff floor decreased between waits %d and %d: %v -> %v", i-1, i, floors[i-1], floors[i])
		}
	}
}

func TestLimiter_CancelDuringWait(t *testing.T) {
	l := NewLimiter(Config{TokensPerMinute: 60, Policy: PolicyBlock})

	if err := l.Acquire(context.Background(), 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Acquire(ctx, 60)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Cancelled wait took too long: %v", time.Since(start))
	}
}

func TestLimiter_CancelWhileQueued(t *testing.T) {
	l, _, _ := newTestLimiter(Config{TokensPerMinute: 60, Policy: PolicyBlock})

	holding := make(chan struct{})
	release := make(chan struct{})
	l.sleep = func(ctx context.Context, _ time.Duration) error {
		close(holding)
		<-release
		return nil
	}

	_ = l.Acquire(context.Background(), 60)

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background(), 60) }()
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected queued caller to observe cancellation, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("Holder should complete normally, got %v", err)
	}
}

func TestLimiter_Reset(t *testing.T) {
	l, _, _ := newTestLimiter(Config{TokensPerMinute: 100, Policy: PolicyBlock})
	_ = l.Acquire(context.Background(), 100)
	_ = l.Acquire(context.Background(), 100)

	l.Reset()

	snap, _ := l.Snapshot(context.Background())
	if snap.AvailableTokens != 100 || snap.BackoffFloor != 1.0 {
		t.Errorf("Expected full bucket and floor 1.0 after reset, got %+v", snap)
	}
}

func TestLimiter_ResetWaitsForHolder(t *testing.T) {
	l, _, _ := newTestLimiter(Config{TokensPerMinute: 60, Policy: PolicyBlock})

	holding := make(chan struct{})
	release := make(chan struct{})
	l.sleep = func(ctx context.Context, _ time.Duration) error {
		close(holding)
		<-release
		return nil
	}

	_ = l.Acquire(context.Background(), 60)

	acquired := make(chan error, 1)
	go func() { acquired <- l.Acquire(context.Background(), 60) }()
	<-holding

	reset := make(chan struct{})
	go func() {
		l.Reset()
		close(reset)
	}()

	select {
	case <-reset:
		t.Fatal("Reset must not run while an acquire holds the lock")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if err := <-acquired; err != nil {
		t.Fatalf("Holder should complete normally, got %v", err)
	}
	<-reset

	snap, _ := l.Snapshot(context.Background())
	if snap.AvailableTokens != 60 || snap.BackoffFloor != 1.0 {
		t.Errorf("Expected reset to win after the holder, got %+v", snap)
	}
}

func TestNewLimiter_LogsWithComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	NewLimiter(Config{TokensPerMinute: 100})

	line := buf.String()
	if !strings.Contains(line, "Initialized rate limiter") || !strings.Contains(line, "component=limiter") {
		t.Errorf("Expected component logger, got %q", line)
	}
}
