package provider

import (
	"context"
	"sync"
	"time"
)

// MockReply is one scripted response.
type MockReply struct {
	Text  string
	Err   error
	Delay time.Duration
}

// MockProvider replays scripted replies in order. Once the script is
// exhausted it answers with Fallback, or an empty analysis object.
type MockProvider struct {
	base

	mu       sync.Mutex
	replies  []MockReply
	calls    []Request
	Fallback func(Request) (string, error)
}

// NewMockProvider creates a mock provider with the given script.
func NewMockProvider(replies ...MockReply) *MockProvider {
	return &MockProvider{
		base:    newBase("mock"),
		replies: replies,
	}
}

// Complete returns the next scripted reply.
func (p *MockProvider) Complete(ctx context.Context, req Request) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	var (
		reply    MockReply
		scripted bool
	)
	if len(p.replies) > 0 {
		reply, p.replies = p.replies[0], p.replies[1:]
		scripted = true
	}
	fallback := p.Fallback
	p.mu.Unlock()

	if reply.Delay > 0 {
		t := time.NewTimer(reply.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}

	switch {
	case scripted && reply.Err != nil:
		p.recordFailure(0)
		return "", reply.Err
	case scripted:
		p.recordSuccess(reply.Delay)
		return reply.Text, nil
	case fallback != nil:
		return fallback(req)
	default:
		p.recordSuccess(0)
		return `{"analysis": {}}`, nil
	}
}

// Calls returns a copy of every request received so far.
func (p *MockProvider) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// Close releases resources.
func (p *MockProvider) Close() error {
	return nil
}
