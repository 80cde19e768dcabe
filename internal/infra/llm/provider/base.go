package provider

import (
	"sync"
	"time"
)

// base implements common provider functionality.
// It handles health tracking and feeds the throttle monitor.
type base struct {
	name string

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int

	Monitor *Monitor
}

func newBase(name string) base {
	return base{
		name: name,
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
		Monitor: NewMonitor(),
	}
}

// GetName returns the provider's name.
func (p *base) GetName() string {
	return p.name
}

// GetHealth returns the provider's health status.
func (p *base) GetHealth() HealthStatus {
	stats := p.Monitor.GetStats()

	p.mu.RLock()
	defer p.mu.RUnlock()
	h := p.health
	h.MonitorStats = &stats
	return h
}

func (p *base) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true

	if p.requestCount > 0 {
		p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	}
	if p.successCount > 0 {
		p.health.Latency = p.totalLatency / time.Duration(p.successCount)
	}

	p.Monitor.RecordRequest(latency)
}

func (p *base) recordFailure(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()

	if p.requestCount > 0 {
		p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	}
	if p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}

	if status == 429 || status == 401 || status == 403 {
		p.Monitor.RecordThrottle(status)
	}
}
