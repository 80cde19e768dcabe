package provider

import (
	"strings"
	"sync"
	"time"
)

// Status represents the health state of a provider.
type Status int

const (
	StatusHealthy   Status = iota // Provider is working normally
	StatusDegraded                // Provider is slow but working
	StatusThrottled               // Provider is rate limiting us
	StatusBlocked                 // Provider rejected our credential
)

func (s Status) String() string {
	switch s {
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "healthy"
	}
}

// MarshalText renders the status by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name; unknown names read as healthy.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "degraded":
		*s = StatusDegraded
	case "throttled":
		*s = StatusThrottled
	case "blocked":
		*s = StatusBlocked
	default:
		*s = StatusHealthy
	}
	return nil
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status            Status        `json:"status"`
	AverageLatency    time.Duration `json:"average_latency_ns"`
	ThrottleCount429  int           `json:"throttle_count_429"`
	AuthFailures      int           `json:"auth_failures"`
	RequestsLast1Hour int           `json:"requests_last_1h"`
	RetryAfter        time.Duration `json:"retry_after_ns"`
}

// Monitor tracks provider latency and rate limiting.
type Monitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	status429Count     int
	authFailureCount   int
	throttlePatterns   []string
	lastThrottleTime   time.Time
	retryAfterDuration time.Duration

	requestTimestamps []time.Time
	windowDuration    time.Duration

	slowResponseThreshold time.Duration
}

// NewMonitor creates a new monitor with default settings.
func NewMonitor() *Monitor {
	return &Monitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"rate limit",
			"rate_limit",
			"too many requests",
			"tokens per minute",
			"quota exceeded",
			"resource_exhausted",
		},
		windowDuration:        time.Hour,
		slowResponseThreshold: 20 * time.Second,
	}
}

// RecordRequest records a successful request with its latency.
func (m *Monitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}

	m.requestTimestamps = append(m.requestTimestamps, now)
	cutoff := now.Add(-m.windowDuration)
	i := 0
	for i < len(m.requestTimestamps) && !m.requestTimestamps[i].After(cutoff) {
		i++
	}
	m.requestTimestamps = m.requestTimestamps[i:]
}

// RecordThrottle records a rate limiting or credential rejection.
func (m *Monitor) RecordThrottle(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastThrottleTime = time.Now()

	switch statusCode {
	case 429:
		m.status429Count++
		m.retryAfterDuration = 60 * time.Second
	case 401, 403:
		m.authFailureCount++
		m.retryAfterDuration = 10 * time.Minute
	}
}

// DetectThrottlePattern checks if a message contains throttle patterns.
func (m *Monitor) DetectThrottlePattern(message string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowerMsg := strings.ToLower(message)
	for _, pattern := range m.throttlePatterns {
		if strings.Contains(lowerMsg, pattern) {
			return true
		}
	}
	return false
}

// CheckStatus returns the current status of the provider.
func (m *Monitor) CheckStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusUnsafe()
}

func (m *Monitor) statusUnsafe() Status {
	recent := time.Since(m.lastThrottleTime) < m.retryAfterDuration

	if m.authFailureCount > 0 && recent {
		return StatusBlocked
	}
	if m.status429Count > 5 && recent {
		return StatusThrottled
	}
	if len(m.recentLatencies) > 10 && m.averageLatencyUnsafe() > m.slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (m *Monitor) averageLatencyUnsafe() time.Duration {
	if len(m.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

// GetRetryAfter returns remaining time before the upstream expects us back.
func (m *Monitor) GetRetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.retryAfterDuration > 0 {
		if remaining := m.retryAfterDuration - time.Since(m.lastThrottleTime); remaining > 0 {
			return remaining
		}
	}
	return 0
}

// GetStats returns current monitoring statistics.
func (m *Monitor) GetStats() MonitorStats {
	retryAfter := m.GetRetryAfter()

	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitorStats{
		Status:            m.statusUnsafe(),
		AverageLatency:    m.averageLatencyUnsafe(),
		ThrottleCount429:  m.status429Count,
		AuthFailures:      m.authFailureCount,
		RequestsLast1Hour: len(m.requestTimestamps),
		RetryAfter:        retryAfter,
	}
}
