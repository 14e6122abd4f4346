package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu                   sync.Mutex
	requestCount         map[string]int64
	errorCount           map[string]int64
	transitionCount      map[string]int64
	syncFailures         int64
	notificationFailures int64
	notificationsSent    int64
	requestLatencyTotal  time.Duration
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests             map[string]int64 `json:"requests"`
	Errors               map[string]int64 `json:"errors"`
	Transitions          map[string]int64 `json:"transitions"`
	SyncFailures         int64            `json:"sync_failures"`
	NotificationFailures int64            `json:"notification_failures"`
	NotificationsSent    int64            `json:"notifications_sent"`
	RequestLatencyMillis int64            `json:"request_latency_ms_total"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		transitionCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestLatencyTotal += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTransition counts committed status transitions by target status.
func (m *Metrics) RecordTransition(status string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCount[status]++
}

func (m *Metrics) RecordSyncFailure() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncFailures++
}

// RecordNotification counts delivery outcomes.
func (m *Metrics) RecordNotification(err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.notificationFailures++
		return
	}
	m.notificationsSent++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:             copyCounts(m.requestCount),
		Errors:               copyCounts(m.errorCount),
		Transitions:          copyCounts(m.transitionCount),
		SyncFailures:         m.syncFailures,
		NotificationFailures: m.notificationFailures,
		NotificationsSent:    m.notificationsSent,
		RequestLatencyMillis: m.requestLatencyTotal.Milliseconds(),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
