// Package observability collects in-process counters and latency stats and
// exposes them as a JSON snapshot.
package observability

import (
	"sync"
	"time"
)

type OperationSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

type SagaSnapshot struct {
	OrdersConfirmed  int64 `json:"orders_confirmed"`
	OrdersCancelled  int64 `json:"orders_cancelled"`
	OrdersRejected   int64 `json:"orders_rejected"`
	StockWarnings    int64 `json:"stock_warnings"`
	PaymentsApproved int64 `json:"payments_approved"`
	PaymentsDeclined int64 `json:"payments_declined"`
}

type AuditSnapshot struct {
	Ingested   int64 `json:"ingested"`
	Duplicates int64 `json:"duplicates"`
	Dropped    int64 `json:"dropped"`
}

type Snapshot struct {
	UptimeSec     int64                        `json:"uptime_sec"`
	TotalRequests int64                        `json:"total_requests"`
	TotalErrors   int64                        `json:"total_errors"`
	InFlight      int64                        `json:"in_flight"`
	Saga          SagaSnapshot                 `json:"saga"`
	Audit         AuditSnapshot                `json:"audit"`
	Lifecycle     *LifecycleSnapshot           `json:"lifecycle,omitempty"`
	Operations    map[string]OperationSnapshot `json:"operations"`
}

type operationStats struct {
	count        int64
	errors       int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

type lifecycleStats struct {
	shutdownAt time.Time
	inflight   int64
}

type LifecycleSnapshot struct {
	ShutdownAt         time.Time `json:"shutdown_at"`
	InFlightAtShutdown int64     `json:"inflight_at_shutdown"`
}

// Metrics is safe for concurrent use. A nil *Metrics is a valid no-op
// receiver for every method.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	operations map[string]*operationStats
	saga       SagaSnapshot
	audit      AuditSnapshot
	lifecycle  lifecycleStats
}

// CallSpan tracks one in-flight operation.
type CallSpan struct {
	metrics   *Metrics
	operation string
	start     time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		start:      time.Now(),
		operations: make(map[string]*operationStats),
	}
}

// Start opens a span for the named operation.
func (m *Metrics) Start(operation string) *CallSpan {
	if m == nil {
		return &CallSpan{}
	}
	m.mu.Lock()
	stats := m.ensureOperation(operation)
	stats.inFlight++
	m.mu.Unlock()
	return &CallSpan{
		metrics:   m,
		operation: operation,
		start:     time.Now(),
	}
}

func (s *CallSpan) End(err error) {
	if s == nil || s.metrics == nil {
		return
	}
	dur := time.Since(s.start)
	s.metrics.finish(s.operation, dur, err != nil)
}

func (m *Metrics) AddOrderConfirmed() { m.bump(func(s *SagaSnapshot) { s.OrdersConfirmed++ }) }
func (m *Metrics) AddOrderCancelled() { m.bump(func(s *SagaSnapshot) { s.OrdersCancelled++ }) }
func (m *Metrics) AddOrderRejected()  { m.bump(func(s *SagaSnapshot) { s.OrdersRejected++ }) }
func (m *Metrics) AddStockWarning()   { m.bump(func(s *SagaSnapshot) { s.StockWarnings++ }) }

func (m *Metrics) AddPaymentApproved() { m.bump(func(s *SagaSnapshot) { s.PaymentsApproved++ }) }
func (m *Metrics) AddPaymentDeclined() { m.bump(func(s *SagaSnapshot) { s.PaymentsDeclined++ }) }

func (m *Metrics) AddAuditIngested() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.audit.Ingested++
	m.mu.Unlock()
}

func (m *Metrics) AddAuditDuplicate() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.audit.Duplicates++
	m.mu.Unlock()
}

func (m *Metrics) AddAuditDropped() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.audit.Dropped++
	m.mu.Unlock()
}

func (m *Metrics) bump(apply func(*SagaSnapshot)) {
	if m == nil {
		return
	}
	m.mu.Lock()
	apply(&m.saga)
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	snap := Snapshot{
		UptimeSec:  int64(now.Sub(m.start).Seconds()),
		Saga:       m.saga,
		Audit:      m.audit,
		Operations: make(map[string]OperationSnapshot),
	}

	for operation, stats := range m.operations {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.Operations[operation] = OperationSnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			InFlight:      stats.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
		snap.TotalRequests += stats.count
		snap.TotalErrors += stats.errors
		snap.InFlight += stats.inFlight
	}

	if !m.lifecycle.shutdownAt.IsZero() {
		snap.Lifecycle = &LifecycleSnapshot{
			ShutdownAt:         m.lifecycle.shutdownAt,
			InFlightAtShutdown: m.lifecycle.inflight,
		}
	}

	return snap
}

func (m *Metrics) ensureOperation(operation string) *operationStats {
	stats, ok := m.operations[operation]
	if !ok {
		stats = &operationStats{}
		m.operations[operation] = stats
	}
	return stats
}

func (m *Metrics) finish(operation string, dur time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	stats := m.ensureOperation(operation)
	stats.inFlight--
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
	m.mu.Unlock()
}

func (m *Metrics) MarkShutdown(inflight int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lifecycle.shutdownAt = time.Now()
	m.lifecycle.inflight = inflight
	m.mu.Unlock()
}
