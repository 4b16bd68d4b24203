// Package metrics accumulates the counters spec.md §2 component 16 calls
// for: live connection count, request latency and failure counts, request
// timeouts, and speculative-execution attempts. It follows the teacher's
// reconnection.go precedent of building small stateful types directly on
// go.uber.org/atomic rather than hand-rolling a mutex-guarded struct.
package metrics

import (
	"time"

	"go.uber.org/atomic"
)

// Snapshot is a point-in-time read of a Metrics instance, safe to log or
// export without holding a reference to the live counters.
type Snapshot struct {
	Connections           int64
	RequestsSucceeded     int64
	RequestsFailed        int64
	Timeouts              int64
	SpeculativeExecutions int64
	TotalLatency          time.Duration
}

// Metrics is a Session-scoped set of counters, safe for concurrent use from
// every I/O goroutine driving request execution (spec.md §2 component 16).
// A nil *Metrics is valid and every method on it is a no-op, so callers
// needn't guard every call site with a nil check.
type Metrics struct {
	connections           atomic.Int64
	requestsSucceeded     atomic.Int64
	requestsFailed        atomic.Int64
	timeouts              atomic.Int64
	speculativeExecutions atomic.Int64
	latencyNanos          atomic.Int64
}

// New returns an empty Metrics.
func New() *Metrics {
	return &Metrics{}
}

// ConnOpened records a new connection joining a pool.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnClosed records a connection leaving a pool, by error or by Close.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// ObserveRequest records one request attempt's latency and outcome.
func (m *Metrics) ObserveRequest(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.latencyNanos.Add(int64(d))
	if err == nil {
		m.requestsSucceeded.Inc()
		return
	}
	m.requestsFailed.Inc()
}

// ObserveTimeout records one request attempt completing with
// KindRequestTimedOut.
func (m *Metrics) ObserveTimeout() {
	if m == nil {
		return
	}
	m.timeouts.Inc()
}

// ObserveSpeculativeExecution records one additional parallel attempt
// launched by a SpeculativeExecutionPolicy.
func (m *Metrics) ObserveSpeculativeExecution() {
	if m == nil {
		return
	}
	m.speculativeExecutions.Inc()
}

// Snapshot reads every counter at once.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Connections:           m.connections.Load(),
		RequestsSucceeded:     m.requestsSucceeded.Load(),
		RequestsFailed:        m.requestsFailed.Load(),
		Timeouts:              m.timeouts.Load(),
		SpeculativeExecutions: m.speculativeExecutions.Load(),
		TotalLatency:          time.Duration(m.latencyNanos.Load()),
	}
}
