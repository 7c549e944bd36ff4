// Package metrics tracks connection and procedure-invocation stability
// for lepd: accepted/closed connections, per-connection request
// counts, and derived stability scores an operator can poll without
// standing up a metrics backend.
package metrics

import (
	"sync"
	"time"

	"github.com/lepdaemon/lepd/internal/config"
)

// ConnectionEventType identifies a connection lifecycle event.
type ConnectionEventType string

const (
	EventTypeAccepted ConnectionEventType = "accepted"
	EventTypeActive    ConnectionEventType = "active"
	EventTypeClosed    ConnectionEventType = "closed"
	EventTypeDropped   ConnectionEventType = "dropped"
)

// DropReason identifies why a connection was dropped rather than
// closed cleanly.
type DropReason string

const (
	DropReasonTimeout     DropReason = "timeout"
	DropReasonBufferFull  DropReason = "buffer_full"
	DropReasonParseError  DropReason = "parse_error"
	DropReasonClientClose DropReason = "client_close"
	DropReasonNetwork     DropReason = "network_error"
	DropReasonUnknown     DropReason = "unknown"
)

// ConnectionEvent is a single connection lifecycle event.
type ConnectionEvent struct {
	ConnID    string              `json:"conn_id"`
	WorkerID  int                 `json:"worker_id"`
	EventType ConnectionEventType `json:"event_type"`
	Timestamp time.Time           `json:"timestamp"`
	Reason    DropReason          `json:"reason,omitempty"`
}

// ConnectionMetrics holds accumulated metrics for a single connection.
type ConnectionMetrics struct {
	ConnID         string     `json:"conn_id"`
	WorkerID       int        `json:"worker_id"`
	AcceptedAt     time.Time  `json:"accepted_at"`
	LastActiveAt   time.Time  `json:"last_active_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	RequestCount   int64      `json:"request_count"`
	SuccessCount   int64      `json:"success_count"`
	ErrorCount     int64      `json:"error_count"`
	ProtocolErrors int32      `json:"protocol_errors"`
	AvgLatencyMs   float64    `json:"avg_latency_ms"`
	State          string     `json:"state"`
}

// StabilityMetrics is the aggregated, point-in-time view of connection
// stability across the whole daemon.
type StabilityMetrics struct {
	TotalConnections    int64                `json:"total_connections"`
	ActiveConnections    int64                `json:"active_connections"`
	DroppedConnections   int64                `json:"dropped_connections"`
	ClosedConnections    int64                `json:"closed_connections"`
	AvgConnectionLifeMs  float64              `json:"avg_connection_life_ms"`
	ProtocolErrorRate     float64              `json:"protocol_error_rate"`
	ConnectionChurnRate   float64              `json:"connection_churn_rate"`
	StabilityScore        float64              `json:"stability_score"`
	DropRate              float64              `json:"drop_rate"`
	Events                []ConnectionEvent    `json:"events,omitempty"`
	ConnectionMetrics     []ConnectionMetrics  `json:"connection_metrics,omitempty"`
	TimeSeriesData        []StabilityTimePoint `json:"time_series,omitempty"`
}

// StabilityTimePoint is a point-in-time snapshot of connection
// stability, suitable for plotting.
type StabilityTimePoint struct {
	Timestamp          int64   `json:"timestamp"`
	ActiveConnections  int32   `json:"active_connections"`
	NewConnections     int32   `json:"new_connections"`
	DroppedConnections int32   `json:"dropped_connections"`
	AvgConnectionAgeMs float64 `json:"avg_connection_age_ms"`
}

// ConnectionTracker tracks connection lifecycle events and computes
// stability metrics from them. The zero value is not usable; use
// NewConnectionTracker.
type ConnectionTracker struct {
	mu sync.RWMutex

	events        []ConnectionEvent
	maxEvents     int
	connections   map[string]*ConnectionMetrics
	timeSeries    []StabilityTimePoint
	maxTimeSeries int

	totalAccepted       int64
	totalDropped        int64
	totalClosed         int64
	totalProtocolErrors int64
	totalRequests       int64

	startTime time.Time
	nowFunc   func() time.Time
}

// NewConnectionTracker creates a ConnectionTracker with the configured
// event-buffer and time-series bounds.
func NewConnectionTracker() *ConnectionTracker {
	return &ConnectionTracker{
		events:        make([]ConnectionEvent, 0, config.DefaultEventBufferSize),
		maxEvents:     config.DefaultEventBufferSize,
		connections:   make(map[string]*ConnectionMetrics),
		timeSeries:    make([]StabilityTimePoint, 0, config.MaxTimeSeriesPoints),
		maxTimeSeries: config.MaxTimeSeriesPoints,
		startTime:     time.Now(),
		nowFunc:       time.Now,
	}
}

// RecordEvent appends a lifecycle event and updates the relevant
// connection's derived state.
func (ct *ConnectionTracker) RecordEvent(event ConnectionEvent) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = ct.nowFunc()
	}

	if len(ct.events) >= ct.maxEvents {
		ct.events = ct.events[1:]
	}
	ct.events = append(ct.events, event)

	switch event.EventType {
	case EventTypeAccepted:
		ct.totalAccepted++
		ct.connections[event.ConnID] = &ConnectionMetrics{
			ConnID:       event.ConnID,
			WorkerID:     event.WorkerID,
			AcceptedAt:   event.Timestamp,
			LastActiveAt: event.Timestamp,
			State:        "active",
		}

	case EventTypeActive:
		if conn, ok := ct.connections[event.ConnID]; ok {
			conn.LastActiveAt = event.Timestamp
			conn.RequestCount++
			ct.totalRequests++
		}

	case EventTypeDropped:
		ct.totalDropped++
		if conn, ok := ct.connections[event.ConnID]; ok {
			conn.State = "dropped"
			t := event.Timestamp
			conn.ClosedAt = &t
		}

	case EventTypeClosed:
		ct.totalClosed++
		if conn, ok := ct.connections[event.ConnID]; ok {
			conn.State = "closed"
			t := event.Timestamp
			conn.ClosedAt = &t
		}
	}
}

// RecordSuccess records a successful procedure invocation on conn.
func (ct *ConnectionTracker) RecordSuccess(connID string, latencyMs int64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if conn, ok := ct.connections[connID]; ok {
		conn.SuccessCount++
		conn.LastActiveAt = ct.nowFunc()
		conn.AvgLatencyMs = (conn.AvgLatencyMs*float64(conn.SuccessCount-1) + float64(latencyMs)) / float64(conn.SuccessCount)
	}
}

// RecordError records a failed procedure invocation on conn.
func (ct *ConnectionTracker) RecordError(connID string, isProtocolError bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if conn, ok := ct.connections[connID]; ok {
		conn.ErrorCount++
		conn.LastActiveAt = ct.nowFunc()
		if isProtocolError {
			conn.ProtocolErrors++
			ct.totalProtocolErrors++
		}
	}
}

// RecordTimePoint appends a time-series snapshot.
func (ct *ConnectionTracker) RecordTimePoint(point StabilityTimePoint) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.timeSeries) >= ct.maxTimeSeries {
		ct.timeSeries = ct.timeSeries[1:]
	}
	ct.timeSeries = append(ct.timeSeries, point)
}

// GetStabilityMetrics computes and returns the current stability view.
func (ct *ConnectionTracker) GetStabilityMetrics(includeEvents, includeTimeSeries bool) *StabilityMetrics {
	ct.mu.RLock()
	now := ct.nowFunc()
	startTime := ct.startTime
	totalAccepted := ct.totalAccepted
	totalDropped := ct.totalDropped
	totalClosed := ct.totalClosed
	totalProtocolErrors := ct.totalProtocolErrors
	totalRequests := ct.totalRequests

	connList := make([]ConnectionMetrics, 0, len(ct.connections))
	for _, conn := range ct.connections {
		connList = append(connList, *conn)
	}

	var events []ConnectionEvent
	if includeEvents {
		events = make([]ConnectionEvent, len(ct.events))
		copy(events, ct.events)
	}

	var timeSeries []StabilityTimePoint
	if includeTimeSeries {
		timeSeries = make([]StabilityTimePoint, len(ct.timeSeries))
		copy(timeSeries, ct.timeSeries)
	}
	ct.mu.RUnlock()

	elapsedMinutes := now.Sub(startTime).Minutes()
	if elapsedMinutes < 1 {
		elapsedMinutes = 1
	}

	var activeCount int64
	var totalLifetimeMs float64
	var lifetimeCount int

	for i := range connList {
		conn := &connList[i]
		if conn.State == "active" {
			activeCount++
			lifetime := now.Sub(conn.AcceptedAt).Milliseconds()
			totalLifetimeMs += float64(lifetime)
			lifetimeCount++
		} else if conn.ClosedAt != nil {
			lifetime := conn.ClosedAt.Sub(conn.AcceptedAt).Milliseconds()
			totalLifetimeMs += float64(lifetime)
			lifetimeCount++
		}
	}

	avgLifetimeMs := float64(0)
	if lifetimeCount > 0 {
		avgLifetimeMs = totalLifetimeMs / float64(lifetimeCount)
	}

	protocolErrorRate := float64(0)
	if totalRequests > 0 {
		protocolErrorRate = float64(totalProtocolErrors) / float64(totalRequests)
	}

	churnRate := float64(totalAccepted) / elapsedMinutes

	dropRate := float64(0)
	if totalAccepted > 0 {
		dropRate = float64(totalDropped) / float64(totalAccepted)
	}

	stabilityScore := 100.0 - (dropRate*60 + protocolErrorRate*40)
	if stabilityScore < 0 {
		stabilityScore = 0
	}
	if stabilityScore > 100 {
		stabilityScore = 100
	}

	metrics := &StabilityMetrics{
		TotalConnections:    totalAccepted,
		ActiveConnections:   activeCount,
		DroppedConnections:  totalDropped,
		ClosedConnections:   totalClosed,
		AvgConnectionLifeMs: avgLifetimeMs,
		ProtocolErrorRate:   protocolErrorRate,
		ConnectionChurnRate: churnRate,
		StabilityScore:      stabilityScore,
		DropRate:            dropRate,
		ConnectionMetrics:   connList,
	}

	if includeEvents {
		metrics.Events = events
	}
	if includeTimeSeries {
		metrics.TimeSeriesData = timeSeries
	}

	return metrics
}

// Reset clears all tracking data.
func (ct *ConnectionTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.events = ct.events[:0]
	ct.connections = make(map[string]*ConnectionMetrics)
	ct.timeSeries = ct.timeSeries[:0]
	ct.totalAccepted = 0
	ct.totalDropped = 0
	ct.totalClosed = 0
	ct.totalProtocolErrors = 0
	ct.totalRequests = 0
	ct.startTime = ct.nowFunc()
}

// GetRecentEvents returns the most recent n events.
func (ct *ConnectionTracker) GetRecentEvents(n int) []ConnectionEvent {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	if n <= 0 || len(ct.events) == 0 {
		return nil
	}

	start := len(ct.events) - n
	if start < 0 {
		start = 0
	}

	result := make([]ConnectionEvent, len(ct.events)-start)
	copy(result, ct.events[start:])
	return result
}

// GetConnectionMetrics returns metrics for a single connection, or nil
// if it's unknown.
func (ct *ConnectionTracker) GetConnectionMetrics(connID string) *ConnectionMetrics {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	if conn, ok := ct.connections[connID]; ok {
		cp := *conn
		return &cp
	}
	return nil
}
