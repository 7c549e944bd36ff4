// Package events provides structured logging for lepd's connection and
// procedure lifecycle.
package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger logs structured events enriched with worker/connection
// identity.
type EventLogger struct {
	logger   *slog.Logger
	workerID string
	connID   string
}

// NewEventLogger creates an EventLogger with JSON output to stdout,
// enriched with worker_id and conn_id base attributes.
func NewEventLogger(workerID, connID string) *EventLogger {
	return newEventLogger(os.Stdout, workerID, connID)
}

// NewEventLoggerWithWriter creates an EventLogger with JSON output to a
// custom writer. Useful for testing or redirecting output.
func NewEventLoggerWithWriter(workerID, connID string, w io.Writer) *EventLogger {
	return newEventLogger(w, workerID, connID)
}

func newEventLogger(w io.Writer, workerID, connID string) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler).With(
		"worker_id", workerID,
		"conn_id", connID,
	)
	return &EventLogger{logger: logger, workerID: workerID, connID: connID}
}

// LogConnectionAccepted logs a newly accepted connection.
// event: "connection_accepted"
// Attributes: remote_addr
func (el *EventLogger) LogConnectionAccepted(remoteAddr string) {
	el.logger.Info("connection_accepted", "remote_addr", remoteAddr)
}

// LogConnectionClosed logs a connection's teardown.
// event: "connection_closed"
// Attributes: reason, lifetime_ms, request_count
func (el *EventLogger) LogConnectionClosed(reason string, lifetimeMs int64, requestCount int64) {
	el.logger.Info("connection_closed",
		"reason", reason,
		"lifetime_ms", lifetimeMs,
		"request_count", requestCount,
	)
}

// LogMethodInvoked logs a successfully dispatched procedure call.
// event: "method_invoked"
// Attributes: method, latency_ms, truncated
func (el *EventLogger) LogMethodInvoked(method string, latencyMs int64, truncated bool) {
	el.logger.Info("method_invoked",
		"method", method,
		"latency_ms", latencyMs,
		"truncated", truncated,
	)
}

// LogParseError logs a request that failed JSON parsing or shape
// validation.
// event: "parse_error"
// Attributes: reason
func (el *EventLogger) LogParseError(reason string) {
	el.logger.Warn("parse_error", "reason", reason)
}

// LogProcedureRegistered logs a procedure's registration into the
// catalogue at startup.
// event: "procedure_registered"
// Attributes: method, kind
func (el *EventLogger) LogProcedureRegistered(method, kind string) {
	el.logger.Info("procedure_registered", "method", method, "kind", kind)
}

// LogCaptureTruncated logs a procedure whose output exceeded its
// capture buffer and was cut short.
// event: "capture_truncated"
// Attributes: method, limit_bytes
func (el *EventLogger) LogCaptureTruncated(method string, limitBytes int) {
	el.logger.Warn("capture_truncated", "method", method, "limit_bytes", limitBytes)
}

// LogHandlerPanic logs a procedure handler that panicked mid-invocation.
// The caller recovers the panic and reports a probe failure on the
// wire rather than letting it cross the worker's goroutine boundary.
// event: "handler_panic"
// Attributes: method, recovered
func (el *EventLogger) LogHandlerPanic(method string, recovered any) {
	el.logger.Error("handler_panic", "method", method, "recovered", recovered)
}

var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex

	noopOnce   sync.Once
	noopLogger *EventLogger
)

// SetGlobalEventLogger sets the process-wide default event logger.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the process-wide default event logger,
// falling back to a shared no-op instance if none has been set.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns the shared event logger that discards all
// events, lazily created on first use.
func NoopEventLogger() *EventLogger {
	noopOnce.Do(func() {
		noopLogger = newEventLogger(io.Discard, "", "")
	})
	return noopLogger
}
