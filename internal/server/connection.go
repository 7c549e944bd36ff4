package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lepdaemon/lepd/internal/config"
	"github.com/lepdaemon/lepd/internal/events"
	"github.com/lepdaemon/lepd/internal/framing"
	"github.com/lepdaemon/lepd/internal/jsonrpc"
	"github.com/lepdaemon/lepd/internal/metrics"
	"github.com/lepdaemon/lepd/internal/otel"
	"github.com/lepdaemon/lepd/internal/registry"
)

// Connection is the per-socket framing state machine: a growable byte
// buffer, an incremental JSON extractor, and the request evaluator
// that turns each extracted value into exactly one reply. It is
// exclusively owned by the goroutine running serve for its entire
// lifetime.
type Connection struct {
	id       string
	workerID int
	conn     net.Conn
	registry *registry.Registry
	debug    config.DebugLevel
	tracker  *metrics.ConnectionTracker
	metrics  *otel.Metrics
	tracer   *otel.Tracer
	logger   *events.EventLogger

	buf *framing.Buffer

	startedAt    time.Time
	requestCount int64
	closeOnce    sync.Once
	closed       atomic.Bool
}

func newConnection(id string, workerID int, conn net.Conn, reg *registry.Registry, debug config.DebugLevel, tracker *metrics.ConnectionTracker, m *otel.Metrics, tr *otel.Tracer, logger *events.EventLogger) *Connection {
	return &Connection{
		id:        id,
		workerID:  workerID,
		conn:      conn,
		registry:  reg,
		debug:     debug,
		tracker:   tracker,
		metrics:   m,
		tracer:    tr,
		logger:    logger,
		buf:       framing.NewBuffer(config.InitialConnBuffer, config.MaxConnBuffer),
		startedAt: time.Now(),
	}
}

// serve drives the connection until EOF, an I/O error, a buffer
// overflow, or a parse error closes it. Responses for requests
// received on this connection are written in the same order the
// requests were extracted.
func (c *Connection) serve(ctx context.Context) {
	defer c.close("handler_exit")

	// A cancelled server shutdown has no way to interrupt a blocked
	// Read directly; closing the underlying socket is what unblocks it.
	unblock := make(chan struct{})
	defer close(unblock)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-unblock:
		}
	}()

	if c.tracker != nil {
		c.tracker.RecordEvent(metrics.ConnectionEvent{
			ConnID:    c.id,
			WorkerID:  c.workerID,
			EventType: metrics.EventTypeAccepted,
			Timestamp: time.Now(),
		})
	}

	readChunk := make([]byte, config.InitialConnBuffer)
	for {
		n, err := c.conn.Read(readChunk)
		if n > 0 {
			if appendErr := c.buf.Append(readChunk[:n]); appendErr != nil {
				c.close("buffer_full")
				return
			}
			if !c.drain(ctx) {
				return
			}
		}
		if err != nil {
			reason := "network_error"
			if errors.Is(err, io.EOF) {
				reason = "client_close"
			}
			c.close(reason)
			return
		}
	}
}

// drain extracts and handles every complete JSON value currently
// buffered. Returns false if an invalid frame required the connection
// to be closed (the caller must not read further).
func (c *Connection) drain(ctx context.Context) bool {
	for {
		raw, status := framing.Extract(c.buf)
		switch status {
		case framing.StatusOK:
			c.handle(ctx, raw)
			if c.broken() {
				return false
			}
		case framing.StatusPartial:
			return true
		case framing.StatusInvalid:
			reply, _ := jsonrpc.ParseErrorReply()
			c.write(reply)
			c.close("parse_error")
			return false
		}
	}
}

// handle services one request: shape-validate it, look up its
// procedure, invoke it under the procedure's mutex, and write exactly
// one reply.
func (c *Connection) handle(ctx context.Context, raw json.RawMessage) {
	c.requestCount++

	req, shapeErr := jsonrpc.ParseRequest(raw)
	if shapeErr != nil {
		if c.logger != nil {
			c.logger.LogParseError(shapeErr.Error())
		}
		reply, _ := jsonrpc.InvalidRequestReply()
		c.write(reply)
		return
	}

	if c.debug >= config.DebugFull {
		fmt.Printf("[%s] request: %s\n", c.id, raw)
	}

	proc, found := c.registry.Lookup(req.Method)
	if !found {
		reply, _ := jsonrpc.MethodNotFoundReply(req.ID)
		c.write(reply)
		return
	}

	invokeCtx := ctx
	var span trace.Span
	if c.tracer != nil {
		invokeCtx, span = c.tracer.StartInvocationSpan(ctx, otel.InvocationSpanOptions{
			Method:   req.Method,
			WorkerID: fmt.Sprintf("%d", c.workerID),
			ConnID:   c.id,
		})
	}
	if config.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(invokeCtx, config.HandlerTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.invoke(invokeCtx, proc)
	latencyMs := time.Since(start).Milliseconds()
	if err == nil && config.HandlerTimeout > 0 && errors.Is(invokeCtx.Err(), context.DeadlineExceeded) {
		// Capture handlers report a killed probe as a nil result; a handler
		// cut off by the wall-clock cap is answered with InternalError.
		result, err = nil, invokeCtx.Err()
	}

	if span != nil {
		if err != nil {
			otel.RecordError(span, err, "handler_error", false)
		}
		span.End()
	}
	if c.metrics != nil {
		c.metrics.RecordCaptureLatency(ctx, req.Method, float64(latencyMs), err == nil)
		if err != nil {
			c.metrics.RecordProcedureError(ctx, req.Method)
		}
	}
	if c.tracker != nil {
		if err != nil {
			c.tracker.RecordError(c.id, false)
		} else {
			c.tracker.RecordSuccess(c.id, latencyMs)
		}
	}

	// The capture layer never reports truncation past the Handler
	// boundary (a nil-error, nil-result outcome and a truncated one are
	// both just "a string"), so this is an approximation: a result that
	// lands exactly at the configured ceiling almost always got there by
	// truncation rather than coincidence.
	truncated := result != nil && len(*result) >= config.CaptureMax
	if truncated && c.logger != nil {
		c.logger.LogCaptureTruncated(req.Method, config.CaptureMax)
	}
	if c.logger != nil {
		c.logger.LogMethodInvoked(req.Method, latencyMs, truncated)
	}

	if err != nil {
		reply, _ := jsonrpc.InternalErrorReply(req.ID)
		c.write(reply)
		return
	}

	reply, _ := jsonrpc.EncodeResult(result, req.ID)
	c.write(reply)
}

// invoke runs proc's handler under its mutex and recovers from a
// handler panic, treating it as a probe failure (nil result, nil
// error) rather than letting it unwind across the worker's goroutine
// boundary: a misbehaving probe must not take down a worker or the
// server as a whole.
func (c *Connection) invoke(ctx context.Context, proc *registry.Procedure) (result *string, err error) {
	defer func() {
		if r := recover(); r != nil {
			if c.logger != nil {
				c.logger.LogHandlerPanic(proc.Name, r)
			}
			result, err = nil, nil
		}
	}()
	return proc.Invoke(ctx)
}

// write sends one framed response, appending the trailing newline
// clients frame on. A write failure (the client vanished
// mid-handler) closes the connection silently rather than propagating
// an error the caller has no one left to report to.
func (c *Connection) write(payload []byte) {
	if payload == nil {
		return
	}
	if c.debug >= config.DebugFull {
		fmt.Printf("[%s] response: %s\n", c.id, payload)
	}
	payload = append(payload, '\n')
	if _, err := c.conn.Write(payload); err != nil {
		c.close("write_error")
	}
}

// broken reports whether the connection has already been torn down,
// letting drain stop processing further buffered frames after a write
// failure closes it mid-batch.
func (c *Connection) broken() bool {
	return c.closed.Load()
}

// close tears the connection down exactly once, logging its lifetime
// and request count and releasing tracker/socket resources.
func (c *Connection) close(reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.conn.Close()

		if c.tracker != nil {
			c.tracker.RecordEvent(metrics.ConnectionEvent{
				ConnID:    c.id,
				WorkerID:  c.workerID,
				EventType: metrics.EventTypeClosed,
				Timestamp: time.Now(),
			})
		}
		if c.metrics != nil {
			c.metrics.DecrementConnections(context.Background())
		}
		if c.logger != nil {
			lifetimeMs := time.Since(c.startedAt).Milliseconds()
			c.logger.LogConnectionClosed(reason, lifetimeMs, c.requestCount)
		}
	})
}
