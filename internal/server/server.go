// Package server implements lepd's listener, round-robin dispatcher,
// worker pool, and per-connection JSON-RPC evaluator: the concurrent
// request-servicing engine behind the daemon's TCP port.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/lepdaemon/lepd/internal/config"
	"github.com/lepdaemon/lepd/internal/events"
	"github.com/lepdaemon/lepd/internal/metrics"
	"github.com/lepdaemon/lepd/internal/otel"
	"github.com/lepdaemon/lepd/internal/registry"
)

// Config holds the tunables a Server is built from.
type Config struct {
	// Port is the TCP port to listen on. 0 asks the kernel to choose one.
	Port int
	// WorkerCount is the number of worker event loops in the pool.
	// Defaults to config.DefaultWorkerCount when zero.
	WorkerCount int
	// Debug controls server-side logging verbosity, normally sourced
	// from the JRPC_DEBUG environment variable.
	Debug config.DebugLevel
}

// BindError wraps a failure to create or bind the listening socket.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("server: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Server owns the listener, the worker pool, the procedure registry,
// and the lifecycle (Run/Stop/Destroy) tying them together.
type Server struct {
	cfg      Config
	registry *registry.Registry
	listener net.Listener
	port     int

	workers    []*Worker
	dispatcher *Dispatcher

	logger  *events.EventLogger
	tracker *metrics.ConnectionTracker
	metrics *otel.Metrics
	tracer  *otel.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	runOnce  sync.Once
	stopOnce sync.Once
}

// Init resolves "0.0.0.0:<port>", creates a listening socket, and
// binds it. If cfg.Port is 0 the kernel chooses an ephemeral port, recorded on the
// returned Server's Port() method. The registry is not frozen until
// Run is called, so Register may still be used afterward.
func Init(cfg Config, reg *registry.Registry) (*Server, error) {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = config.DefaultWorkerCount
	}
	if reg == nil {
		reg = registry.NewRegistry()
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}

	port := cfg.Port
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	s := &Server{
		cfg:      cfg,
		registry: reg,
		listener: ln,
		port:     port,
		logger:   events.GetGlobalEventLogger(),
		tracker:  metrics.NewConnectionTracker(),
		metrics:  otel.GetGlobalMetrics(),
		tracer:   otel.GetGlobalTracer(),
	}
	return s, nil
}

// Port reports the TCP port the server is bound to. Useful when Init
// was called with cfg.Port == 0.
func (s *Server) Port() int {
	return s.port
}

// Registry exposes the underlying procedure registry, chiefly so
// tests can drive invocation without going over the wire.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// ConnectionTracker exposes the server's connection/procedure
// stability tracker for operators or tests to poll.
func (s *Server) ConnectionTracker() *metrics.ConnectionTracker {
	return s.tracker
}

// Register proxies to the registry. It must only be called before Run
// starts accepting connections.
func (s *Server) Register(name string, kind registry.Kind, closure string, handler registry.Handler) error {
	return s.registry.Register(name, kind, closure, handler)
}

// Run starts the worker pool and enters the accept loop. It blocks
// until Stop closes the listener or a persistent accept error occurs.
func (s *Server) Run() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.workers = make([]*Worker, s.cfg.WorkerCount)
	for i := range s.workers {
		s.workers[i] = newWorker(i, s.registry, s.cfg.Debug, s.tracker, s.metrics, s.tracer, s.logger)
	}
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *Worker) {
			defer s.wg.Done()
			w.run(s.ctx)
		}(w)
	}

	s.dispatcher = newDispatcher(s.listener, s.workers, s.logger, s.metrics)
	return s.dispatcher.acceptLoop(s.ctx)
}

// Stop signals cooperative shutdown: closes the listener (unblocking
// the accept loop) and cancels the context each worker's run loop
// watches.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// Destroy waits for the accept loop and every worker to finish, then
// releases the registry. Call this only after Run has returned
// (typically after Stop).
func (s *Server) Destroy() {
	s.wg.Wait()
	for _, w := range s.workers {
		w.wait()
	}
	s.registry = nil
}

// connID generates process-wide-unique connection ids of the form
// "w<worker>-c<n>-<ns>" for logging and stability tracking.
func connID(workerID, seq int) string {
	return fmt.Sprintf("w%d-c%d-%d", workerID, seq, time.Now().UnixNano())
}
