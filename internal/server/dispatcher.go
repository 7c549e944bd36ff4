package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/lepdaemon/lepd/internal/events"
	"github.com/lepdaemon/lepd/internal/otel"
)

// Dispatcher runs the single accept loop on the listening socket and
// fans new connections out to the worker pool in strict round-robin
// order. It never touches Connection state itself —
// only fd/addr tuples cross from here into a Worker's admission queue.
type Dispatcher struct {
	listener net.Listener
	workers  []*Worker
	next     atomic.Uint64

	logger  *events.EventLogger
	metrics *otel.Metrics
}

func newDispatcher(ln net.Listener, workers []*Worker, logger *events.EventLogger, m *otel.Metrics) *Dispatcher {
	return &Dispatcher{
		listener: ln,
		workers:  workers,
		logger:   logger,
		metrics:  m,
	}
}

// acceptLoop accepts connections until ctx is cancelled or a
// persistent accept error occurs. Transient errors (temporary network
// errors, the Go analogue of EAGAIN/EWOULDBLOCK/EINTR) are retried
// silently; anything else is logged and stops the loop.
func (d *Dispatcher) acceptLoop(ctx context.Context) error {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTemporary(err) {
				continue
			}
			slog.Error("accept loop stopped", "error", err)
			return err
		}

		d.admit(ctx, conn)
	}
}

// admit picks the next worker in round-robin order, pushes the
// connection onto its admission queue, and records the acceptance.
func (d *Dispatcher) admit(ctx context.Context, conn net.Conn) {
	idx := d.next.Add(1) - 1
	w := d.workers[idx%uint64(len(d.workers))]

	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	if d.logger != nil {
		d.logger.LogConnectionAccepted(remote)
	}
	if d.metrics != nil {
		d.metrics.IncrementConnections(ctx)
	}

	w.admit(conn, remote)
}

// isTemporary reports whether err is the kind of transient accept
// failure worth retrying silently. net.Listener.Accept already absorbs
// most EAGAIN/EINTR-style conditions; this covers the remaining
// net.Error-flagged transient cases (e.g. a momentarily overloaded
// accept queue) without retrying genuinely fatal errors like
// "too many open files" or a closed listener. EMFILE and ENFILE are
// checked first because the syscall package flags them as temporary.
func isTemporary(err error) bool {
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
		return false
	}
	type temporary interface {
		Temporary() bool
	}
	te, ok := err.(temporary)
	return ok && te.Temporary()
}
