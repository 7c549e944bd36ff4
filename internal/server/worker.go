package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/lepdaemon/lepd/internal/config"
	"github.com/lepdaemon/lepd/internal/events"
	"github.com/lepdaemon/lepd/internal/metrics"
	"github.com/lepdaemon/lepd/internal/otel"
	"github.com/lepdaemon/lepd/internal/registry"
)

// admission is one (fd, peer-addr) tuple handed from the dispatcher to
// a worker's queue.
type admission struct {
	conn net.Conn
	addr string
}

// admissionQueueDepth is the channel buffer used as each worker's
// thread-safe FIFO. A worker that falls behind on admissions (every
// connection it owns is busy in a slow handler) still accepts new
// ones up to this depth before the dispatcher's send blocks — the
// channel is both the queue and the wake-up signal in one type.
const admissionQueueDepth = 128

// Worker is one of the N identical event loops: it owns a set of live
// connections, each serviced on its own goroutine, and drains an
// admission queue the dispatcher pushes onto. Go's netpoller does the
// multiplexing; a Worker's job is bookkeeping (round-robin identity,
// queue-depth metrics), not a second hand-rolled event loop.
type Worker struct {
	id       int
	queue    chan admission
	registry *registry.Registry
	debug    config.DebugLevel
	tracker  *metrics.ConnectionTracker
	metrics  *otel.Metrics
	tracer   *otel.Tracer
	logger   *events.EventLogger

	connSeq atomic.Int64
	wg      sync.WaitGroup
}

func newWorker(id int, reg *registry.Registry, debug config.DebugLevel, tracker *metrics.ConnectionTracker, m *otel.Metrics, tr *otel.Tracer, logger *events.EventLogger) *Worker {
	return &Worker{
		id:       id,
		queue:    make(chan admission, admissionQueueDepth),
		registry: reg,
		debug:    debug,
		tracker:  tracker,
		metrics:  m,
		tracer:   tr,
		logger:   logger,
	}
}

// admit pushes a newly accepted connection onto this worker's queue.
// Blocks if the queue is momentarily full, applying natural backpressure
// to the dispatcher rather than dropping the connection.
func (w *Worker) admit(conn net.Conn, addr string) {
	w.queue <- admission{conn: conn, addr: addr}
}

// queueDepth reports the number of admissions not yet picked up,
// surfaced through otel's worker queue depth gauge.
func (w *Worker) queueDepth() int {
	return len(w.queue)
}

// run drains the admission queue until ctx is cancelled, spawning one
// goroutine per admitted connection. Each connection is exclusively
// owned by the goroutine servicing it for its entire lifetime — no
// connection migrates between workers once dispatched.
func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-w.queue:
			w.serve(ctx, a)
		}
	}
}

func (w *Worker) serve(ctx context.Context, a admission) {
	w.wg.Add(1)
	seq := int(w.connSeq.Add(1))
	id := connID(w.id, seq)

	if w.metrics != nil {
		w.metrics.SetQueueDepth(int64(w.queueDepth()))
	}

	go func() {
		defer w.wg.Done()
		c := newConnection(id, w.id, a.conn, w.registry, w.debug, w.tracker, w.metrics, w.tracer, w.logger)
		c.serve(ctx)
	}()
}

// wait blocks until every connection this worker ever admitted has
// finished. Called from Server.Destroy after Stop has cancelled ctx
// and every connection has had a chance to notice EOF/cancellation.
func (w *Worker) wait() {
	w.wg.Wait()
}
