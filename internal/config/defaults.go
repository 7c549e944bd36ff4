// Package config holds the default tunables for the lepd daemon: the
// listening port, worker pool size, buffer limits, and the wire
// sentinel every successful capture ends with.
package config

import "time"

const (
	// DefaultPort is the TCP port lepd listens on when none is given.
	DefaultPort = 12307

	// DefaultWorkerCount is the number of worker event loops in the pool.
	DefaultWorkerCount = 5

	// AcceptBacklog is the minimum listen(2) backlog lepd expects. The
	// listener is created through net.ListenConfig, which uses the
	// kernel's default backlog, so this constant is not passed anywhere.
	AcceptBacklog = 5

	// InitialConnBuffer is the starting size of a connection's read buffer.
	InitialConnBuffer = 1500

	// MaxConnBuffer is the upper bound the read buffer is allowed to grow
	// to before the connection is closed without a response.
	MaxConnBuffer = 1 << 20 // 1 MiB

	// CaptureMax is the maximum number of bytes returned by a single
	// Capture call, sentinel included. Earlier revisions of the daemon
	// used 8192; lepd standardises on the larger value.
	CaptureMax = 16384

	// ProcMax is the maximum number of bytes read from a /proc file by a
	// raw-proc-read procedure.
	ProcMax = 8192

	// MaxCmdArgv bounds the number of whitespace-separated tokens a
	// builtin-capture closure may expand to.
	MaxCmdArgv = 32

	// PerfSampleDuration is how long `perf record` is asked to sample for.
	PerfSampleDuration = "1"

	// DefaultEventBufferSize bounds the connection tracker's ring buffer
	// of recent lifecycle events.
	DefaultEventBufferSize = 1024

	// MaxTimeSeriesPoints bounds the connection tracker's stability
	// time-series history (one point per second is an hour of history).
	MaxTimeSeriesPoints = 3600
)

// HandlerTimeout is an optional wall-clock cap on a single procedure
// invocation. Zero (the default) means no cap; when set, a handler
// that exceeds it gets an InternalError wire reply instead of the
// silent drop a plain disconnect would cause.
var HandlerTimeout time.Duration = 0

// Sentinel is the ASCII marker every successful capture result ends
// with, immediately before the closing JSON quote. Clients use it to
// detect end-of-payload on a persistent connection.
const Sentinel = "lepdendstring"

// DebugLevel mirrors the JRPC_DEBUG environment variable: 0 is silent,
// 1 logs method names, 2 and above logs full request/response bodies.
type DebugLevel int

const (
	DebugSilent DebugLevel = 0
	DebugMethod DebugLevel = 1
	DebugFull   DebugLevel = 2
)
