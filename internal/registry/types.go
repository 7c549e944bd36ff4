// Package registry holds the catalogue of procedures lepd exposes over
// JSON-RPC: their names, their capture kind, the underlying closure
// (a /proc path, a shell command line, or a perf subcommand), and the
// handler that actually produces output.
package registry

import (
	"context"
	"fmt"
	"sync"
)

// Kind identifies how a procedure's closure is turned into output.
type Kind int

const (
	// KindRawProcRead reads a fixed /proc file verbatim.
	KindRawProcRead Kind = iota
	// KindExternalShell runs a closure as an external shell command and
	// captures its stdout, without any argv tokenization or lookup
	// restriction.
	KindExternalShell
	// KindBuiltinCapture tokenizes the closure into argv, looks the
	// command up in a fixed table of builtin probes, and captures
	// whatever it writes to the sink it is given instead of stdout.
	KindBuiltinCapture
	// KindPerfCapture shells out to the real `perf` binary and captures
	// the report/script stage that follows a sampling run.
	KindPerfCapture
)

func (k Kind) String() string {
	switch k {
	case KindRawProcRead:
		return "raw-proc-read"
	case KindExternalShell:
		return "external-shell"
	case KindBuiltinCapture:
		return "builtin-capture"
	case KindPerfCapture:
		return "perf-capture"
	default:
		return "unknown"
	}
}

// Handler produces a procedure's output. A nil result with a nil error
// means the probe ran but produced nothing usable (the wire reply is a
// null result, not an error); a non-nil error means the procedure
// itself is broken and should never have been registered this way.
type Handler func(ctx context.Context) (*string, error)

// Procedure is one entry in the catalogue: a name, the kind of capture
// it performs, the closure that parameterizes that capture, the
// handler that runs it, and a private mutex serializing concurrent
// invocations of this same procedure (it may be hijacking stdout,
// writing a shared perf.data file, or reusing a scratch buffer that
// only one caller may hold at a time).
type Procedure struct {
	Name    string
	Kind    Kind
	Closure string
	Handler Handler

	mu sync.Mutex
}

// Invoke runs the procedure's handler under its private mutex. Distinct
// procedures never block each other; concurrent callers of the same
// procedure are serialized.
func (p *Procedure) Invoke(ctx context.Context) (*string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Handler(ctx)
}

// DuplicateNameError is returned by Register when a procedure name is
// already present in the registry.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("registry: procedure %q already registered", e.Name)
}
