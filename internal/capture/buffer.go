// Package capture implements the four ways lepd turns a procedure's
// closure into wire output: reading a /proc file verbatim, running a
// registered builtin probe against a bounded sink, shelling out to an
// arbitrary command, and driving `perf record` followed by its report
// or script stage. Every successful capture ends with the fixed wire
// sentinel so a client can detect end-of-payload on a stream it keeps
// open across many calls.
package capture

import (
	"github.com/lepdaemon/lepd/internal/config"
)

// Buffer is a fixed-capacity sink for captured output. It never grows
// past its configured limit; bytes written once the limit is reached
// are silently dropped rather than growing without bound.
type Buffer struct {
	data      []byte
	limit     int
	truncated bool
}

// NewBuffer creates a Buffer that accepts up to limit bytes of content
// before the sentinel is appended. Callers typically pass
// config.CaptureMax-len(config.Sentinel) or
// config.ProcMax-len(config.Sentinel) so the sentinel always fits.
func NewBuffer(limit int) *Buffer {
	if limit < 0 {
		limit = 0
	}
	return &Buffer{limit: limit}
}

// Write implements io.Writer, truncating silently once the buffer
// reaches its limit rather than returning an error — a builtin probe
// mid-write has no way to act on a short write anyway.
func (b *Buffer) Write(p []byte) (int, error) {
	room := b.limit - len(b.data)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.data = append(b.data, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// Truncated reports whether any written bytes were dropped.
func (b *Buffer) Truncated() bool {
	return b.truncated
}

// Result returns the captured content with the wire sentinel appended.
// Converting the raw bytes to a Go string never fails; any invalid
// UTF-8 in a probe's output (binary /proc data, a stray control byte
// from perf) is replaced with U+FFFD the moment this string is
// marshalled into a JSON string value, which is exactly the lossy
// behaviour a capture result needs.
func (b *Buffer) Result() string {
	return string(b.data) + config.Sentinel
}
