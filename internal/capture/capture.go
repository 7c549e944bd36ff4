package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/lepdaemon/lepd/internal/config"
)

// BuiltinFunc is a registered builtin probe: it writes its output to
// sink rather than the process's stdout, so concurrent captures never
// race on a shared file descriptor.
type BuiltinFunc func(ctx context.Context, argv []string, sink io.Writer) error

// BuiltinLookup resolves the first token of a builtin-capture closure
// to the function that implements it.
type BuiltinLookup func(name string) (BuiltinFunc, bool)

// RawProcRead reads procFile (relative to /proc) whole, bounded to
// config.ProcMax bytes. A missing or unreadable file produces a nil
// result rather than an error: failure to open the procfile is a
// probe outcome, not a protocol fault.
func RawProcRead(procFile string) func(ctx context.Context) (*string, error) {
	path := "/proc/" + procFile
	return func(ctx context.Context) (*string, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil
		}
		defer f.Close()

		buf := NewBuffer(config.ProcMax - len(config.Sentinel))
		if _, err := io.Copy(buf, io.LimitReader(f, int64(config.ProcMax))); err != nil {
			return nil, nil
		}
		result := buf.Result()
		return &result, nil
	}
}

// BuiltinCapture tokenizes closure on whitespace, looks the first
// token up via lookup, and runs it with the full token list (command
// name first) as argv, capturing whatever it writes to a bounded sink. An unrecognized
// command name produces a nil result.
func BuiltinCapture(closure string, lookup BuiltinLookup) func(ctx context.Context) (*string, error) {
	return func(ctx context.Context) (*string, error) {
		argv := tokenize(closure)
		if len(argv) == 0 {
			return nil, nil
		}

		fn, ok := lookup(argv[0])
		if !ok {
			return nil, nil
		}

		buf := NewBuffer(config.CaptureMax - len(config.Sentinel))
		if err := fn(ctx, argv, buf); err != nil {
			return nil, nil
		}
		result := buf.Result()
		return &result, nil
	}
}

// ExternalShell runs closure as a shell command line and captures its
// standard output, bounded to config.CaptureMax bytes. This is the
// unrestricted sibling of BuiltinCapture: no argv tokenization or
// lookup table, just "run this command line".
func ExternalShell(closure string) func(ctx context.Context) (*string, error) {
	return func(ctx context.Context) (*string, error) {
		cmd := exec.CommandContext(ctx, "sh", "-c", closure)
		out, err := cmd.Output()
		if err != nil {
			return nil, nil
		}

		buf := NewBuffer(config.CaptureMax - len(config.Sentinel))
		_, _ = buf.Write(out)
		result := buf.Result()
		return &result, nil
	}
}

// PerfReport runs a `perf record` closure to completion, then captures
// `perf report`'s output. The record step runs for its own effect (it
// writes perf.data to the working directory) and only the report
// step's stdout is returned.
func PerfReport(recordCmd string) func(ctx context.Context) (*string, error) {
	return perfCapture(recordCmd, "report")
}

// PerfScript is PerfReport's sibling for the `perf script` stage, the
// raw event stream a flamegraph collapser consumes.
func PerfScript(recordCmd string) func(ctx context.Context) (*string, error) {
	return perfCapture(recordCmd, "script")
}

func perfCapture(recordCmd, stage string) func(ctx context.Context) (*string, error) {
	return func(ctx context.Context) (*string, error) {
		record := exec.CommandContext(ctx, "sh", "-c", recordCmd)
		if err := record.Run(); err != nil {
			return nil, nil
		}

		report := exec.CommandContext(ctx, "perf", stage)
		out, err := report.Output()
		if err != nil {
			return nil, nil
		}

		buf := NewBuffer(config.CaptureMax - len(config.Sentinel))
		_, _ = buf.Write(out)
		result := buf.Result()
		return &result, nil
	}
}

// ListAll renders the catalogue's procedure names space-separated in
// registration order, followed by the usual sentinel.
func ListAll(names []string) func(ctx context.Context) (*string, error) {
	return func(ctx context.Context) (*string, error) {
		var sb strings.Builder
		for _, n := range names {
			sb.WriteString(n)
			sb.WriteString(" ")
		}
		result := fmt.Sprintf("%s%s", sb.String(), config.Sentinel)
		return &result, nil
	}
}

// SayHello is the fixed-string builtin used as a liveness probe.
func SayHello() func(ctx context.Context) (*string, error) {
	return func(ctx context.Context) (*string, error) {
		result := "Hello!" + config.Sentinel
		return &result, nil
	}
}

func tokenize(closure string) []string {
	fields := strings.Fields(closure)
	if len(fields) > config.MaxCmdArgv {
		fields = fields[:config.MaxCmdArgv]
	}
	return fields
}
