package registry

import (
	"context"

	"github.com/lepdaemon/lepd/internal/capture"
	"github.com/lepdaemon/lepd/internal/probes"
)

// procEntry is one row of the standard catalogue: a procedure name,
// its capture kind, and the closure parameterizing that capture.
type procEntry struct {
	name    string
	kind    Kind
	closure string
}

// rawProcEntries lists the /proc files exposed verbatim.
var rawProcEntries = []procEntry{
	{"GetProcMeminfo", KindRawProcRead, "meminfo"},
	{"GetProcLoadavg", KindRawProcRead, "loadavg"},
	{"GetProcVmstat", KindRawProcRead, "vmstat"},
	{"GetProcZoneinfo", KindRawProcRead, "zoneinfo"},
	{"GetProcBuddyinfo", KindRawProcRead, "buddyinfo"},
	{"GetProcCpuinfo", KindRawProcRead, "cpuinfo"},
	{"GetProcSlabinfo", KindRawProcRead, "slabinfo"},
	{"GetProcSwaps", KindRawProcRead, "swaps"},
	{"GetProcInterrupts", KindRawProcRead, "interrupts"},
	{"GetProcSoftirqs", KindRawProcRead, "softirqs"},
	{"GetProcDiskstats", KindRawProcRead, "diskstats"},
	{"GetProcVersion", KindRawProcRead, "version"},
	{"GetProcStat", KindRawProcRead, "stat"},
	{"GetProcModules", KindRawProcRead, "modules"},
}

// builtinEntries lists the builtin probes and their argv closures.
var builtinEntries = []procEntry{
	{"GetCmdIotop", KindBuiltinCapture, "iotop"},
	{"GetCmdFree", KindBuiltinCapture, "free -m"},
	{"GetCmdProcrank", KindBuiltinCapture, "procrank"},
	{"GetCmdIostat", KindBuiltinCapture, "iostat -d -x -k"},
	{"GetCmdTop", KindBuiltinCapture, "ps -e -o pid,user,pri,ni,vsize,rss,s,%cpu,%mem,time,cmd --sort=-%cpu"},
	{"GetCmdDmesg", KindBuiltinCapture, "dmesg"},
	{"GetCmdDf", KindBuiltinCapture, "df -h"},
	{"GetCpuInfo", KindBuiltinCapture, "cpuinfo"},
	{"GetCmdMpstat", KindBuiltinCapture, "mpstat -P ALL 1 1"},
	{"GetCmdMpstat-I", KindBuiltinCapture, "mpstat -I ALL 1 1"},
	{"GetCmdIrqInfo", KindBuiltinCapture, "irq_info"},
	{"GetCmdCgtop", KindBuiltinCapture, "cgtop"},
}

// perfReportEntries are the sampling runs whose capture ends in
// `perf report`.
var perfReportEntries = []procEntry{
	{"GetCmdPerfFaults", KindPerfCapture, "perf record -a -e faults sleep 1"},
	{"GetCmdPerfCpuclock", KindPerfCapture, "perf record -a -e cpu-clock sleep 1"},
}

// perfScriptEntries end in `perf script` instead of `perf report`,
// the raw event stream a flamegraph collapser consumes.
var perfScriptEntries = []procEntry{
	{"GetCmdPerfFlame", KindPerfCapture, "perf record -F 99 -a -g -- sleep 1"},
}

// StandardCatalogue builds and populates a Registry with every
// procedure lepd exposes: SayHello, the /proc readers, the
// gopsutil-backed builtins, the perf-backed profilers, and finally
// ListAllMethod, which echoes every registered name in registration
// order, its own included.
func StandardCatalogue() (*Registry, error) {
	r := NewRegistry()

	if err := r.Register("SayHello", KindBuiltinCapture, "", func(ctx context.Context) (*string, error) {
		return capture.SayHello()(ctx)
	}); err != nil {
		return nil, err
	}

	for _, e := range rawProcEntries {
		if err := r.Register(e.name, e.kind, e.closure, capture.RawProcRead(e.closure)); err != nil {
			return nil, err
		}
	}

	for _, e := range builtinEntries {
		if err := r.Register(e.name, e.kind, e.closure, capture.BuiltinCapture(e.closure, probes.Lookup)); err != nil {
			return nil, err
		}
	}

	for _, e := range perfReportEntries {
		if err := r.Register(e.name, e.kind, e.closure, capture.PerfReport(e.closure)); err != nil {
			return nil, err
		}
	}

	for _, e := range perfScriptEntries {
		if err := r.Register(e.name, e.kind, e.closure, capture.PerfScript(e.closure)); err != nil {
			return nil, err
		}
	}

	if err := r.Register("ListAllMethod", KindBuiltinCapture, "", func(ctx context.Context) (*string, error) {
		return capture.ListAll(r.List())(ctx)
	}); err != nil {
		return nil, err
	}

	return r, nil
}
