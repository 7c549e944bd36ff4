// Package probes implements lepd's builtin-capture commands: the
// coreutils/sysstat-shaped tools (free, procrank, iostat, top, iotop,
// df, mpstat, cpuinfo) are implemented on top of gopsutil, irq_info
// and cgtop read kernel state from /proc and /sys directly, and dmesg
// runs the system's dmesg binary.
//
// Every probe has the shape capture.BuiltinFunc: it writes formatted
// text to a sink instead of returning a struct, because that sink is
// what capture.BuiltinCapture bounds to CaptureMax and appends the
// wire sentinel to.
package probes

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/lepdaemon/lepd/internal/capture"
)

// Table maps a builtin-capture closure's first token to its
// implementation.
var Table = map[string]capture.BuiltinFunc{
	"free":     Free,
	"procrank": Procrank,
	"iostat":   Iostat,
	"top":      Top,
	"ps":       Top,
	"iotop":    Iotop,
	"df":       Df,
	"cpuinfo":  CPUInfo,
	"mpstat":   Mpstat,
	"dmesg":    Dmesg,
	"irq_info": IrqInfo,
	"cgtop":    Cgtop,
}

// Lookup resolves a builtin command name to its implementation. It
// satisfies capture.BuiltinLookup.
func Lookup(name string) (capture.BuiltinFunc, bool) {
	fn, ok := Table[name]
	return fn, ok
}

// Free reports virtual and swap memory, the gopsutil equivalent of the
// `free` applet.
func Free(ctx context.Context, argv []string, sink io.Writer) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return err
	}
	sm, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(sink, "%-10s %12s %12s %12s %12s %12s\n", "", "total", "used", "free", "buff/cache", "available")
	fmt.Fprintf(sink, "%-10s %12d %12d %12d %12d %12d\n", "Mem:", vm.Total, vm.Used, vm.Free, vm.Buffers+vm.Cached, vm.Available)
	fmt.Fprintf(sink, "%-10s %12d %12d %12d\n", "Swap:", sm.Total, sm.Used, sm.Free)
	return nil
}

// Procrank reports per-process RSS, the gopsutil equivalent of the
// procrank applet (normally an Android-specific tool with no direct
// Linux counterpart).
func Procrank(ctx context.Context, argv []string, sink io.Writer) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return err
	}

	type row struct {
		pid  int32
		name string
		rss  uint64
		vms  uint64
	}
	rows := make([]row, 0, len(procs))
	for _, p := range procs {
		mi, err := p.MemoryInfoWithContext(ctx)
		if err != nil || mi == nil {
			continue
		}
		name, _ := p.NameWithContext(ctx)
		rows = append(rows, row{pid: p.Pid, name: name, rss: mi.RSS, vms: mi.VMS})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].rss > rows[j].rss })

	fmt.Fprintf(sink, "%8s %10s %10s  %s\n", "PID", "Vss", "Rss", "Name")
	for _, r := range rows {
		fmt.Fprintf(sink, "%8d %10d %10d  %s\n", r.pid, r.vms, r.rss, r.name)
	}
	return nil
}

// Iostat reports per-device disk I/O counters, the gopsutil equivalent
// of `iostat -d -x -k`.
func Iostat(ctx context.Context, argv []string, sink io.Writer) error {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(sink, "%-12s %12s %12s %12s %12s\n", "Device", "rd_ios", "wr_ios", "rd_kB", "wr_kB")
	for _, name := range names {
		c := counters[name]
		fmt.Fprintf(sink, "%-12s %12d %12d %12d %12d\n", c.Name, c.ReadCount, c.WriteCount, c.ReadBytes/1024, c.WriteBytes/1024)
	}
	return nil
}

// Top reports running processes sorted by CPU usage descending, the
// gopsutil equivalent of `ps -e -o pid,user,...,cmd --sort=-%cpu`.
func Top(ctx context.Context, argv []string, sink io.Writer) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return err
	}

	type row struct {
		pid     int32
		user    string
		cpuPct  float64
		memPct  float32
		name    string
	}
	rows := make([]row, 0, len(procs))
	for _, p := range procs {
		cpuPct, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			continue
		}
		memPct, _ := p.MemoryPercentWithContext(ctx)
		user, _ := p.UsernameWithContext(ctx)
		name, _ := p.NameWithContext(ctx)
		rows = append(rows, row{pid: p.Pid, user: user, cpuPct: cpuPct, memPct: memPct, name: name})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].cpuPct > rows[j].cpuPct })

	fmt.Fprintf(sink, "%8s %-12s %8s %8s  %s\n", "PID", "USER", "%CPU", "%MEM", "CMD")
	for _, r := range rows {
		fmt.Fprintf(sink, "%8d %-12s %8.1f %8.1f  %s\n", r.pid, r.user, r.cpuPct, r.memPct, r.name)
	}
	return nil
}

// Iotop reports per-process I/O counters, the gopsutil equivalent of
// the iotop applet.
func Iotop(ctx context.Context, argv []string, sink io.Writer) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(sink, "%8s %12s %12s  %s\n", "PID", "read_bytes", "write_bytes", "CMD")
	for _, p := range procs {
		io, err := p.IOCountersWithContext(ctx)
		if err != nil || io == nil {
			continue
		}
		name, _ := p.NameWithContext(ctx)
		fmt.Fprintf(sink, "%8d %12d %12d  %s\n", p.Pid, io.ReadBytes, io.WriteBytes, name)
	}
	return nil
}

// Df reports filesystem usage per mounted partition, the gopsutil
// equivalent of `df -h`.
func Df(ctx context.Context, argv []string, sink io.Writer) error {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return err
	}

	fmt.Fprintf(sink, "%-24s %12s %12s %12s %6s  %s\n", "Filesystem", "Size", "Used", "Avail", "Use%", "Mounted on")
	for _, part := range partitions {
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			continue
		}
		fmt.Fprintf(sink, "%-24s %12d %12d %12d %5.1f%%  %s\n",
			part.Device, usage.Total, usage.Used, usage.Free, usage.UsedPercent, part.Mountpoint)
	}
	return nil
}

// CPUInfo reports per-logical-CPU identification fields, the gopsutil
// equivalent of the cpuinfo applet (a reformatting of /proc/cpuinfo).
func CPUInfo(ctx context.Context, argv []string, sink io.Writer) error {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return err
	}

	for _, info := range infos {
		fmt.Fprintf(sink, "processor %d: %s @ %.0fMHz (%d cores)\n", info.CPU, info.ModelName, info.Mhz, info.Cores)
	}
	return nil
}

// Mpstat reports per-CPU time breakdowns, the gopsutil equivalent of
// `mpstat -P ALL 1 1` (and, with argv[1] == "-I", the interrupt
// variant is approximated by the same per-CPU view since gopsutil has
// no per-CPU interrupt counters).
func Mpstat(ctx context.Context, argv []string, sink io.Writer) error {
	times, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return err
	}

	fmt.Fprintf(sink, "%-8s %8s %8s %8s %8s %8s\n", "CPU", "%usr", "%sys", "%iowait", "%irq", "%idle")
	for _, t := range times {
		total := t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
		if total == 0 {
			continue
		}
		fmt.Fprintf(sink, "%-8s %8.2f %8.2f %8.2f %8.2f %8.2f\n",
			t.CPU, 100*t.User/total, 100*t.System/total, 100*t.Iowait/total, 100*t.Irq/total, 100*t.Idle/total)
	}
	return nil
}

// Dmesg shells out to the real dmesg binary; gopsutil has no kernel
// ring buffer accessor.
func Dmesg(ctx context.Context, argv []string, sink io.Writer) error {
	cmd := exec.CommandContext(ctx, "dmesg")
	cmd.Stdout = sink
	return cmd.Run()
}

// IrqInfo reads /proc/interrupts verbatim.
func IrqInfo(ctx context.Context, argv []string, sink io.Writer) error {
	f, err := os.Open("/proc/interrupts")
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(sink, f)
	return err
}

// Cgtop reports per-cgroup CPU usage under the unified cgroup v2
// hierarchy.
func Cgtop(ctx context.Context, argv []string, sink io.Writer) error {
	const root = "/sys/fs/cgroup"
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	fmt.Fprintf(sink, "%-40s %12s\n", "cgroup", "usage_usec")
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		statPath := root + "/" + e.Name() + "/cpu.stat"
		data, err := os.ReadFile(statPath)
		if err != nil {
			continue
		}
		fmt.Fprintf(sink, "%-40s %s", e.Name(), data)
	}
	return nil
}
