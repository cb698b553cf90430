// Package cpustat takes snapshots of the kernel's cumulative CPU accounting
// counters from /proc/stat.
package cpustat

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/sysfs"
)

// Counters is one read of the aggregate "cpu" line of /proc/stat, in
// jiffies, plus the system-wide event totals. All values are cumulative
// since boot.
type Counters struct {
	User      uint64 `json:"user" yaml:"user"`
	Nice      uint64 `json:"nice" yaml:"nice"`
	System    uint64 `json:"system" yaml:"system"`
	Idle      uint64 `json:"idle" yaml:"idle"`
	IOWait    uint64 `json:"iowait" yaml:"iowait"`
	IRQ       uint64 `json:"irq" yaml:"irq"`
	SoftIRQ   uint64 `json:"softirq" yaml:"softirq"`
	Steal     uint64 `json:"steal" yaml:"steal"`
	Guest     uint64 `json:"guest" yaml:"guest"`
	GuestNice uint64 `json:"guest_nice" yaml:"guest_nice"`

	ContextSwitches uint64 `json:"context_switches" yaml:"context_switches"`
	Interrupts      uint64 `json:"interrupts" yaml:"interrupts"`
	SoftInterrupts  uint64 `json:"soft_interrupts" yaml:"soft_interrupts"`
}

// Reader captures Counters from a stat file.
type Reader struct {
	path string
}

// New returns a Reader for <procfsRoot>/stat ("" means /proc).
func New(procfsRoot string) *Reader {
	if procfsRoot == "" {
		procfsRoot = sysfs.DefaultProcfsRoot
	}
	return &Reader{path: filepath.Join(procfsRoot, "stat")}
}

// Capture reads the stat file once. The file is required: failing to open
// it, or a first line that is not a parseable "cpu" line, is an error.
// Event lines (ctxt, intr, softirq) are optional on old kernels and read
// as 0 when missing.
func (r *Reader) Capture() (Counters, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return Counters{}, fmt.Errorf("opening %s: %w", r.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Counters{}, fmt.Errorf("reading %s: %w", r.path, err)
		}
		return Counters{}, fmt.Errorf("reading %s: empty file", r.path)
	}

	c, err := parseCPULine(scanner.Text())
	if err != nil {
		return Counters{}, fmt.Errorf("parsing %s: %w", r.path, err)
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "ctxt":
			c.ContextSwitches = sysfs.ParseUnsigned(fields[1], 10)
		case "intr":
			c.Interrupts = sysfs.ParseUnsigned(fields[1], 10)
		case "softirq":
			c.SoftInterrupts = sysfs.ParseUnsigned(fields[1], 10)
		}
	}
	if err := scanner.Err(); err != nil {
		return Counters{}, fmt.Errorf("scanning %s: %w", r.path, err)
	}

	return c, nil
}

// parseCPULine parses "cpu  user nice system idle [iowait irq softirq steal
// guest guest_nice]". Kernels before 2.6 only have the first four values;
// the rest stay 0.
func parseCPULine(line string) (Counters, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "cpu" {
		return Counters{}, fmt.Errorf("first line is not the aggregate cpu line: %q", line)
	}
	fields = fields[1:]
	if len(fields) < 4 {
		return Counters{}, fmt.Errorf("insufficient fields: got %d, need at least 4", len(fields))
	}

	var c Counters
	dst := []*uint64{
		&c.User, &c.Nice, &c.System, &c.Idle, &c.IOWait,
		&c.IRQ, &c.SoftIRQ, &c.Steal, &c.Guest, &c.GuestNice,
	}
	for i := 0; i < len(dst) && i < len(fields); i++ {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return Counters{}, fmt.Errorf("parsing field %d: %w", i, err)
		}
		*dst[i] = v
	}
	return c, nil
}
