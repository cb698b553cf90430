// Package collector gathers CPU frequency, CPU accounting and thermal
// readings into timestamped samples for storage and export.
package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/cpufreq"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/cpustat"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/thermal"
)

// Options configures a Collector.
type Options struct {
	SysfsRoot   string // "" means /sys
	ProcfsRoot  string // "" means /proc
	ThermalZone int    // zone index, or thermal.AllZones
	Logger      *slog.Logger
}

// Collector samples the kernel on each Collect call. It remembers the
// previous accounting counters to report utilization, so a Collector must
// not be shared between goroutines.
type Collector struct {
	freq     *cpufreq.Inspector
	stat     *cpustat.Reader
	thermal  *thermal.Inspector
	zone     int
	topology map[int]bool
	prev     *cpustat.Counters
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Collector, detecting CPU topology once.
func New(opts Options) (*Collector, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	freq := cpufreq.New(opts.SysfsRoot)
	topology, err := DetectTopology(freq)
	if err != nil {
		return nil, fmt.Errorf("detect topology: %w", err)
	}

	return &Collector{
		freq:     freq,
		stat:     cpustat.New(opts.ProcfsRoot),
		thermal:  thermal.New(opts.SysfsRoot, logger),
		zone:     opts.ThermalZone,
		topology: topology,
		log:      logger,
		now:      time.Now,
	}, nil
}

// Reset drops the utilization baseline, so the next Collect reports none.
// Used after resume, when the counters span the time asleep.
func (c *Collector) Reset() {
	c.prev = nil
}

// Collect takes one snapshot. Missing cpufreq or thermal support yields
// empty sample lists; failing to read /proc/stat or a directory that
// should exist is an error.
func (c *Collector) Collect() (*Snapshot, error) {
	now := c.now().Unix()

	counters, err := c.stat.Capture()
	if err != nil {
		return nil, err
	}

	freqs, err := c.collectFreqs(now)
	if err != nil {
		return nil, err
	}

	thermalSamples, hottest, err := c.collectThermal(now)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Timestamp:  now,
		Accounting: CPUAccountingSample{Timestamp: now, Counters: counters},
		Freqs:      freqs,
		Thermal:    thermalSamples,
		Hottest:    hottest,
	}
	if c.prev != nil {
		snap.UtilizationPct, snap.HasUtilization = Utilization(*c.prev, counters)
	}
	c.prev = &counters
	return snap, nil
}

func (c *Collector) collectFreqs(now int64) ([]CPUFreqSample, error) {
	cpus, err := c.freq.CPUs()
	if err != nil {
		return nil, err
	}

	samples := make([]CPUFreqSample, 0, len(cpus))
	for _, cpu := range cpus {
		if !c.freq.Supported(cpu) {
			continue
		}
		cur, err := c.freq.CurrentFrequency(cpu)
		if err != nil {
			return nil, err
		}
		if cur == 0 {
			continue
		}
		limits, err := c.freq.HardwareLimits(cpu)
		if err != nil && !errors.Is(err, cpufreq.ErrNoDevice) {
			return nil, err
		}
		governor, _, err := c.freq.Governor(cpu)
		if err != nil {
			return nil, err
		}
		driver, _, err := c.freq.Driver(cpu)
		if err != nil {
			return nil, err
		}
		samples = append(samples, CPUFreqSample{
			Timestamp: now,
			CPUID:     cpu,
			FreqKHz:   cur,
			MinKHz:    limits.Min,
			MaxKHz:    limits.Max,
			Governor:  governor,
			Driver:    driver,
			IsPCore:   c.topology[cpu],
		})
	}
	return samples, nil
}

func (c *Collector) collectThermal(now int64) ([]ThermalSample, *ThermalSummary, error) {
	if !c.thermal.KernelSupportsThermal() {
		return nil, nil, nil
	}

	zones, err := c.thermal.Zones()
	if err != nil {
		return nil, nil, err
	}

	var samples []ThermalSample
	for _, n := range zones {
		if c.zone != thermal.AllZones && c.zone != n {
			continue
		}
		z, err := c.thermal.Zone(n)
		if errors.Is(err, thermal.ErrNoData) {
			continue // removed since the scan
		}
		if err != nil {
			return nil, nil, err
		}
		if !z.HasReading() {
			continue
		}
		crit, _, err := c.thermal.CriticalTemperature(n)
		if err != nil {
			return nil, nil, err
		}
		samples = append(samples, ThermalSample{
			Timestamp:      now,
			Zone:           n,
			Type:           z.Type,
			TempMilliC:     z.Temperature,
			CriticalMilliC: crit,
		})
	}

	sum, err := c.thermal.HottestZone(c.zone)
	if errors.Is(err, thermal.ErrNoData) {
		c.log.Debug("no thermal reading", "topic", "thermal", "error", err)
		return samples, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return samples, &ThermalSummary{
		Timestamp:  now,
		Zone:       sum.Zone,
		Type:       sum.Type,
		TempMilliC: sum.Temperature,
	}, nil
}

// Utilization returns the busy share in percent between two captures.
// ok is false when no time elapsed or the counters went backwards.
func Utilization(prev, cur cpustat.Counters) (pct float64, ok bool) {
	prevIdle, prevTotal := idleAndTotal(prev)
	curIdle, curTotal := idleAndTotal(cur)
	if curTotal <= prevTotal || curIdle < prevIdle {
		return 0, false
	}

	total := curTotal - prevTotal
	idle := curIdle - prevIdle
	if idle > total {
		return 0, false
	}
	return float64(total-idle) / float64(total) * 100, true
}

// idleAndTotal excludes guest time, which the kernel already counts in
// user and nice.
func idleAndTotal(c cpustat.Counters) (idle, total uint64) {
	idle = c.Idle + c.IOWait
	total = c.User + c.Nice + c.System + idle + c.IRQ + c.SoftIRQ + c.Steal
	return idle, total
}
