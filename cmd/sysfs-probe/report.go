package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/cpufreq"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/cpustat"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/thermal"
)

type probeOptions struct {
	SysfsRoot  string
	ProcfsRoot string
	CPU        int
	Zone       int
	Logger     *slog.Logger
}

// report is everything one probe found. Absent features are recorded as
// notes rather than failures.
type report struct {
	CPUFreq    *cpufreq.Info    `json:"cpufreq,omitempty" yaml:"cpufreq,omitempty"`
	Accounting cpustat.Counters `json:"cpu_accounting" yaml:"cpu_accounting"`
	Thermal    thermalReport    `json:"thermal" yaml:"thermal"`
	Notes      []string         `json:"notes,omitempty" yaml:"notes,omitempty"`
}

type thermalReport struct {
	Supported bool             `json:"supported" yaml:"supported"`
	Selector  int              `json:"selector" yaml:"selector"`
	Hottest   *thermal.Summary `json:"hottest,omitempty" yaml:"hottest,omitempty"`
	Zones     []zoneReport     `json:"zones,omitempty" yaml:"zones,omitempty"`
}

type zoneReport struct {
	thermal.Zone `yaml:",inline"`
	Critical     *int64 `json:"critical_millicelsius,omitempty" yaml:"critical_millicelsius,omitempty"`
}

// probe runs every inspector once. Only environmental failures are
// returned as errors.
func probe(opts probeOptions) (*report, error) {
	rep := &report{Thermal: thermalReport{Selector: opts.Zone}}

	freq := cpufreq.New(opts.SysfsRoot)
	if freq.Supported(opts.CPU) {
		if _, err := freq.HardwareLimits(opts.CPU); errors.Is(err, cpufreq.ErrNoDevice) {
			rep.Notes = append(rep.Notes, fmt.Sprintf("cpu%d: hardware limits: %v", opts.CPU, err))
		}
		info, err := freq.Info(opts.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu%d: %w", opts.CPU, err)
		}
		rep.CPUFreq = &info
	} else {
		rep.Notes = append(rep.Notes, fmt.Sprintf("cpu%d: no cpufreq support", opts.CPU))
	}

	counters, err := cpustat.New(opts.ProcfsRoot).Capture()
	if err != nil {
		return nil, err
	}
	rep.Accounting = counters

	therm := thermal.New(opts.SysfsRoot, opts.Logger)
	if !therm.KernelSupportsThermal() {
		rep.Notes = append(rep.Notes, thermal.ErrNoThermalSupport.Error())
		return rep, nil
	}
	rep.Thermal.Supported = true

	switch sum, err := therm.HottestZone(opts.Zone); {
	case errors.Is(err, thermal.ErrNoData):
		rep.Notes = append(rep.Notes, err.Error())
	case err != nil:
		return nil, err
	default:
		rep.Thermal.Hottest = &sum
	}

	zones := []int{opts.Zone}
	if opts.Zone == thermal.AllZones {
		if zones, err = therm.Zones(); err != nil {
			return nil, err
		}
	}
	for _, n := range zones {
		z, err := therm.Zone(n)
		if errors.Is(err, thermal.ErrNoData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		zr := zoneReport{Zone: z}
		crit, ok, err := therm.CriticalTemperature(n)
		if err != nil {
			return nil, err
		}
		if ok {
			zr.Critical = &crit
		}
		rep.Thermal.Zones = append(rep.Thermal.Zones, zr)
	}
	return rep, nil
}

func writeReport(w io.Writer, rep *report, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
