package collector

import "github.com/cptspacemanspiff/sysfs-telemetry/internal/cpustat"

// CPUAccountingSample is one /proc/stat capture with its capture time.
type CPUAccountingSample struct {
	Timestamp int64            `json:"timestamp" yaml:"timestamp"`
	Counters  cpustat.Counters `json:"counters" yaml:"counters"`
}

// CPUFreqSample holds the frequency scaling state of one logical CPU.
type CPUFreqSample struct {
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
	CPUID     int    `json:"cpu_id" yaml:"cpu_id"`
	FreqKHz   uint64 `json:"freq_khz" yaml:"freq_khz"`
	MinKHz    uint64 `json:"min_khz" yaml:"min_khz"` // 0 when hardware limits are unavailable
	MaxKHz    uint64 `json:"max_khz" yaml:"max_khz"`
	Governor  string `json:"governor,omitempty" yaml:"governor,omitempty"`
	Driver    string `json:"driver,omitempty" yaml:"driver,omitempty"`
	IsPCore   bool   `json:"is_p_core" yaml:"is_p_core"`
}

// ThermalSample is the reading of one thermal zone.
type ThermalSample struct {
	Timestamp      int64  `json:"timestamp" yaml:"timestamp"`
	Zone           int    `json:"zone" yaml:"zone"`
	Type           string `json:"type,omitempty" yaml:"type,omitempty"`
	TempMilliC     int64  `json:"temp_millicelsius" yaml:"temp_millicelsius"`
	CriticalMilliC int64  `json:"critical_millicelsius,omitempty" yaml:"critical_millicelsius,omitempty"` // 0 when no critical trip point
}

// ThermalSummary is the hottest zone at one point in time.
type ThermalSummary struct {
	Timestamp  int64  `json:"timestamp" yaml:"timestamp"`
	Zone       int    `json:"zone" yaml:"zone"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	TempMilliC int64  `json:"temp_millicelsius" yaml:"temp_millicelsius"`
}

// Snapshot is everything gathered by one Collect call.
type Snapshot struct {
	Timestamp  int64               `json:"timestamp" yaml:"timestamp"`
	Accounting CPUAccountingSample `json:"accounting" yaml:"accounting"`
	Freqs      []CPUFreqSample     `json:"freqs" yaml:"freqs"`
	Thermal    []ThermalSample     `json:"thermal" yaml:"thermal"`
	Hottest    *ThermalSummary     `json:"hottest,omitempty" yaml:"hottest,omitempty"`

	// UtilizationPct is the busy share since the previous Collect. It is
	// only meaningful when HasUtilization is set.
	UtilizationPct float64 `json:"utilization_pct" yaml:"utilization_pct"`
	HasUtilization bool    `json:"has_utilization" yaml:"has_utilization"`
}
