// Package cpufreq reads CPU frequency scaling state from
// devices/system/cpu/cpu<N>/cpufreq under sysfs.
package cpufreq

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/sysfs"
)

// ErrNoDevice reports that a CPU has no usable frequency scaling support.
var ErrNoDevice = errors.New("cpufreq: no such device")

// Leaf files under cpu<N>/cpufreq.
const (
	fileBaseFreq         = "base_frequency"
	fileHardwareCurFreq  = "cpuinfo_cur_freq"
	fileHardwareMinFreq  = "cpuinfo_min_freq"
	fileHardwareMaxFreq  = "cpuinfo_max_freq"
	fileLatency          = "cpuinfo_transition_latency"
	fileScalingCurFreq   = "scaling_cur_freq"
	fileScalingMinFreq   = "scaling_min_freq"
	fileScalingMaxFreq   = "scaling_max_freq"
	fileDriver           = "scaling_driver"
	fileGovernor         = "scaling_governor"
	fileAvailGovernors   = "scaling_available_governors"
	fileAvailFrequencies = "scaling_available_frequencies"
)

// Limits is a frequency range in kHz. Limits returned by HardwareLimits are
// both non-zero with Min <= Max.
type Limits struct {
	Min uint64 `json:"min_khz" yaml:"min_khz"`
	Max uint64 `json:"max_khz" yaml:"max_khz"`
}

// Info is everything the kernel exposes about one CPU's scaling state.
// Zero numbers and empty strings mean the file is not provided.
type Info struct {
	CPU                  int    `json:"cpu" yaml:"cpu"`
	CurrentKHz           uint64 `json:"current_khz" yaml:"current_khz"`
	HardwareKHz          uint64 `json:"hardware_khz,omitempty" yaml:"hardware_khz,omitempty"`
	Hardware             Limits `json:"hardware_limits" yaml:"hardware_limits"`
	Scaling              Limits `json:"scaling_limits" yaml:"scaling_limits"`
	TransitionLatencyNs  uint64 `json:"transition_latency_ns" yaml:"transition_latency_ns"`
	Driver               string `json:"driver,omitempty" yaml:"driver,omitempty"`
	Governor             string `json:"governor,omitempty" yaml:"governor,omitempty"`
	AvailableGovernors   string `json:"available_governors,omitempty" yaml:"available_governors,omitempty"`
	AvailableFrequencies string `json:"available_frequencies,omitempty" yaml:"available_frequencies,omitempty"`
}

// Inspector reads cpufreq files below a sysfs root. It holds no state
// between calls and is safe for concurrent use.
type Inspector struct {
	root string
}

// New returns an Inspector reading below sysfsRoot ("" means /sys).
func New(sysfsRoot string) *Inspector {
	if sysfsRoot == "" {
		sysfsRoot = sysfs.DefaultSysfsRoot
	}
	return &Inspector{root: sysfsRoot}
}

func (in *Inspector) cpuDir() string {
	return filepath.Join(in.root, "devices/system/cpu")
}

func (in *Inspector) leaf(cpu int, name string) string {
	return filepath.Join(in.cpuDir(), sysfs.Path("cpu%d/cpufreq/%s", cpu, name))
}

func (in *Inspector) value(cpu int, name string) (uint64, error) {
	return sysfs.ReadUnsigned(in.leaf(cpu, name), 10)
}

func (in *Inspector) text(cpu int, name string) (string, bool, error) {
	return sysfs.ReadLine(in.leaf(cpu, name))
}

// Supported reports whether cpu has a cpufreq directory at all.
func (in *Inspector) Supported(cpu int) bool {
	return sysfs.PathExists(filepath.Join(in.cpuDir(), sysfs.Path("cpu%d/cpufreq", cpu)))
}

// HardwareLimits returns the hardware frequency range of cpu. It returns
// ErrNoDevice when either bound reads as zero or the bounds are inverted,
// which is how the kernel looks when scaling is unsupported.
func (in *Inspector) HardwareLimits(cpu int) (Limits, error) {
	lo, err := in.value(cpu, fileHardwareMinFreq)
	if err != nil {
		return Limits{}, err
	}
	if lo == 0 {
		return Limits{}, fmt.Errorf("cpu%d %s: %w", cpu, fileHardwareMinFreq, ErrNoDevice)
	}
	hi, err := in.value(cpu, fileHardwareMaxFreq)
	if err != nil {
		return Limits{}, err
	}
	if hi == 0 {
		return Limits{}, fmt.Errorf("cpu%d %s: %w", cpu, fileHardwareMaxFreq, ErrNoDevice)
	}
	if lo > hi {
		return Limits{}, fmt.Errorf("cpu%d min %d > max %d: %w", cpu, lo, hi, ErrNoDevice)
	}
	return Limits{Min: lo, Max: hi}, nil
}

// ScalingLimits returns the policy range the governor may choose from.
// Either bound is 0 when not provided.
func (in *Inspector) ScalingLimits(cpu int) (Limits, error) {
	lo, err := in.value(cpu, fileScalingMinFreq)
	if err != nil {
		return Limits{}, err
	}
	hi, err := in.value(cpu, fileScalingMaxFreq)
	if err != nil {
		return Limits{}, err
	}
	return Limits{Min: lo, Max: hi}, nil
}

// CurrentFrequency returns the frequency in kHz the kernel last set for
// cpu, or 0 if unknown.
func (in *Inspector) CurrentFrequency(cpu int) (uint64, error) {
	return in.value(cpu, fileScalingCurFreq)
}

// HardwareFrequency returns the frequency in kHz reported by the hardware,
// or 0 if unknown. The file is usually readable by root only.
func (in *Inspector) HardwareFrequency(cpu int) (uint64, error) {
	return in.value(cpu, fileHardwareCurFreq)
}

// BaseFrequency returns the guaranteed (non-turbo) frequency in kHz, or 0
// if the driver does not expose one. Only intel_pstate provides it.
func (in *Inspector) BaseFrequency(cpu int) (uint64, error) {
	return in.value(cpu, fileBaseFreq)
}

// TransitionLatency returns the time in nanoseconds cpu takes to switch
// frequencies, or 0 if unknown.
func (in *Inspector) TransitionLatency(cpu int) (uint64, error) {
	return in.value(cpu, fileLatency)
}

// Driver returns the scaling driver name.
func (in *Inspector) Driver(cpu int) (string, bool, error) {
	return in.text(cpu, fileDriver)
}

// Governor returns the active scaling governor.
func (in *Inspector) Governor(cpu int) (string, bool, error) {
	return in.text(cpu, fileGovernor)
}

// AvailableGovernors returns the raw space-separated governor list.
func (in *Inspector) AvailableGovernors(cpu int) (string, bool, error) {
	return in.text(cpu, fileAvailGovernors)
}

// AvailableFrequencies returns the raw space-separated frequency list in kHz.
func (in *Inspector) AvailableFrequencies(cpu int) (string, bool, error) {
	return in.text(cpu, fileAvailFrequencies)
}

// Info reads every cpufreq file of cpu. A CPU without hardware limits is
// not an error here; Hardware is left zero.
func (in *Inspector) Info(cpu int) (Info, error) {
	info := Info{CPU: cpu}

	var err error
	if info.Hardware, err = in.HardwareLimits(cpu); err != nil && !errors.Is(err, ErrNoDevice) {
		return Info{}, err
	}
	if info.Scaling, err = in.ScalingLimits(cpu); err != nil {
		return Info{}, err
	}
	if info.CurrentKHz, err = in.CurrentFrequency(cpu); err != nil {
		return Info{}, err
	}
	if info.HardwareKHz, err = in.HardwareFrequency(cpu); err != nil {
		return Info{}, err
	}
	if info.TransitionLatencyNs, err = in.TransitionLatency(cpu); err != nil {
		return Info{}, err
	}

	texts := []struct {
		dst  *string
		name string
	}{
		{&info.Driver, fileDriver},
		{&info.Governor, fileGovernor},
		{&info.AvailableGovernors, fileAvailGovernors},
		{&info.AvailableFrequencies, fileAvailFrequencies},
	}
	for _, t := range texts {
		if *t.dst, _, err = in.text(cpu, t.name); err != nil {
			return Info{}, err
		}
	}
	return info, nil
}

// CPUs returns the logical CPU indices listed under devices/system/cpu,
// in ascending order.
func (in *Inspector) CPUs() ([]int, error) {
	var cpus []int
	err := sysfs.Scan(in.cpuDir(), sysfs.TypeDir|sysfs.TypeSymlink, func(e sysfs.Entry) error {
		if id, ok := cpuIndex(e.Name); ok {
			cpus = append(cpus, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Ints(cpus)
	return cpus, nil
}

// cpuIndex parses "cpu<N>"; names like "cpufreq" or "cpuidle" are rejected.
func cpuIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "cpu")
	if !ok || rest == "" {
		return 0, false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0, false
		}
	}
	return int(sysfs.ParseUnsigned(rest, 10)), true
}
