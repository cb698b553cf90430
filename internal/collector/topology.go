package collector

import (
	"errors"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/cpufreq"
)

// DetectTopology determines P-core vs E-core for each CPU.
// On hybrid Intel, E-cores have a lower base frequency than P-cores.
// On non-hybrid systems, all cores are marked as P-cores.
func DetectTopology(in *cpufreq.Inspector) (map[int]bool, error) {
	cpus, err := in.CPUs()
	if err != nil {
		return nil, err
	}

	base := make(map[int]uint64, len(cpus))
	var maxBase uint64
	for _, cpu := range cpus {
		// Try base_frequency first (Intel), fall back to cpuinfo_max_freq
		b, err := in.BaseFrequency(cpu)
		if err != nil {
			return nil, err
		}
		if b == 0 {
			limits, err := in.HardwareLimits(cpu)
			if err != nil && !errors.Is(err, cpufreq.ErrNoDevice) {
				return nil, err
			}
			b = limits.Max
		}
		base[cpu] = b
		maxBase = max(maxBase, b)
	}

	topology := make(map[int]bool, len(cpus))
	for cpu, b := range base {
		topology[cpu] = b == maxBase
	}
	return topology, nil
}
