// Package thermal discovers thermal zones under class/thermal in sysfs and
// aggregates their readings.
//
// Temperatures are signed millidegrees Celsius. A zero or negative reading
// means the zone has no current value; it is never a candidate for the
// hottest zone.
package thermal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/sysfs"
)

const (
	// ZonePrefix is the directory name prefix of every thermal zone.
	ZonePrefix = "thermal_zone"

	// MaxTripPoints is how many trip points per zone are inspected
	// (trip_point_0 .. trip_point_3). Higher indices are never read.
	MaxTripPoints = 4

	// AllZones selects every zone in HottestZone.
	AllZones = -1

	criticalType = "critical"
)

var (
	// ErrNoData is matched by a *NoDataError.
	ErrNoData = errors.New("thermal: no data")

	// ErrNoThermalSupport reports that the thermal class directory is
	// missing, so the kernel has no thermal subsystem.
	ErrNoThermalSupport = errors.New("no thermal support in kernel")
)

// NoDataError reports that no zone matching a selector had a positive
// reading.
type NoDataError struct {
	Zone int
	All  bool
}

func (e *NoDataError) Error() string {
	if e.All {
		return "no thermal information has been found"
	}
	return fmt.Sprintf("no thermal information for zone '%d'", e.Zone)
}

func (e *NoDataError) Is(target error) bool {
	return target == ErrNoData
}

// TripPoint is one trip_point_<N> pair of a zone.
type TripPoint struct {
	Index       int    `json:"index" yaml:"index"`
	Type        string `json:"type" yaml:"type"`
	Temperature int64  `json:"temperature_millicelsius" yaml:"temperature_millicelsius"`
}

// Zone is the state of one thermal_zone<N> directory.
type Zone struct {
	Index       int         `json:"index" yaml:"index"`
	Type        string      `json:"type,omitempty" yaml:"type,omitempty"`
	Temperature int64       `json:"temperature_millicelsius" yaml:"temperature_millicelsius"`
	TripPoints  []TripPoint `json:"trip_points,omitempty" yaml:"trip_points,omitempty"`
}

// HasReading reports whether the zone currently reports a temperature.
func (z Zone) HasReading() bool {
	return z.Temperature > 0
}

// Summary is the hottest zone found by HottestZone.
type Summary struct {
	Zone        int    `json:"zone" yaml:"zone"`
	Temperature int64  `json:"temperature_millicelsius" yaml:"temperature_millicelsius"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Inspector reads thermal zones below a sysfs root. It holds no state
// between calls.
type Inspector struct {
	root string
	log  *slog.Logger
}

// New returns an Inspector reading below sysfsRoot ("" means /sys). A nil
// logger discards debug output.
func New(sysfsRoot string, logger *slog.Logger) *Inspector {
	if sysfsRoot == "" {
		sysfsRoot = sysfs.DefaultSysfsRoot
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Inspector{
		root: filepath.Join(sysfsRoot, "class/thermal"),
		log:  logger.With("topic", "thermal"),
	}
}

func (in *Inspector) zoneFile(zone int, name string) string {
	return filepath.Join(in.root, sysfs.Path("%s%d/%s", ZonePrefix, zone, name))
}

// KernelSupportsThermal reports whether the thermal class directory exists.
func (in *Inspector) KernelSupportsThermal() bool {
	return sysfs.PathExists(in.root)
}

// CriticalTemperature returns the temperature of the first trip point of
// zone whose type starts with "critical". Only the first MaxTripPoints
// trip points are inspected. ok is false when there is no such trip point
// or its temperature is not positive.
func (in *Inspector) CriticalTemperature(zone int) (temp int64, ok bool, err error) {
	for i := 0; i < MaxTripPoints; i++ {
		typ, present, err := sysfs.ReadLine(in.zoneFile(zone, fmt.Sprintf("trip_point_%d_type", i)))
		if err != nil {
			return 0, false, err
		}
		if !present || !strings.HasPrefix(typ, criticalType) {
			continue
		}

		v, present, err := sysfs.ReadSigned(in.zoneFile(zone, fmt.Sprintf("trip_point_%d_temp", i)))
		if err != nil {
			return 0, false, err
		}
		if !present || v <= 0 {
			return 0, false, nil
		}
		in.log.Debug("critical trip point found", "zone", zone, "trip_point", i, "millicelsius", v)
		return v, true, nil
	}
	return 0, false, nil
}

// HottestZone returns the zone with the highest positive reading. selector
// is a zone index or AllZones. When two zones report the same temperature
// the lower index wins.
//
// It fails with a *NoDataError when no matching zone has a positive reading
// and with ErrNoThermalSupport when the thermal class directory is missing.
func (in *Inspector) HottestZone(selector int) (Summary, error) {
	if !in.KernelSupportsThermal() {
		return Summary{}, fmt.Errorf("%s: %w", in.root, ErrNoThermalSupport)
	}

	var (
		best  Summary
		found bool
	)
	err := sysfs.Scan(in.root, sysfs.TypeDir|sysfs.TypeSymlink, func(e sysfs.Entry) error {
		n, ok := zoneIndex(e.Name)
		if !ok {
			return nil
		}
		if selector != AllZones && selector != n {
			return nil
		}

		temp, ok, err := sysfs.ReadSigned(in.zoneFile(n, "temp"))
		if err != nil {
			return err
		}
		if !ok || temp <= 0 {
			in.log.Debug("thermal zone has no reading", "zone", n)
			return nil
		}
		in.log.Debug("thermal zone reading", "zone", n, "millicelsius", temp)

		if found && (temp < best.Temperature || (temp == best.Temperature && n > best.Zone)) {
			return nil
		}
		typ, _, err := sysfs.ReadLine(in.zoneFile(n, "type"))
		if err != nil {
			return err
		}
		best = Summary{Zone: n, Temperature: temp, Type: typ}
		found = true
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	if !found {
		return Summary{}, &NoDataError{Zone: selector, All: selector == AllZones}
	}
	return best, nil
}

// Zones returns the indices of all thermal zones in ascending order.
func (in *Inspector) Zones() ([]int, error) {
	if !in.KernelSupportsThermal() {
		return nil, fmt.Errorf("%s: %w", in.root, ErrNoThermalSupport)
	}

	var zones []int
	err := sysfs.Scan(in.root, sysfs.TypeDir|sysfs.TypeSymlink, func(e sysfs.Entry) error {
		if n, ok := zoneIndex(e.Name); ok {
			zones = append(zones, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Ints(zones)
	return zones, nil
}

// Zone reads the temperature, type and trip points of one zone. A zone
// directory that does not exist is reported as a *NoDataError.
func (in *Inspector) Zone(n int) (Zone, error) {
	if !sysfs.PathExists(filepath.Join(in.root, sysfs.Path("%s%d", ZonePrefix, n))) {
		return Zone{}, &NoDataError{Zone: n}
	}

	z := Zone{Index: n}
	var err error
	if z.Temperature, _, err = sysfs.ReadSigned(in.zoneFile(n, "temp")); err != nil {
		return Zone{}, err
	}
	if z.Type, _, err = sysfs.ReadLine(in.zoneFile(n, "type")); err != nil {
		return Zone{}, err
	}

	for i := 0; i < MaxTripPoints; i++ {
		typ, ok, err := sysfs.ReadLine(in.zoneFile(n, fmt.Sprintf("trip_point_%d_type", i)))
		if err != nil {
			return Zone{}, err
		}
		if !ok {
			continue
		}
		temp, _, err := sysfs.ReadSigned(in.zoneFile(n, fmt.Sprintf("trip_point_%d_temp", i)))
		if err != nil {
			return Zone{}, err
		}
		z.TripPoints = append(z.TripPoints, TripPoint{Index: i, Type: typ, Temperature: temp})
	}
	return z, nil
}

// zoneIndex parses "thermal_zone<N>".
func zoneIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, ZonePrefix)
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
