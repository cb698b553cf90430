package dbus

import (
	"encoding/json"
	"fmt"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/storage"
)

const (
	busName   = "org.sysfs.Telemetry"
	objPath   = "/org/sysfs/Telemetry"
	ifaceName = "org.sysfs.Telemetry"

	maxRangeSeconds = 366 * 86400
)

const introspectXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="GetCurrentStats">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetHistory">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetThermalHistory">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Service exposes stored telemetry over D-Bus.
type Service struct {
	store *storage.DB
}

// NewService creates a new D-Bus service.
func NewService(store *storage.DB) *Service {
	return &Service{store: store}
}

// Export registers the service on the session bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	if err := conn.Export(s, objPath, ifaceName); err != nil {
		return nil, fmt.Errorf("export service: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), objPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(busName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", busName)
	}

	return conn, nil
}

// GetCurrentStats returns the most recent accounting counters, per-CPU
// frequencies and thermal readings as JSON.
func (s *Service) GetCurrentStats() (string, *godbus.Error) {
	acct, err := s.store.LatestCPUAccountingSample()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	freqs, err := s.store.LatestCPUFreqSamples()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	zones, err := s.store.LatestThermalSamples()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	hottest, err := s.store.LatestThermalSummary()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return marshal(map[string]any{
		"accounting": acct,
		"cpu_freq":   freqs,
		"thermal":    zones,
		"hottest":    hottest,
	})
}

// GetHistory returns accounting and CPU frequency samples in a time range as JSON.
func (s *Service) GetHistory(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateRange(fromEpoch, toEpoch); err != nil {
		return "", err
	}
	acct, err := s.store.CPUAccountingSamplesInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	freqs, err := s.store.CPUFreqSamplesInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return marshal(map[string]any{"accounting": acct, "cpu_freq": freqs})
}

// GetThermalHistory returns thermal zone samples and hottest-zone summaries
// in a time range as JSON.
func (s *Service) GetThermalHistory(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateRange(fromEpoch, toEpoch); err != nil {
		return "", err
	}
	zones, err := s.store.ThermalSamplesInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	hottest, err := s.store.ThermalSummariesInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return marshal(map[string]any{"zones": zones, "hottest": hottest})
}

func validateRange(from, to int64) *godbus.Error {
	switch {
	case from < 0 || to < 0:
		return godbus.MakeFailedError(fmt.Errorf("time range must not be negative, got %d..%d", from, to))
	case to < from:
		return godbus.MakeFailedError(fmt.Errorf("to_epoch %d is before from_epoch %d", to, from))
	case to-from > maxRangeSeconds:
		return godbus.MakeFailedError(fmt.Errorf("time range of %ds exceeds %ds", to-from, maxRangeSeconds))
	}
	return nil
}

func marshal(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}
