package dbus

import (
	"encoding/json"
	"path/filepath"
	"testing"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/collector"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/cpustat"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(path)
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("db.Close() error = %v", err)
		}
	})

	return NewService(db), db
}

func TestService_InvalidTimeRanges(t *testing.T) {
	svc, _ := newTestService(t)

	methods := map[string]func(int64, int64) (string, *godbus.Error){
		"GetHistory":        svc.GetHistory,
		"GetThermalHistory": svc.GetThermalHistory,
	}
	ranges := []struct {
		name     string
		from, to int64
	}{
		{"negative from", -1, 0},
		{"to before from", 10, 9},
		{"range too large", 0, 86400*366 + 1},
	}

	for method, call := range methods {
		for _, r := range ranges {
			t.Run(method+" "+r.name, func(t *testing.T) {
				if _, err := call(r.from, r.to); err == nil {
					t.Fatal("expected D-Bus error, got nil")
				}
			})
		}
	}
}

func TestService_MaxRangeAccepted(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.GetHistory(0, 86400*366); err != nil {
		t.Fatalf("GetHistory(0, 366d) error = %v", err)
	}
	if _, err := svc.GetThermalHistory(5, 5); err != nil {
		t.Fatalf("GetThermalHistory(5, 5) error = %v", err)
	}
}

func TestService_SuccessJSONShapes(t *testing.T) {
	svc, db := newTestService(t)

	err := db.InsertSnapshot(&collector.Snapshot{
		Timestamp:  100,
		Accounting: collector.CPUAccountingSample{Timestamp: 100, Counters: cpustat.Counters{User: 10, Idle: 90}},
		Freqs:      []collector.CPUFreqSample{{Timestamp: 100, CPUID: 0, FreqKHz: 2400000, IsPCore: true}},
		Thermal:    []collector.ThermalSample{{Timestamp: 100, Zone: 1, Type: "x86_pkg_temp", TempMilliC: 55000}},
		Hottest:    &collector.ThermalSummary{Timestamp: 100, Zone: 1, Type: "x86_pkg_temp", TempMilliC: 55000},
	})
	if err != nil {
		t.Fatalf("InsertSnapshot() error = %v", err)
	}

	currentJSON, dbusErr := svc.GetCurrentStats()
	if dbusErr != nil {
		t.Fatalf("GetCurrentStats() error = %v", dbusErr)
	}
	var current map[string]json.RawMessage
	if err := json.Unmarshal([]byte(currentJSON), &current); err != nil {
		t.Fatalf("unmarshal current JSON: %v", err)
	}
	for _, key := range []string{"accounting", "cpu_freq", "thermal", "hottest"} {
		if _, ok := current[key]; !ok {
			t.Fatalf("current JSON missing key %q: %s", key, currentJSON)
		}
	}
	var hottest collector.ThermalSummary
	if err := json.Unmarshal(current["hottest"], &hottest); err != nil {
		t.Fatalf("unmarshal hottest: %v", err)
	}
	if hottest.Zone != 1 || hottest.TempMilliC != 55000 {
		t.Fatalf("hottest = %+v, want zone 1 at 55000", hottest)
	}

	historyJSON, dbusErr := svc.GetHistory(0, 200)
	if dbusErr != nil {
		t.Fatalf("GetHistory() error = %v", dbusErr)
	}
	var history struct {
		Accounting []collector.CPUAccountingSample `json:"accounting"`
		CPUFreq    []collector.CPUFreqSample       `json:"cpu_freq"`
	}
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		t.Fatalf("unmarshal history JSON: %v", err)
	}
	if len(history.Accounting) != 1 || history.Accounting[0].Counters.User != 10 {
		t.Fatalf("history accounting = %+v", history.Accounting)
	}
	if len(history.CPUFreq) != 1 || history.CPUFreq[0].FreqKHz != 2400000 {
		t.Fatalf("history cpu_freq = %+v", history.CPUFreq)
	}

	thermalJSON, dbusErr := svc.GetThermalHistory(0, 200)
	if dbusErr != nil {
		t.Fatalf("GetThermalHistory() error = %v", dbusErr)
	}
	var thermal map[string]json.RawMessage
	if err := json.Unmarshal([]byte(thermalJSON), &thermal); err != nil {
		t.Fatalf("unmarshal thermal JSON: %v", err)
	}
	for _, key := range []string{"zones", "hottest"} {
		if _, ok := thermal[key]; !ok {
			t.Fatalf("thermal JSON missing key %q: %s", key, thermalJSON)
		}
	}
}

func TestService_EmptyStore(t *testing.T) {
	svc, _ := newTestService(t)

	currentJSON, dbusErr := svc.GetCurrentStats()
	if dbusErr != nil {
		t.Fatalf("GetCurrentStats() error = %v", dbusErr)
	}
	var current map[string]json.RawMessage
	if err := json.Unmarshal([]byte(currentJSON), &current); err != nil {
		t.Fatalf("unmarshal current JSON: %v", err)
	}
	if string(current["accounting"]) != "null" || string(current["hottest"]) != "null" {
		t.Fatalf("GetCurrentStats() on empty store = %s, want null accounting and hottest", currentJSON)
	}
}
