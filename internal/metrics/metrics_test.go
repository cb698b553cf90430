package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/collector"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/cpustat"
)

func testSnapshot() *collector.Snapshot {
	return &collector.Snapshot{
		Timestamp: 100,
		Accounting: collector.CPUAccountingSample{Timestamp: 100, Counters: cpustat.Counters{
			User: 4705, Idle: 3699176, ContextSwitches: 1990473,
		}},
		Freqs: []collector.CPUFreqSample{
			{CPUID: 0, FreqKHz: 3100000},
			{CPUID: 1, FreqKHz: 1200000},
		},
		Thermal: []collector.ThermalSample{
			{Zone: 0, Type: "acpitz", TempMilliC: 42000, CriticalMilliC: 98000},
			{Zone: 1, Type: "x86_pkg_temp", TempMilliC: 55000},
		},
		Hottest:        &collector.ThermalSummary{Zone: 1, Type: "x86_pkg_temp", TempMilliC: 55000},
		UtilizationPct: 12.5,
		HasUtilization: true,
	}
}

func TestUpdate_SetsGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Update(testSnapshot())

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"cpu0 frequency", m.cpuFrequency.WithLabelValues("0"), 3100000},
		{"cpu1 frequency", m.cpuFrequency.WithLabelValues("1"), 1200000},
		{"zone 0", m.zoneTemp.WithLabelValues("0", "acpitz"), 42000},
		{"zone 0 critical", m.zoneCritical.WithLabelValues("0", "acpitz"), 98000},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Fatalf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	if got := testutil.CollectAndCount(m.zoneCritical); got != 1 {
		t.Fatalf("critical series = %d, want 1 (zone 1 has no critical trip point)", got)
	}
}

func TestUpdate_CumulativeValuesAreCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Update(testSnapshot())

	const want = `
# HELP sysfs_cpu_events_total Cumulative context switches, interrupts and soft interrupts since boot
# TYPE sysfs_cpu_events_total counter
sysfs_cpu_events_total{event="context_switches"} 1990473
sysfs_cpu_events_total{event="interrupts"} 0
sysfs_cpu_events_total{event="soft_interrupts"} 0
# HELP sysfs_cpu_utilization_percent Busy share of all CPUs since the previous collection
# TYPE sysfs_cpu_utilization_percent gauge
sysfs_cpu_utilization_percent 12.5
# HELP sysfs_thermal_hottest_millicelsius Temperature of the hottest thermal zone
# TYPE sysfs_thermal_hottest_millicelsius gauge
sysfs_thermal_hottest_millicelsius{type="x86_pkg_temp",zone="1"} 55000
`
	err := testutil.CollectAndCompare(m.latest, strings.NewReader(want),
		"sysfs_cpu_events_total", "sysfs_cpu_utilization_percent", "sysfs_thermal_hottest_millicelsius")
	if err != nil {
		t.Fatal(err)
	}

	if got := testutil.CollectAndCount(m.latest, "sysfs_cpu_jiffies_total"); got != 10 {
		t.Fatalf("jiffies series = %d, want 10", got)
	}
}

func TestLatest_EmptyBeforeFirstUpdate(t *testing.T) {
	m := New(prometheus.NewRegistry())

	if got := testutil.CollectAndCount(m.latest); got != 0 {
		t.Fatalf("series before first update = %d, want 0", got)
	}
}

func TestUpdate_DropsVanishedSeries(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Update(testSnapshot())

	// A snapshot right after a baseline reset, with no thermal reading.
	snap := testSnapshot()
	snap.Freqs = snap.Freqs[:1]
	snap.Thermal = nil
	snap.Hottest = nil
	snap.HasUtilization = false
	snap.UtilizationPct = 0
	m.Update(snap)

	tests := []struct {
		name   string
		c      prometheus.Collector
		metric []string
		want   int
	}{
		{"frequency", m.cpuFrequency, nil, 1},
		{"zone temperature", m.zoneTemp, nil, 0},
		{"hottest zone", m.latest, []string{"sysfs_thermal_hottest_millicelsius"}, 0},
		{"utilization", m.latest, []string{"sysfs_cpu_utilization_percent"}, 0},
		{"jiffies", m.latest, []string{"sysfs_cpu_jiffies_total"}, 10},
	}
	for _, tt := range tests {
		if got := testutil.CollectAndCount(tt.c, tt.metric...); got != tt.want {
			t.Fatalf("%s series = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestUpdate_NonPositiveHottestIsOmitted(t *testing.T) {
	m := New(prometheus.NewRegistry())
	snap := testSnapshot()
	snap.Hottest.TempMilliC = 0
	m.Update(snap)

	if got := testutil.CollectAndCount(m.latest, "sysfs_thermal_hottest_millicelsius"); got != 0 {
		t.Fatalf("hottest series = %d, want 0 for a non-positive reading", got)
	}
}

func TestObserveCollection(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveCollection(2*time.Millisecond, nil)
	m.ObserveCollection(time.Millisecond, nil)
	m.ObserveCollection(time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(m.collections.WithLabelValues("success")); got != 2 {
		t.Fatalf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.collections.WithLabelValues("error")); got != 1 {
		t.Fatalf("error count = %v, want 1", got)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Update(testSnapshot())

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	for _, want := range []string{
		`sysfs_cpu_frequency_khz{cpu="0"} 3.1e+06`,
		`sysfs_thermal_zone_temperature_millicelsius{type="x86_pkg_temp",zone="1"} 55000`,
		`sysfs_thermal_hottest_millicelsius{type="x86_pkg_temp",zone="1"} 55000`,
		`# TYPE sysfs_cpu_jiffies_total counter`,
		`sysfs_cpu_jiffies_total{mode="user"} 4705`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
