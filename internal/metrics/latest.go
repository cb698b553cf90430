package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/collector"
)

// latestCollector emits the kernel's cumulative CPU counters as counters
// and the optional per-snapshot values only while the snapshot has them.
type latestCollector struct {
	jiffies     *prometheus.Desc
	events      *prometheus.Desc
	utilization *prometheus.Desc
	hottest     *prometheus.Desc

	mu   sync.Mutex
	snap *collector.Snapshot
}

func newLatestCollector() *latestCollector {
	return &latestCollector{
		jiffies: prometheus.NewDesc(
			"sysfs_cpu_jiffies_total",
			"Cumulative CPU time since boot from /proc/stat, by mode",
			[]string{"mode"}, nil,
		),
		events: prometheus.NewDesc(
			"sysfs_cpu_events_total",
			"Cumulative context switches, interrupts and soft interrupts since boot",
			[]string{"event"}, nil,
		),
		utilization: prometheus.NewDesc(
			"sysfs_cpu_utilization_percent",
			"Busy share of all CPUs since the previous collection",
			nil, nil,
		),
		hottest: prometheus.NewDesc(
			"sysfs_thermal_hottest_millicelsius",
			"Temperature of the hottest thermal zone",
			[]string{"zone", "type"}, nil,
		),
	}
}

func (c *latestCollector) set(snap *collector.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
}

func (c *latestCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jiffies
	ch <- c.events
	ch <- c.utilization
	ch <- c.hottest
}

func (c *latestCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	snap := c.snap
	c.mu.Unlock()
	if snap == nil {
		return
	}

	a := snap.Accounting.Counters
	for _, v := range []struct {
		mode  string
		value uint64
	}{
		{"user", a.User},
		{"nice", a.Nice},
		{"system", a.System},
		{"idle", a.Idle},
		{"iowait", a.IOWait},
		{"irq", a.IRQ},
		{"softirq", a.SoftIRQ},
		{"steal", a.Steal},
		{"guest", a.Guest},
		{"guest_nice", a.GuestNice},
	} {
		ch <- prometheus.MustNewConstMetric(c.jiffies, prometheus.CounterValue, float64(v.value), v.mode)
	}

	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(a.ContextSwitches), "context_switches")
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(a.Interrupts), "interrupts")
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(a.SoftInterrupts), "soft_interrupts")

	if snap.HasUtilization {
		ch <- prometheus.MustNewConstMetric(c.utilization, prometheus.GaugeValue, snap.UtilizationPct)
	}
	if h := snap.Hottest; h != nil && h.TempMilliC > 0 {
		ch <- prometheus.MustNewConstMetric(c.hottest, prometheus.GaugeValue, float64(h.TempMilliC),
			strconv.Itoa(h.Zone), h.Type)
	}
}
