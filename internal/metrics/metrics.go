// Package metrics exports the latest collected snapshot in the Prometheus
// exposition format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/collector"
)

// Metrics holds the series updated on every collection.
type Metrics struct {
	reg *prometheus.Registry

	cpuFrequency *prometheus.GaugeVec
	zoneTemp     *prometheus.GaugeVec
	zoneCritical *prometheus.GaugeVec
	latest       *latestCollector

	collections        *prometheus.CounterVec
	collectionDuration prometheus.Histogram
}

// New registers all collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		reg: reg,
		cpuFrequency: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sysfs_cpu_frequency_khz",
				Help: "Current scaling frequency of a logical CPU in kHz",
			},
			[]string{"cpu"},
		),
		zoneTemp: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sysfs_thermal_zone_temperature_millicelsius",
				Help: "Current temperature of a thermal zone",
			},
			[]string{"zone", "type"},
		),
		zoneCritical: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sysfs_thermal_zone_critical_millicelsius",
				Help: "Critical trip point temperature of a thermal zone",
			},
			[]string{"zone", "type"},
		),
		latest: newLatestCollector(),
		collections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sysfs_collections_total",
				Help: "Total number of collection attempts",
			},
			[]string{"status"}, // success or error
		),
		collectionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sysfs_collection_duration_seconds",
				Help:    "Time taken to read one snapshot from sysfs and procfs",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
	}
	reg.MustRegister(m.latest)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveCollection records the outcome and duration of one collection.
func (m *Metrics) ObserveCollection(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.collections.WithLabelValues(status).Inc()
	m.collectionDuration.Observe(d.Seconds())
}

// Update replaces all series with the values of snap. CPUs and zones that
// disappeared since the last update are dropped, and so are utilization
// and the hottest zone when snap has none.
func (m *Metrics) Update(snap *collector.Snapshot) {
	m.cpuFrequency.Reset()
	for _, f := range snap.Freqs {
		m.cpuFrequency.WithLabelValues(strconv.Itoa(f.CPUID)).Set(float64(f.FreqKHz))
	}

	m.zoneTemp.Reset()
	m.zoneCritical.Reset()
	for _, z := range snap.Thermal {
		zone := strconv.Itoa(z.Zone)
		m.zoneTemp.WithLabelValues(zone, z.Type).Set(float64(z.TempMilliC))
		if z.CriticalMilliC > 0 {
			m.zoneCritical.WithLabelValues(zone, z.Type).Set(float64(z.CriticalMilliC))
		}
	}

	m.latest.set(snap)
}
