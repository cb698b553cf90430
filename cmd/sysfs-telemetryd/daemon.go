package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/collector"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/config"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/metrics"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/storage"
)

// daemon owns the collection loop. All fields are used from the run
// goroutine only.
type daemon struct {
	cfg       *config.Config
	store     *storage.DB
	metrics   *metrics.Metrics // nil when the endpoint is disabled
	collector *collector.Collector
	log       *slog.Logger
	now       func() time.Time
}

func newDaemon(cfg *config.Config, store *storage.DB, m *metrics.Metrics, logger *slog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, store: store, metrics: m, log: logger, now: time.Now}
	c, err := d.newCollector(cfg)
	if err != nil {
		return nil, err
	}
	d.collector = c
	return d, nil
}

func (d *daemon) newCollector(cfg *config.Config) (*collector.Collector, error) {
	return collector.New(collector.Options{
		SysfsRoot:   cfg.Paths.SysfsRoot,
		ProcfsRoot:  cfg.Paths.ProcfsRoot,
		ThermalZone: cfg.Collection.ThermalZone,
		Logger:      d.log,
	})
}

func (d *daemon) interval() time.Duration {
	return time.Duration(d.cfg.Collection.IntervalSeconds) * time.Second
}

func (d *daemon) cleanupInterval() time.Duration {
	return time.Duration(d.cfg.Cleanup.IntervalHours) * time.Hour
}

// collectOnce takes one snapshot, stores it and updates the gauges.
func (d *daemon) collectOnce() error {
	start := time.Now()
	snap, err := d.collector.Collect()
	if d.metrics != nil {
		d.metrics.ObserveCollection(time.Since(start), err)
	}
	if err != nil {
		return err
	}

	c := snap.Accounting.Counters
	d.log.Info("sample", "topic", "cpustat",
		"user", c.User, "system", c.System, "idle", c.Idle, "iowait", c.IOWait,
		"ctxt", c.ContextSwitches)
	if snap.HasUtilization {
		d.log.Info("utilization", "topic", "cpustat", "busy_pct", snap.UtilizationPct)
	}
	for _, f := range snap.Freqs {
		d.log.Debug("sample", "topic", "cpufreq",
			"cpu", f.CPUID, "khz", f.FreqKHz, "governor", f.Governor, "p_core", f.IsPCore)
	}
	if snap.Hottest != nil {
		d.log.Info("hottest zone", "topic", "thermal",
			"zone", snap.Hottest.Zone, "type", snap.Hottest.Type, "millicelsius", snap.Hottest.TempMilliC)
	}

	if err := d.store.InsertSnapshot(snap); err != nil {
		d.log.Error("store snapshot", "topic", "storage", "err", err)
	}
	if d.metrics != nil {
		d.metrics.Update(snap)
	}
	return nil
}

// cleanup deletes samples older than the retention period.
func (d *daemon) cleanup() {
	cutoff := d.now().AddDate(0, 0, -d.cfg.Cleanup.RetentionDays).Unix()
	n, err := d.store.DeleteOlderThan(cutoff)
	if err != nil {
		d.log.Error("cleanup", "topic", "storage", "err", err)
		return
	}
	d.log.Info("cleanup", "topic", "storage", "deleted", n, "before", cutoff)
}

// applyConfig switches to cfg. The collector is rebuilt only when the
// paths or the zone selector changed.
func (d *daemon) applyConfig(cfg *config.Config) error {
	old := d.cfg
	if cfg.Paths != old.Paths || cfg.Collection.ThermalZone != old.Collection.ThermalZone {
		c, err := d.newCollector(cfg)
		if err != nil {
			return err
		}
		d.collector = c
	}
	if cfg.Storage.DBPath != old.Storage.DBPath {
		d.log.Warn("storage.db_path change requires a restart", "current", old.Storage.DBPath)
		cfg.Storage.DBPath = old.Storage.DBPath
	}
	if cfg.Metrics.ListenAddress != old.Metrics.ListenAddress {
		d.log.Warn("metrics.listen_address change requires a restart", "current", old.Metrics.ListenAddress)
		cfg.Metrics.ListenAddress = old.Metrics.ListenAddress
	}
	d.cfg = cfg
	return nil
}

// run collects on a ticker until ctx is done. A wake signal drops the
// utilization baseline; a new config replaces the running one.
func (d *daemon) run(ctx context.Context, wake <-chan struct{}, reload <-chan *config.Config) error {
	if err := d.collectOnce(); err != nil {
		d.log.Error("collect", "err", err)
	}
	d.cleanup()

	ticker := time.NewTicker(d.interval())
	defer ticker.Stop()
	cleanupTicker := time.NewTicker(d.cleanupInterval())
	defer cleanupTicker.Stop()

	d.log.Info("collecting", "interval", d.interval())
	for {
		select {
		case <-ticker.C:
			if err := d.collectOnce(); err != nil {
				d.log.Error("collect", "err", err)
			}
		case <-cleanupTicker.C:
			d.cleanup()
		case <-wake:
			d.log.Info("wake signal received, resetting utilization baseline", "topic", "sleep")
			d.collector.Reset()
		case cfg := <-reload:
			if err := d.applyConfig(cfg); err != nil {
				d.log.Error("apply config, keeping previous", "err", err)
				continue
			}
			ticker.Reset(d.interval())
			cleanupTicker.Reset(d.cleanupInterval())
			d.log.Info("config applied", "interval", d.interval(), "thermal_zone", cfg.Collection.ThermalZone)
		case <-ctx.Done():
			return nil
		}
	}
}
