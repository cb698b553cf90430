package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/cptspacemanspiff/sysfs-telemetry/internal/collector"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/config"
	dbussvc "github.com/cptspacemanspiff/sysfs-telemetry/internal/dbus"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/metrics"
	"github.com/cptspacemanspiff/sysfs-telemetry/internal/storage"
)

const defaultConfigPath = "/etc/sysfs-telemetry/config.toml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("sysfs-telemetryd", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", defaultConfigPath, "path to the TOML config file (defaults are used if it does not exist)")
	verbose := flagSet.BoolP("verbose", "v", false, "enable all verbose logging (equivalent to --log=all)")
	logFlag := flagSet.String("log", "", "comma-separated log topics: cpufreq,cpustat,thermal,storage,sleep (or 'all')")
	resetDB := flagSet.Bool("reset-db", false, "delete the database and exit")
	noDBus := flagSet.Bool("no-dbus", false, "do not export the D-Bus service or watch for sleep")
	writeConfig := flagSet.Bool("write-config", false, "write the default config to --config and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := newLogger(os.Stderr, *verbose, *logFlag)

	if *writeConfig {
		if err := writeDefaultConfig(*configPath); err != nil {
			return err
		}
		logger.Info("default config written", "path", *configPath)
		return nil
	}

	cfg, watchConfig, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", *configPath, err)
	}
	if !watchConfig {
		logger.Info("config file not found, using defaults", "path", *configPath)
	}

	dbPath := cfg.Storage.DBPath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if *resetDB {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("delete database: %w", err)
			}
		}
		logger.Info("database deleted", "path", dbPath)
		return nil
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var m *metrics.Metrics
	var reg *prometheus.Registry
	if cfg.Metrics.ListenAddress != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
	}

	d, err := newDaemon(cfg, store, m, logger)
	if err != nil {
		return err
	}

	var wakeCh <-chan struct{}
	if !*noDBus {
		svc := dbussvc.NewService(store)
		conn, err := svc.Export()
		if err != nil {
			logger.Warn("D-Bus service unavailable", "err", err)
		} else {
			defer conn.Close()
			logger.Info("D-Bus service registered", "name", "org.sysfs.Telemetry")
		}

		sleepMon, err := collector.NewSleepMonitor(logger)
		if err != nil {
			logger.Warn("sleep monitor unavailable", "err", err)
		} else {
			wakeCh = sleepMon.Wake()
			defer sleepMon.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	reloadCh := make(chan *config.Config, 1)
	if watchConfig {
		w, err := config.NewWatcher(*configPath, config.DefaultWatchDebounce, logger)
		if err != nil {
			logger.Warn("config watcher unavailable", "err", err)
		} else {
			g.Go(func() error {
				return w.Run(gctx, func(cfg *config.Config) {
					// Keep only the newest pending config.
					select {
					case <-reloadCh:
					default:
					}
					reloadCh <- cfg
				})
			})
		}
	}

	if m != nil {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.ListenAddress, m)
		})
		logger.Info("serving metrics", "address", cfg.Metrics.ListenAddress)
	}

	g.Go(func() error {
		return d.run(gctx, wakeCh, reloadCh)
	})

	logger.Info("sysfs-telemetryd started")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// loadConfig reads path. A missing file yields the defaults and false.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.NormalizeAndValidate(config.DefaultConfig())
		return cfg, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// writeDefaultConfig writes the defaults to path. An existing file is left
// alone.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := config.Save(path, config.DefaultConfig()); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
