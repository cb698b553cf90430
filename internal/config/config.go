package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	minCollectionIntervalSeconds = 1
	maxCollectionIntervalSeconds = 3600
	minThermalZone               = -1 // all zones
	maxThermalZone               = 4095
	minRetentionDays             = 1
	maxRetentionDays             = 3650
	minCleanupIntervalHours      = 1
	maxCleanupIntervalHours      = 720
)

type Config struct {
	Paths      PathsConfig      `toml:"paths"`
	Storage    StorageConfig    `toml:"storage"`
	Collection CollectionConfig `toml:"collection"`
	Cleanup    CleanupConfig    `toml:"cleanup"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// PathsConfig locates the pseudo-filesystems. Containers usually bind-mount
// the host's trees somewhere else.
type PathsConfig struct {
	SysfsRoot  string `toml:"sysfs_root"`
	ProcfsRoot string `toml:"procfs_root"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type CollectionConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	ThermalZone     int `toml:"thermal_zone"` // -1 = all zones
}

type CleanupConfig struct {
	RetentionDays int `toml:"retention_days"`
	IntervalHours int `toml:"interval_hours"`
}

type MetricsConfig struct {
	ListenAddress string `toml:"listen_address"` // empty disables the endpoint
}

func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			SysfsRoot:  "/sys",
			ProcfsRoot: "/proc",
		},
		Storage: StorageConfig{
			DBPath: "/var/lib/sysfs-telemetry/data.db",
		},
		Collection: CollectionConfig{
			IntervalSeconds: 5,
			ThermalZone:     -1,
		},
		Cleanup: CleanupConfig{
			RetentionDays: 30,
			IntervalHours: 24,
		},
		Metrics: MetricsConfig{
			ListenAddress: "127.0.0.1:9464",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Paths.SysfsRoot, err = sanitizePath("paths.sysfs_root", sanitized.Paths.SysfsRoot)
	if err != nil {
		return nil, err
	}
	sanitized.Paths.ProcfsRoot, err = sanitizePath("paths.procfs_root", sanitized.Paths.ProcfsRoot)
	if err != nil {
		return nil, err
	}
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	if err := validateRange("collection.interval_seconds", sanitized.Collection.IntervalSeconds, minCollectionIntervalSeconds, maxCollectionIntervalSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("collection.thermal_zone", sanitized.Collection.ThermalZone, minThermalZone, maxThermalZone); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.retention_days", sanitized.Cleanup.RetentionDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.interval_hours", sanitized.Cleanup.IntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours); err != nil {
		return nil, err
	}

	sanitized.Metrics.ListenAddress = strings.TrimSpace(sanitized.Metrics.ListenAddress)
	if addr := sanitized.Metrics.ListenAddress; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("metrics.listen_address must be host:port, got %q", addr)
		}
	}

	return &sanitized, nil
}

// Save validates cfg and writes it to path as TOML. The file is replaced
// atomically, so a watcher never sees a partial config.
func Save(path string, cfg *Config) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config path must not be empty")
	}

	valid, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	if err := toml.NewEncoder(&buf).Encode(valid); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes(), 0o644)
}

const fileHeader = "# sysfs-telemetryd configuration. Changes are applied without a restart,\n" +
	"# except storage.db_path and metrics.listen_address.\n\n"

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	if err := f.Chmod(perm); err != nil {
		return fmt.Errorf("chmod %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.Name(), err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, lo, hi int) error {
	if value < lo || value > hi {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, lo, hi, value)
	}

	return nil
}
