package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeTempConfig(t, "[collection]\ninterval_seconds = 5\n")

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(cfg *Config) { reloaded <- cfg })
	}()

	// An invalid write is skipped.
	if err := os.WriteFile(path, []byte("[collection]\ninterval_seconds = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[collection]\ninterval_seconds = 9\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Collection.IntervalSeconds != 9 {
			t.Fatalf("reloaded IntervalSeconds = %d, want 9", cfg.Collection.IntervalSeconds)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	if _, err := NewWatcher("/nonexistent-dir-for-test/config.toml", 0, nil); err == nil {
		t.Fatal("NewWatcher() error = nil, want error for missing directory")
	}
}
