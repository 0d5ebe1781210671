package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quietlabs/engram/internal/config"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	writeConfig(t, path, "storage:\n  retention_days: 365\n")

	reloaded := make(chan *config.Config, 4)
	cw := NewConfigWatcher(path, nil, func(cfg *config.Config) {
		reloaded <- cfg
	})
	if err := cw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer cw.Stop()

	writeConfig(t, path, "storage:\n  retention_days: 30\n")

	select {
	case cfg := <-reloaded:
		if cfg.Storage.RetentionDays != 30 {
			t.Errorf("retention = %d, want 30", cfg.Storage.RetentionDays)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestConfigWatcherIgnoresInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	writeConfig(t, path, "storage:\n  retention_days: 365\n")

	reloaded := make(chan *config.Config, 4)
	cw := NewConfigWatcher(path, nil, func(cfg *config.Config) {
		reloaded <- cfg
	})
	if err := cw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer cw.Stop()

	// Invalid settings must not reach the callback.
	writeConfig(t, path, "storage:\n  retention_days: 0\n")

	select {
	case cfg := <-reloaded:
		t.Errorf("unexpected reload with retention %d", cfg.Storage.RetentionDays)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestConfigWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	writeConfig(t, path, "storage:\n  retention_days: 365\n")

	reloaded := make(chan *config.Config, 4)
	cw := NewConfigWatcher(path, nil, func(cfg *config.Config) {
		reloaded <- cfg
	})
	if err := cw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer cw.Stop()

	writeConfig(t, filepath.Join(dir, "unrelated.yaml"), "storage:\n  retention_days: 1\n")

	select {
	case <-reloaded:
		t.Error("unexpected reload for unrelated file")
	case <-time.After(500 * time.Millisecond):
	}
}
