package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newTestWatcher(t *testing.T, onChange func(old, new *Config)) (*Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, minimalYAML)

	// A long interval keeps the poll goroutine quiet; tests drive Reload.
	w, err := NewWatcher(path, onChange, WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path
}

func TestWatcherLoadsInitialConfig(t *testing.T) {
	t.Parallel()

	w, _ := newTestWatcher(t, nil)
	if got := w.Current().Twitch.Channel; got != "maddie" {
		t.Fatalf("channel = %q", got)
	}
}

func TestWatcherRefusesMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestReloadAppliesChangedConfig(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var changes int
	w, path := newTestWatcher(t, func(old, new *Config) {
		mu.Lock()
		defer mu.Unlock()
		changes++
		if old.Server.LogLevel == new.Server.LogLevel {
			t.Error("callback got identical log levels")
		}
	})

	writeConfigFile(t, path, `
server:
  log_level: debug
twitch:
  channel: maddie
  bot_nick: maddieply
  broadcaster_id: "123"
  client_id: cid
`)
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := w.Current().Server.LogLevel; got != LogDebug {
		t.Fatalf("log level = %q", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if changes != 1 {
		t.Fatalf("changes = %d; want 1", changes)
	}
}

func TestReloadKeepsOldConfigOnBadEdit(t *testing.T) {
	t.Parallel()

	w, path := newTestWatcher(t, nil)
	writeConfigFile(t, path, "twitch:\n  channel: [broken")

	if err := w.Reload(); err == nil {
		t.Fatal("invalid config accepted")
	}
	if got := w.Current().Twitch.Channel; got != "maddie" {
		t.Fatalf("channel after bad edit = %q; want the previous config", got)
	}
}

func TestReloadIdenticalContentIsNoOp(t *testing.T) {
	t.Parallel()

	called := false
	w, path := newTestWatcher(t, func(_, _ *Config) { called = true })
	writeConfigFile(t, path, minimalYAML)

	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if called {
		t.Fatal("callback fired for identical content")
	}
}
