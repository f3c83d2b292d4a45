package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("llm defaults = %+v", cfg.LLM)
	}
	if cfg.Runtime.MaxIterations != 10 || cfg.Runtime.HistoryLimit != 50 {
		t.Errorf("runtime defaults = %+v", cfg.Runtime)
	}
	if cfg.Memory.Backend != "inmemory" || cfg.Memory.RecallEnabled {
		t.Errorf("memory defaults = %+v", cfg.Memory)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("telemetry defaults = %+v", cfg.Telemetry)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	data := `
log:
  level: debug
  format: json
llm:
  provider: mock
  model: test-model
runtime:
  max_iterations: 3
memory:
  backend: sqlite
  sqlite_path: /tmp/conv.db
telemetry:
  exporter: otlp
  otlp_endpoint: localhost:4317
  otlp_insecure: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.LLM.Provider != "mock" || cfg.LLM.Model != "test-model" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Runtime.MaxIterations != 3 {
		t.Errorf("runtime = %+v", cfg.Runtime)
	}
	if cfg.Memory.Backend != "sqlite" || cfg.Memory.SQLitePath != "/tmp/conv.db" {
		t.Errorf("memory = %+v", cfg.Memory)
	}
	if cfg.Telemetry.Exporter != "otlp" || !cfg.Telemetry.OTLPInsecure {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	// Untouched sections keep defaults.
	if cfg.Runtime.HistoryLimit != 50 {
		t.Errorf("history limit = %d, want default 50", cfg.Runtime.HistoryLimit)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  provider: ollama\n  model: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WEFT_LLM_MODEL", "from-env")
	t.Setenv("WEFT_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("model = %q, want env override", cfg.LLM.Model)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("level = %q, want env override", cfg.Log.Level)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("want error for missing config file")
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher, err := NewWatcher([]string{path}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if watcher.Config().Log.Level != "info" {
		t.Fatalf("initial level = %q", watcher.Config().Log.Level)
	}

	changed := make(chan *Config, 1)
	watcher.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	watcher.Start(t.Context())
	defer watcher.Stop()

	// mtime granularity can be one second on some filesystems
	time.Sleep(1100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Log.Level != "debug" {
			t.Errorf("reloaded level = %q", cfg.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never observed the change")
	}
}

func TestReloadableConfigSwap(t *testing.T) {
	initial, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	holder := NewReloadableConfig(initial)
	if holder.LLM().Provider != "ollama" {
		t.Errorf("provider = %q", holder.LLM().Provider)
	}

	updated := *initial
	updated.LLM.Provider = "mock"
	holder.Update(&updated)
	if holder.LLM().Provider != "mock" {
		t.Errorf("provider after update = %q", holder.LLM().Provider)
	}
}
