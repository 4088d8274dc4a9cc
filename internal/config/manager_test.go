package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validJSON = `{
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
  "storage": {"path": "cadence.db", "busy_timeout": "5s"},
  "processor": {"batch_size": 3, "retry_max": 3, "retry_delay": "30s"},
  "provider": {"chunk_size": 5, "rate_per_minute": 10},
  "triggers": {"timezone": "Asia/Jakarta", "process_spec": "@every 5m"}
}`

const validYAML = `logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: cadence.db
processor:
  window_lead: 5m
  window_grace: 10m
triggers:
  timezone: UTC
`

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json", validJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Triggers.Timezone != "Asia/Jakarta" {
		t.Fatalf("timezone = %q", cfg.Triggers.Timezone)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.Processor.WindowLead != "5m" {
		t.Fatalf("window_lead = %q", cfg.Processor.WindowLead)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json",
		`{"storage": {"path": "x.db"}, "no_such_section": {}}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.json",
		`{"storage": {"path": "x.db"}}{"extra": true}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }, true},
		{"bad duration", func(c *Config) { c.Processor.RunTimeout = "soon" }, true},
		{"negative duration", func(c *Config) { c.Processor.StaleCutoff = "-5m" }, true},
		{"failure rate out of range", func(c *Config) { c.Monitor.FailureRateLimit = 1.5 }, true},
		{"target below min", func(c *Config) {
			c.Processor.MinPending = 5
			c.Processor.TargetPending = 2
		}, true},
		{"telegram without token", func(c *Config) {
			c.Notifications = &NotifyConfig{Enabled: true, Telegram: &TelegramConfig{}}
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Storage: StorageConfig{Path: "cadence.db"}}
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", validJSON)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	time.Sleep(100 * time.Millisecond) // let the watcher attach
	updated := `{"storage": {"path": "other.db"}}`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Storage.Path != "other.db" {
			t.Fatalf("reloaded path = %q", cfg.Storage.Path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload never published")
	}
}

func TestWatchIgnoresInvalidEdit(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", validJSON)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	before := m.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"storage": {`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond) // past the debounce window
	if m.Get() != before {
		t.Fatal("broken edit replaced the committed config")
	}
}
