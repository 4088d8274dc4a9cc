package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full daemon configuration. All durations are Go duration
// strings (e.g. "500ms", "10s", "5m") so YAML and JSON configs read the
// same way.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Processor ProcessorConfig `json:"processor"`
	Provider  ProviderConfig  `json:"provider"`
	Triggers  TriggerConfig   `json:"triggers"`

	// Notifications is optional; when omitted the daemon logs
	// notifications instead of delivering them.
	Notifications *NotifyConfig `json:"notifications,omitempty"`

	Monitor MonitorConfig `json:"monitor,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the SQLite schedule store.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ProcessorConfig tunes the processing engine.
//
// Defaults (when fields are omitted/zero):
//   - window_lead: "5m", window_grace: "10m"
//   - batch_size: 3, batch_pause: "2s"
//   - retry_max: 3, retry_delay: "30s"
//   - run_timeout: "10m", store_timeout: "15s"
//   - stale_cutoff: "40m", stuck_cutoff: "20m"
//   - min_pending: 2, target_pending: 5, backlog_retry_delay: "10m"
type ProcessorConfig struct {
	WindowLead  string `json:"window_lead,omitempty"`
	WindowGrace string `json:"window_grace,omitempty"`

	BatchSize  int    `json:"batch_size,omitempty"`
	BatchPause string `json:"batch_pause,omitempty"`

	RetryMax   int    `json:"retry_max,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`

	RunTimeout   string `json:"run_timeout,omitempty"`
	StoreTimeout string `json:"store_timeout,omitempty"`

	StaleCutoff string `json:"stale_cutoff,omitempty"`
	StuckCutoff string `json:"stuck_cutoff,omitempty"`

	MinPending        int    `json:"min_pending,omitempty"`
	TargetPending     int    `json:"target_pending,omitempty"`
	BacklogRetryDelay string `json:"backlog_retry_delay,omitempty"`
}

// ProviderConfig bounds how the engine talks to the content backend.
type ProviderConfig struct {
	ChunkSize     int `json:"chunk_size,omitempty"`
	RatePerMinute int `json:"rate_per_minute,omitempty"`
}

// TriggerConfig holds the cron specs driving each engine pass.
type TriggerConfig struct {
	Timezone    string `json:"timezone,omitempty"`
	ProcessSpec string `json:"process_spec,omitempty"`
	BacklogSpec string `json:"backlog_spec,omitempty"`
	SweepSpec   string `json:"sweep_spec,omitempty"`
	HealthSpec  string `json:"health_spec,omitempty"`
}

// NotifyConfig controls the async notification pipeline.
type NotifyConfig struct {
	Enabled     bool   `json:"enabled"`
	Workers     int    `json:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty"`
	RetryBase   string `json:"retry_base,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

// TelegramConfig configures the send-only Telegram sink. ChatIDs maps
// schedule owner IDs to Telegram chat IDs.
type TelegramConfig struct {
	Token         string           `json:"token"`
	ChatIDs       map[string]int64 `json:"chat_ids,omitempty"`
	DefaultChatID int64            `json:"default_chat_id,omitempty"`
}

// MonitorConfig tunes stuck/stale/failure-rate health thresholds.
type MonitorConfig struct {
	StuckAfter       string  `json:"stuck_after,omitempty"`
	StaleAfter       string  `json:"stale_after,omitempty"`
	FailureRateLimit float64 `json:"failure_rate_limit,omitempty"`
}

// Validate checks everything that can be checked without wiring services.
// Cron specs and the trigger timezone are validated by the trigger service
// through the manager's validator hook.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	for _, f := range []struct {
		path string
		raw  string
	}{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"processor.window_lead", c.Processor.WindowLead},
		{"processor.window_grace", c.Processor.WindowGrace},
		{"processor.batch_pause", c.Processor.BatchPause},
		{"processor.retry_delay", c.Processor.RetryDelay},
		{"processor.run_timeout", c.Processor.RunTimeout},
		{"processor.store_timeout", c.Processor.StoreTimeout},
		{"processor.stale_cutoff", c.Processor.StaleCutoff},
		{"processor.stuck_cutoff", c.Processor.StuckCutoff},
		{"processor.backlog_retry_delay", c.Processor.BacklogRetryDelay},
		{"monitor.stuck_after", c.Monitor.StuckAfter},
		{"monitor.stale_after", c.Monitor.StaleAfter},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if n := c.Notifications; n != nil && n.Enabled {
		for _, f := range []struct {
			path string
			raw  string
		}{
			{"notifications.retry_base", n.RetryBase},
			{"notifications.dedup_window", n.DedupWindow},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
		if n.Telegram != nil && strings.TrimSpace(n.Telegram.Token) == "" {
			return fmt.Errorf("notifications.telegram.token is required when the telegram sink is configured")
		}
	}
	if r := c.Monitor.FailureRateLimit; r < 0 || r > 1 {
		return fmt.Errorf("monitor.failure_rate_limit must be within [0,1], got %v", r)
	}
	if c.Processor.TargetPending != 0 && c.Processor.TargetPending < c.Processor.MinPending {
		return fmt.Errorf("processor.target_pending must be >= processor.min_pending")
	}
	return nil
}

// mustDuration is for call sites that already passed Validate.
func mustDuration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}
