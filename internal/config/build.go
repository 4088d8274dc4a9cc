package config

import (
	"time"

	"cadence/internal/exec"
	"cadence/internal/monitor"
	"cadence/internal/notify"
	"cadence/internal/processor"
	"cadence/internal/provider"
	"cadence/internal/schedule"
	"cadence/internal/store"
	"cadence/internal/trigger"
	"cadence/pkg/logx"
)

// The Build* methods translate duration strings into the concrete service
// configs. They assume Validate has passed; malformed durations silently
// fall back to defaults rather than failing mid-wire.

func (c *Config) BuildLogging() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

func (c *Config) BuildStorage() store.Config {
	return store.Config{
		Path:        c.Storage.Path,
		BusyTimeout: mustDuration(c.Storage.BusyTimeout, 0),
	}
}

func (c *Config) BuildProcessor() processor.Config {
	p := c.Processor
	return processor.Config{
		Window: schedule.Window{
			Lead:  mustDuration(p.WindowLead, 5*time.Minute),
			Grace: mustDuration(p.WindowGrace, 10*time.Minute),
		},
		BatchSize:  p.BatchSize,
		BatchPause: mustDuration(p.BatchPause, 0),
		Retry: exec.RetryPolicy{
			MaxAttempts:  p.RetryMax,
			InitialDelay: mustDuration(p.RetryDelay, 0),
		},
		RunTimeout:        mustDuration(p.RunTimeout, 0),
		StoreTimeout:      mustDuration(p.StoreTimeout, 0),
		StaleCutoff:       mustDuration(p.StaleCutoff, 0),
		StuckCutoff:       mustDuration(p.StuckCutoff, 0),
		MinPending:        p.MinPending,
		TargetPending:     p.TargetPending,
		BacklogRetryDelay: mustDuration(p.BacklogRetryDelay, 0),
	}
}

func (c *Config) BuildProvider() provider.ChunkerConfig {
	return provider.ChunkerConfig{
		ChunkSize:     c.Provider.ChunkSize,
		RatePerMinute: c.Provider.RatePerMinute,
	}
}

func (c *Config) BuildTrigger() trigger.Config {
	t := c.Triggers
	return trigger.Config{
		Timezone:    t.Timezone,
		ProcessSpec: t.ProcessSpec,
		BacklogSpec: t.BacklogSpec,
		SweepSpec:   t.SweepSpec,
		HealthSpec:  t.HealthSpec,
	}
}

func (c *Config) BuildNotify() notify.Config {
	n := c.Notifications
	if n == nil {
		return notify.Config{Enabled: false}
	}
	return notify.Config{
		Enabled:     n.Enabled,
		Workers:     n.Workers,
		QueueSize:   n.QueueSize,
		RatePerSec:  n.RatePerSec,
		RetryMax:    n.RetryMax,
		RetryBase:   mustDuration(n.RetryBase, 0),
		DedupWindow: mustDuration(n.DedupWindow, 0),
	}
}

func (c *Config) BuildMonitor() monitor.Config {
	return monitor.Config{
		StuckAfter:       mustDuration(c.Monitor.StuckAfter, 0),
		StaleAfter:       mustDuration(c.Monitor.StaleAfter, 0),
		FailureRateLimit: c.Monitor.FailureRateLimit,
	}
}
