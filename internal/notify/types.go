package notify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notify disabled")
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify stopped")
)

// Notification is one outbound owner-facing message. The processor
// publishes these on the event bus; delivery is decoupled from scheduling
// correctness and is strictly best-effort.
type Notification struct {
	OwnerID string         `json:"owner_id"`
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Sink delivers a notification to some backend (Telegram, email, ...).
// Implementations are thin glue; retry, rate limiting, and dedup are the
// Service's job.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// Config controls the async delivery pipeline.
type Config struct {
	Enabled    bool
	Workers    int
	QueueSize  int
	RatePerSec int

	RetryMax  int
	RetryBase time.Duration

	// DedupWindow suppresses identical notifications (same owner, type,
	// message) within the window. 0 disables dedup.
	DedupWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 512
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	return c
}
