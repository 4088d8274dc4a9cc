package notify

import (
	"context"

	"cadence/pkg/logx"
)

// LogSink writes notifications to the log. It is the fallback when no
// Telegram token is configured, and doubles as a test sink.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	return &LogSink{log: log.With(logx.String("sink", "log"))}
}

func (l *LogSink) Send(_ context.Context, n Notification) error {
	l.log.Info("notification",
		logx.String("owner", n.OwnerID),
		logx.String("type", n.Type),
		logx.String("message", n.Message))
	return nil
}
