package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"cadence/internal/exec"
)

// TelegramConfig configures the send-only Telegram sink. The bot never
// polls for updates; it exists purely to push notifications.
type TelegramConfig struct {
	Token string

	// ChatIDs maps owner IDs to Telegram chat IDs. Owners without a
	// mapping fall back to DefaultChatID when it is non-zero.
	ChatIDs       map[string]int64
	DefaultChatID int64

	// Offline builds the bot without hitting the Telegram API. Used in
	// tests.
	Offline bool
}

// TelegramSink delivers notifications as plain Telegram messages.
type TelegramSink struct {
	cfg TelegramConfig
	bot *tele.Bot
}

var ErrNoChat = errors.New("no telegram chat for owner")

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSink{cfg: cfg, bot: b}, nil
}

func (t *TelegramSink) Send(_ context.Context, n Notification) error {
	chat, ok := t.cfg.ChatIDs[n.OwnerID]
	if !ok {
		chat = t.cfg.DefaultChatID
	}
	if chat == 0 {
		// Misconfiguration, not transient. Don't burn retries on it.
		return exec.NoRetry(fmt.Errorf("%w: %s", ErrNoChat, n.OwnerID))
	}
	_, err := t.bot.Send(tele.ChatID(chat), n.Message)
	return err
}
