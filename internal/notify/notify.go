// Package notify implements the notification sink consumed by the services.
package notify

import (
	"context"
	stderrors "errors"

	"github.com/mroshb/campus_match/internal/config"
	"github.com/mroshb/campus_match/pkg/logger"
)

// Notifier matches services.Notifier.
type Notifier interface {
	Notify(ctx context.Context, userID uint, kind string, payload map[string]interface{}) error
}

// LogNotifier writes notifications to the structured log. It is the sink
// used when no bot token is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, userID uint, kind string, payload map[string]interface{}) error {
	logger.Info("Notification", "user_id", userID, "kind", kind, "payload", payload)
	return nil
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID uint, kind string, payload map[string]interface{}) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Render turns a notification into the text a user reads.
func Render(kind string, payload map[string]interface{}) string {
	switch kind {
	case "match_created":
		return "💞 It's a match! You can start chatting now."
	case "blind_date_paired":
		return "🎭 Your blind date is ready. Say hi before it expires!"
	case "pairing_timeout":
		return "⏳ Nobody was available this time. Try again in a little while."
	case "session_ended":
		return "👋 Your chat partner ended the conversation."
	case "session_expired":
		return "⌛ Your blind date has expired."
	}
	return "You have a new notification."
}

// FromConfig builds the notification sink: the log, plus Telegram when a
// bot token is configured. stop drains pending deliveries.
func FromConfig(cfg *config.Config, resolver ChatResolver) (n Notifier, stop func(), err error) {
	if cfg.BotToken == "" {
		return LogNotifier{}, func() {}, nil
	}

	tg, err := NewTelegramNotifier(cfg, resolver)
	if err != nil {
		return nil, nil, err
	}
	return Multi{LogNotifier{}, tg}, tg.Stop, nil
}
