// Package alert sends operator notifications. Today that is only the
// chat-summary reconciliation path.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// TelegramNotifier posts alerts into a single operator chat.
type TelegramNotifier struct {
	BotAPI *tgbotapi.BotAPI
	ChatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = false
	return &TelegramNotifier{BotAPI: bot, ChatID: chatID}, nil
}

// Notify ignores ctx beyond an early cancellation check: the bot client has
// its own HTTP timeouts.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.ChatID, text)
	if _, err := n.BotAPI.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// New returns a Telegram notifier when both token and chat are configured and
// Nop otherwise. A bot that fails to authorize degrades to Nop with a warning.
func New(token string, chatID int64, logger *slog.Logger) Notifier {
	if token == "" || chatID == 0 {
		return Nop{}
	}
	n, err := NewTelegramNotifier(token, chatID)
	if err != nil {
		logger.Warn("alert - New - telegram unavailable, alerts disabled", "err", err)
		return Nop{}
	}
	logger.Info("alert - New - telegram alerts enabled", "bot", n.BotAPI.Self.UserName)
	return n
}
