package service

import (
	"context"

	"github.com/go-telegram/bot"
)

// TelegramSender is the minimal surface the forwarder needs; the real
// implementation wraps go-telegram/bot.
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type TelegramNotifier struct {
	bot *bot.Bot
}

func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: b}, nil
}

func (n *TelegramNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	// Plain text: message bodies are user-controlled and markdown
	// escaping failures would drop the notification entirely.
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}
