package audit

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
)

// TelegramNotifier pushes audit lines to an ops chat. Built only when both
// the bot token and chat id are configured; the trail works without it.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 {
		return nil, nil
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: b, chatID: chatID}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	return err
}
