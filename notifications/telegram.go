package notifications

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender delivers messages over a Telegram bot. The user id doubles
// as the chat id.
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramSender(token string) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("tgbotapi.NewBotAPI() error: %w", err)
	}

	return &TelegramSender{bot: bot}, nil
}

func (s *TelegramSender) Send(ctx context.Context, user int64, text string) error {
	_, err := s.bot.Send(tgbotapi.NewMessage(user, text))
	if err != nil {
		return fmt.Errorf("telegram send to %d: %w", user, err)
	}

	return nil
}
