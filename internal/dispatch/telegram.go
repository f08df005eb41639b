package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway delivers notifications through a Telegram bot. The
// recipient handle is the chat ID as a decimal string.
type TelegramGateway struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramGateway creates the gateway from a bot token.
func NewTelegramGateway(botToken string) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramGateway{bot: bot}, nil
}

// Channel implements Gateway.
func (g *TelegramGateway) Channel() string { return "telegram" }

// Send implements Gateway. A recipient that is not a valid chat ID, or a
// chat the bot cannot reach (blocked, deleted), is a permanent failure;
// Telegram API flakiness and rate limits are transient.
func (g *TelegramGateway) Send(ctx context.Context, recipient, message string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return &PermanentError{Reason: fmt.Sprintf("invalid chat id %q", recipient)}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, message)
	if _, err := g.bot.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
			return &PermanentError{Reason: apiErr.Message}
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
