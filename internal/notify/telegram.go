package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramChannel fans an event out to every chat ID a workspace has
// registered, one send_message call each (§4.9).
type TelegramChannel struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramChannel(bot *tgbotapi.BotAPI) *TelegramChannel {
	return &TelegramChannel{bot: bot}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, settings *NotificationSettingsView, rendered Rendered, _ Event) error {
	if !settings.TelegramEnabled || len(settings.TelegramChatIDs) == 0 {
		return nil
	}

	var firstErr error
	for _, chatID := range settings.TelegramChatIDs {
		msg := tgbotapi.NewMessage(chatID, rendered.Subject+"\n\n"+rendered.Text)
		if _, err := c.bot.Send(msg); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("telegram chat %d: %w", chatID, err)
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return firstErr
}
