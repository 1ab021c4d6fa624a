package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"remindbot/shared/reminders"
)

// TelegramChannel delivers reminder text to Telegram chats.
type TelegramChannel struct {
	tg     telegramClient
	logger zerolog.Logger
}

// NewTelegramChannel creates a delivery channel on an authorised API client.
func NewTelegramChannel(api *tgbotapi.BotAPI, logger zerolog.Logger) *TelegramChannel {
	return newTelegramChannel(&realTelegramClient{api: api}, logger)
}

func newTelegramChannel(tg telegramClient, logger zerolog.Logger) *TelegramChannel {
	return &TelegramChannel{
		tg:     tg,
		logger: logger.With().Str("component", "telegram_channel").Logger(),
	}
}

// Send posts text to the chat. It returns when the API answers or ctx is done,
// whichever comes first.
func (c *TelegramChannel) Send(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := c.tg.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		return classifyTelegramError(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyTelegramError maps Bot API failures onto the delivery error contract.
func classifyTelegramError(err error) error {
	if err == nil {
		return nil
	}

	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) {
		return err
	}

	desc := strings.ToLower(tgErr.Message)
	switch {
	case tgErr.Code == 403:
		return fmt.Errorf("%s: %w", tgErr.Message, reminders.ErrPermissionDenied)
	case tgErr.Code == 400 && (strings.Contains(desc, "chat not found") ||
		strings.Contains(desc, "have no rights") ||
		strings.Contains(desc, "not enough rights")):
		return fmt.Errorf("%s: %w", tgErr.Message, reminders.ErrPermissionDenied)
	case tgErr.Code == 429:
		return &reminders.DeliveryError{
			Err:        err,
			RetryAfter: time.Duration(tgErr.RetryAfter) * time.Second,
		}
	case tgErr.Code == 400:
		return &reminders.DeliveryError{Err: err, Permanent: true}
	default:
		return err
	}
}
