package bot

import (
	"context"
	"io"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remindbot/internal/models"
	"remindbot/shared/timers"
)

type ReminderService interface {
	Create(ctx context.Context, ownerID, targetID int64, message string, dueAt time.Time) (*models.Reminder, error)
	List(ctx context.Context, ownerID int64) ([]models.Reminder, error)
}

type TimerService interface {
	Start(ctx context.Context, ownerID int64, name string) (*models.Timer, error)
	Stop(ctx context.Context, ownerID int64, name string) (*models.Timer, time.Duration, error)
	List(ctx context.Context, ownerID int64, filter timers.Filter) ([]models.Timer, error)
	Export(ctx context.Context, ownerID int64, w io.Writer) (int, error)
}

type DeadLetterReader interface {
	ListDeadLetters(ctx context.Context, ownerID int64, limit int) ([]models.DeadLetter, error)
}

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}
