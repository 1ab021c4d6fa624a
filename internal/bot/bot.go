package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Deps are the services the bot routes commands to.
type Deps struct {
	Reminders   ReminderService
	Timers      TimerService
	DeadLetters DeadLetterReader
}

// Bot routes Telegram commands to the reminder and timer services.
type Bot struct {
	tg            telegramClient
	deps          Deps
	handlers      map[Command]commandHandler
	updateTimeout int
	logger        zerolog.Logger
	now           func() time.Time
}

// NewAPI connects to the Bot API. httpTimeout bounds every API call on top of
// the long polling timeout, so an abandoned send does not linger.
func NewAPI(token string, httpTimeout time.Duration, updateTimeout int) (*tgbotapi.BotAPI, error) {
	client := &http.Client{}
	if httpTimeout > 0 {
		client.Timeout = httpTimeout + time.Duration(updateTimeout)*time.Second
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return api, nil
}

// New creates a bot on an authorised API client.
func New(api *tgbotapi.BotAPI, updateTimeout int, deps Deps, logger zerolog.Logger) (*Bot, error) {
	if api == nil {
		return nil, fmt.Errorf("telegram api is nil")
	}
	return newBot(&realTelegramClient{api: api}, updateTimeout, deps, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, deps Deps, logger zerolog.Logger) (*Bot, error) {
	return newBot(tg, 60, deps, logger)
}

func newBot(tg telegramClient, updateTimeout int, deps Deps, logger zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if deps.Reminders == nil || deps.Timers == nil {
		return nil, fmt.Errorf("reminder and timer services are required")
	}
	if updateTimeout <= 0 {
		updateTimeout = 60
	}

	logger = logger.With().Str("component", "bot").Logger()
	b := &Bot{
		tg:            tg,
		deps:          deps,
		updateTimeout: updateTimeout,
		logger:        logger,
		now:           time.Now,
	}
	b.handlers = b.commandHandlers()
	return b, nil
}

// Start polls updates and handles commands until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.updateTimeout
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Bot authorized")

	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			b.logger.Info().Msg("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			b.handleUpdate(updateCtx, &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil && update.Message.From != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Int64("chat_id", update.Message.Chat.ID).
			Str("text", update.Message.Text).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}
	cmd, ok := parseCommand(msg.Command())
	if !ok {
		return
	}
	handler, ok := b.handlers[cmd]
	if !ok {
		return
	}
	handler(ctx, msg, strings.TrimSpace(msg.CommandArguments()))
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.Message == nil {
		return
	}
	_ = b.answerCallback(cq.ID)

	if strings.HasPrefix(cq.Data, reminderPagePrefix) {
		b.handleReminderPage(ctx, cq)
	}
}

func (b *Bot) answerCallback(id string) error {
	_, err := b.tg.Request(tgbotapi.NewCallback(id, ""))
	return err
}

func (b *Bot) reply(ctx context.Context, msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyToMessageID = msg.MessageID
	out.DisableWebPagePreview = true
	b.send(ctx, out)
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to send message")
	}
}

func (b *Bot) internalError(ctx context.Context, msg *tgbotapi.Message, err error, op string) {
	zerolog.Ctx(ctx).Error().Err(err).Str("op", op).Int64("user_id", msg.From.ID).Msg("Command failed")
	b.reply(ctx, msg, msgInternalError)
}
