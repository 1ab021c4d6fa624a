package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"remindbot/internal/timefmt"
	"remindbot/shared/timers"
)

// Command is one of the commands the bot understands.
type Command int

const (
	CmdStart Command = iota + 1
	CmdHelp
	CmdRemindMe
	CmdReminders
	CmdUndelivered
	CmdTimer
)

var commandNames = map[string]Command{
	"start":        CmdStart,
	"help":         CmdHelp,
	"remindme":     CmdRemindMe,
	"reminder":     CmdRemindMe,
	"remind":       CmdRemindMe,
	"set_reminder": CmdRemindMe,
	"reminders":    CmdReminders,
	"myreminders":  CmdReminders,
	"undelivered":  CmdUndelivered,
	"timer":        CmdTimer,
}

func parseCommand(name string) (Command, bool) {
	cmd, ok := commandNames[strings.ToLower(name)]
	return cmd, ok
}

type commandHandler func(ctx context.Context, msg *tgbotapi.Message, args string)

func (b *Bot) commandHandlers() map[Command]commandHandler {
	return map[Command]commandHandler{
		CmdStart:       b.handleHelp,
		CmdHelp:        b.handleHelp,
		CmdRemindMe:    b.handleRemindMe,
		CmdReminders:   b.handleReminders,
		CmdUndelivered: b.handleUndelivered,
		CmdTimer:       b.handleTimer,
	}
}

const undeliveredLimit = 10

func (b *Bot) handleHelp(ctx context.Context, msg *tgbotapi.Message, _ string) {
	b.reply(ctx, msg, helpText)
}

func (b *Bot) handleRemindMe(ctx context.Context, msg *tgbotapi.Message, args string) {
	due, text, err := timefmt.ParseDue(b.now().UTC(), args)
	if err != nil {
		b.reply(ctx, msg, escape(capitalize(err.Error())+". Usage: /remindme <when> <message>"))
		return
	}
	if text == "" {
		text = msgDefaultReminder
	}

	r, err := b.deps.Reminders.Create(ctx, msg.From.ID, msg.Chat.ID, text, due)
	if err != nil {
		b.internalError(ctx, msg, err, "create reminder")
		return
	}

	zerolog.Ctx(ctx).Info().
		Int64("reminder_id", r.ID).
		Int64("user_id", msg.From.ID).
		Time("due_at", r.DueAt).
		Msg("Reminder scheduled")
	b.reply(ctx, msg, formatReminderCreated(msg.From, r))
}

func (b *Bot) handleReminders(ctx context.Context, msg *tgbotapi.Message, _ string) {
	list, err := b.deps.Reminders.List(ctx, msg.From.ID)
	if err != nil {
		b.internalError(ctx, msg, err, "list reminders")
		return
	}
	if len(list) == 0 {
		b.reply(ctx, msg, fmt.Sprintf("%s: You have no reminders set.", escape(displayName(msg.From))))
		return
	}

	b.renderReminderPage(ctx, reminderPageParams{
		ChatID:  msg.Chat.ID,
		ReplyTo: msg.MessageID,
		OwnerID: msg.From.ID,
		Title:   fmt.Sprintf("%s's Reminders", displayName(msg.From)),
		Page:    0,
	}, list)
}

func (b *Bot) handleUndelivered(ctx context.Context, msg *tgbotapi.Message, _ string) {
	if b.deps.DeadLetters == nil {
		b.reply(ctx, msg, "Undelivered reminders are not recorded.")
		return
	}
	list, err := b.deps.DeadLetters.ListDeadLetters(ctx, msg.From.ID, undeliveredLimit)
	if err != nil {
		b.internalError(ctx, msg, err, "list undelivered reminders")
		return
	}
	if len(list) == 0 {
		b.reply(ctx, msg, "All your reminders were delivered.")
		return
	}
	b.reply(ctx, msg, formatDeadLetters(list))
}

func (b *Bot) handleTimer(ctx context.Context, msg *tgbotapi.Message, args string) {
	sub, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(sub) {
	case "start":
		b.handleTimerStart(ctx, msg, rest)
	case "stop":
		b.handleTimerStop(ctx, msg, rest)
	case "list":
		b.handleTimerList(ctx, msg, rest)
	case "export":
		b.handleTimerExport(ctx, msg)
	default:
		b.reply(ctx, msg, msgInvalidTimerSubcommand)
	}
}

func (b *Bot) handleTimerStart(ctx context.Context, msg *tgbotapi.Message, name string) {
	timer, err := b.deps.Timers.Start(ctx, msg.From.ID, name)
	switch {
	case err == nil:
		b.reply(ctx, msg, formatTimerStarted(timer.Name))
	case errors.Is(err, timers.ErrInvalidName):
		b.reply(ctx, msg, msgMissingTimerName)
	case errors.Is(err, timers.ErrConflict):
		b.reply(ctx, msg, formatTimerConflict(strings.TrimSpace(name)))
	default:
		b.internalError(ctx, msg, err, "start timer")
	}
}

func (b *Bot) handleTimerStop(ctx context.Context, msg *tgbotapi.Message, name string) {
	timer, elapsed, err := b.deps.Timers.Stop(ctx, msg.From.ID, name)
	switch {
	case err == nil:
		b.reply(ctx, msg, formatTimerStopped(timer.Name, elapsed))
	case errors.Is(err, timers.ErrInvalidName):
		b.reply(ctx, msg, msgMissingTimerName)
	case errors.Is(err, timers.ErrNotFound):
		b.reply(ctx, msg, formatTimerNotFound(strings.TrimSpace(name)))
	default:
		b.internalError(ctx, msg, err, "stop timer")
	}
}

// handleTimerList lists running timers, or all timers with "all". Replying to
// another user's message lists theirs.
func (b *Bot) handleTimerList(ctx context.Context, msg *tgbotapi.Message, args string) {
	owner := msg.From
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && !msg.ReplyToMessage.From.IsBot {
		owner = msg.ReplyToMessage.From
	}

	filter := timers.Running
	if strings.EqualFold(args, "all") {
		filter = timers.All
	}

	list, err := b.deps.Timers.List(ctx, owner.ID, filter)
	if err != nil {
		b.internalError(ctx, msg, err, "list timers")
		return
	}
	if len(list) == 0 {
		b.reply(ctx, msg, msgNoTimers)
		return
	}

	title := "Your timers:"
	if owner.ID != msg.From.ID {
		title = fmt.Sprintf("%s's timers:", displayName(owner))
	}
	b.reply(ctx, msg, formatTimerList(title, list, b.now().UTC()))
}

func (b *Bot) handleTimerExport(ctx context.Context, msg *tgbotapi.Message) {
	var buf bytes.Buffer
	n, err := b.deps.Timers.Export(ctx, msg.From.ID, &buf)
	if err != nil {
		b.internalError(ctx, msg, err, "export timers")
		return
	}
	if n == 0 {
		b.reply(ctx, msg, msgNoTimers)
		return
	}

	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  timers.ExportFilename(msg.From.ID, b.now()),
		Bytes: buf.Bytes(),
	})
	doc.Caption = fmt.Sprintf("%d timer(s)", n)
	doc.ReplyToMessageID = msg.MessageID
	b.send(ctx, doc)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
