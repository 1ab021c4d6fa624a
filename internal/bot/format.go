package bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remindbot/internal/models"
	"remindbot/internal/timefmt"
)

const (
	helpText = "<b>Reminders</b>\n" +
		"/remindme &lt;when&gt; &lt;message&gt; - remind you in this chat. " +
		"<i>when</i> is a duration like <code>10m</code>, <code>1h30m</code> or a UTC time <code>2025-01-02 15:04</code>\n" +
		"/reminders - list your pending reminders\n" +
		"/undelivered - reminders that could not be delivered\n\n" +
		"<b>Timers</b>\n" +
		"/timer start &lt;name&gt; - start a named timer\n" +
		"/timer stop &lt;name&gt; - stop it and show the elapsed time\n" +
		"/timer list [all] - your running timers; reply to someone to see theirs\n" +
		"/timer export - download all your timers as a spreadsheet"

	msgInvalidTimerSubcommand = "Invalid subcommand. Use /timer start, /timer stop, or /timer list."
	msgInternalError          = "Something went wrong, please try again later."
	msgNoTimers               = "No timers found."
	msgMissingTimerName       = "Please give the timer a name, e.g. /timer start work"
	msgDefaultReminder        = "…"
)

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

func mention(userID int64, name string) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, escape(name))
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return "someone"
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return fmt.Sprintf("user %d", u.ID)
}

// FormatReminder renders the text delivered for a due reminder.
func FormatReminder(r models.Reminder) string {
	return fmt.Sprintf("%s: %s", mention(r.OwnerID, "⏰ Reminder"), escape(r.Message))
}

func formatReminderCreated(owner *tgbotapi.User, r *models.Reminder) string {
	return fmt.Sprintf("%s: I will remind you at %s with the message: %s",
		mention(owner.ID, displayName(owner)), timefmt.FormatInstant(r.DueAt), escape(r.Message))
}

func formatReminderLine(r models.Reminder) string {
	return fmt.Sprintf("<b>Reminder at %s</b>\nMessage: %s", timefmt.FormatInstant(r.DueAt), escape(r.Message))
}

func formatTimerStarted(name string) string {
	return fmt.Sprintf("Timer '%s' started.", escape(name))
}

func formatTimerConflict(name string) string {
	return fmt.Sprintf("Timer '%s' is already running.", escape(name))
}

func formatTimerStopped(name string, elapsed time.Duration) string {
	return fmt.Sprintf("Timer '%s' stopped. Took %s", escape(name), timefmt.FormatDuration(elapsed))
}

func formatTimerNotFound(name string) string {
	return fmt.Sprintf("No timer found with the name '%s'.", escape(name))
}

func formatTimerList(title string, list []models.Timer, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(escape(title))
	sb.WriteString("\n")
	for _, t := range list {
		sb.WriteString(fmt.Sprintf("%s: %s", escape(t.Name), timefmt.FormatInstant(t.StartedAt)))
		if t.Running() {
			sb.WriteString(fmt.Sprintf(" (running %s)", timefmt.FormatDuration(t.Elapsed(now))))
		} else {
			sb.WriteString(fmt.Sprintf(" (stopped, took %s)", timefmt.FormatDuration(t.Elapsed(now))))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDeadLetters(list []models.DeadLetter) string {
	var sb strings.Builder
	sb.WriteString("Undelivered reminders:\n")
	for _, dl := range list {
		sb.WriteString(fmt.Sprintf("\n<b>%s</b> (%s, %d attempt(s))\nMessage: %s\n",
			timefmt.FormatInstant(dl.DueAt), reasonText(dl.Reason), dl.Attempts, escape(dl.Message)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func reasonText(reason models.DeadLetterReason) string {
	switch reason {
	case models.ReasonPermissionDenied:
		return "chat refused the message"
	case models.ReasonRejected:
		return "rejected by Telegram"
	case models.ReasonMaxRetries:
		return "delivery kept failing"
	case models.ReasonCanceled:
		return "interrupted by shutdown"
	default:
		return string(reason)
	}
}
