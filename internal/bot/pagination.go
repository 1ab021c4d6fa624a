package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"remindbot/internal/models"
)

const (
	remindersPerPage   = 10
	reminderPagePrefix = "rem:"
)

type reminderPageParams struct {
	ChatID    int64
	MessageID int // 0 if new message
	ReplyTo   int
	OwnerID   int64
	Title     string
	Page      int
}

func (b *Bot) renderReminderPage(ctx context.Context, params reminderPageParams, list []models.Reminder) {
	pages := (len(list) + remindersPerPage - 1) / remindersPerPage
	if params.Page >= pages {
		params.Page = pages - 1
	}
	if params.Page < 0 {
		params.Page = 0
	}
	startIdx := params.Page * remindersPerPage
	endIdx := startIdx + remindersPerPage
	if endIdx > len(list) {
		endIdx = len(list)
	}

	var message strings.Builder
	message.WriteString(fmt.Sprintf("<b>%s</b>\n", escape(params.Title)))
	if pages > 1 {
		message.WriteString(fmt.Sprintf("Page %d of %d\n", params.Page+1, pages))
	}
	for _, r := range list[startIdx:endIdx] {
		message.WriteString("\n")
		message.WriteString(formatReminderLine(r))
		message.WriteString("\n")
	}
	text := strings.TrimRight(message.String(), "\n")

	var navButtons []tgbotapi.InlineKeyboardButton
	if params.Page > 0 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", pageCallback(params.OwnerID, params.Page-1)))
	}
	if endIdx < len(list) {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", pageCallback(params.OwnerID, params.Page+1)))
	}

	if params.MessageID != 0 {
		var edit tgbotapi.EditMessageTextConfig
		if len(navButtons) > 0 {
			edit = tgbotapi.NewEditMessageTextAndMarkup(params.ChatID, params.MessageID, text,
				tgbotapi.NewInlineKeyboardMarkup(navButtons))
		} else {
			edit = tgbotapi.NewEditMessageText(params.ChatID, params.MessageID, text)
		}
		edit.ParseMode = tgbotapi.ModeHTML
		b.send(ctx, edit)
		return
	}

	msg := tgbotapi.NewMessage(params.ChatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = params.ReplyTo
	if len(navButtons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(navButtons)
	}
	b.send(ctx, msg)
}

func pageCallback(ownerID int64, page int) string {
	return fmt.Sprintf("%s%d:%d", reminderPagePrefix, ownerID, page)
}

func parsePageCallback(data string) (ownerID int64, page int, ok bool) {
	rest := strings.TrimPrefix(data, reminderPagePrefix)
	ownerStr, pageStr, found := strings.Cut(rest, ":")
	if !found {
		return 0, 0, false
	}
	ownerID, err := strconv.ParseInt(ownerStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	page, err = strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0, 0, false
	}
	return ownerID, page, true
}

func (b *Bot) handleReminderPage(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	ownerID, page, ok := parsePageCallback(cq.Data)
	if !ok {
		zerolog.Ctx(ctx).Warn().Str("data", cq.Data).Msg("Malformed page callback")
		return
	}

	list, err := b.deps.Reminders.List(ctx, ownerID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("owner_id", ownerID).Msg("Failed to list reminders")
		return
	}

	title := "Reminders"
	if cq.From != nil && cq.From.ID == ownerID {
		title = fmt.Sprintf("%s's Reminders", displayName(cq.From))
	}
	if len(list) == 0 {
		edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, "No reminders left.")
		b.send(ctx, edit)
		return
	}

	b.renderReminderPage(ctx, reminderPageParams{
		ChatID:    cq.Message.Chat.ID,
		MessageID: cq.Message.MessageID,
		OwnerID:   ownerID,
		Title:     title,
		Page:      page,
	}, list)
}
