package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/eyev0/wakeupbot/internal/domain"
	"github.com/eyev0/wakeupbot/internal/tracker"
)

// --- Generic helpers ---

func (r *Router) sendHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) sendWithMarkup(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) editWithMarkup(chatID int64, msgID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, markup)
	edit.ParseMode = tgbotapi.ModeHTML
	// "message is not modified" is expected when nothing changed.
	_, _ = r.bot.Request(edit)
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}

func (r *Router) user(ctx context.Context, chatID int64) (*domain.User, bool) {
	u, err := r.tracker.EnsureUser(ctx, chatID)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.sendHTML(chatID, internalErrorText)
		return nil, false
	}
	return u, true
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64, from *tgbotapi.User) {
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	name := "friend"
	if from != nil {
		name = strings.TrimSpace(from.FirstName + " " + from.LastName)
	}
	r.sendHTML(chatID, fmt.Sprintf(startFmt, tgEscape(name)))
	if err := r.tracker.MarkConversationStarted(ctx, u); err != nil {
		r.log.Warn("mark conversation started failed", zap.Error(err))
	}
}

func (r *Router) handleHelp(_ context.Context, chatID int64) {
	r.sendHTML(chatID, helpText)
}

func (r *Router) handleSettings(ctx context.Context, chatID int64) {
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	r.clearPending(chatID)
	r.sendWithMarkup(chatID, settingsTitle, settingsKeyboard(u))
}

// --- Sleep tracking ---

func (r *Router) handleSleepStart(ctx context.Context, chatID int64) {
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	if _, err := r.tracker.StartSleep(ctx, u); err != nil {
		if errors.Is(err, domain.ErrInconsistentState) {
			r.log.Debug("sleep start ignored", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
		r.log.Error("sleep start failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.sendHTML(chatID, internalErrorText)
		return
	}
	r.sendHTML(chatID, goodNightText)
}

func (r *Router) handleSleepEnd(ctx context.Context, chatID int64) {
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	rec, err := r.tracker.EndSleep(ctx, u)
	if err != nil {
		if errors.Is(err, domain.ErrInconsistentState) {
			r.log.Debug("sleep end ignored", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
		r.log.Error("sleep end failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.sendHTML(chatID, internalErrorText)
		return
	}
	r.sendWithMarkup(chatID, formatWakeup(rec, u.Location()), moodKeyboard(rec.ID))
}

func (r *Router) handleMood(ctx context.Context, chatID int64, msgID int, data, cbID string) {
	idPart, idxPart, found := strings.Cut(data, ":")
	recordID, err1 := strconv.ParseInt(idPart, 10, 64)
	idx, err2 := strconv.Atoi(idxPart)
	if !found || err1 != nil || err2 != nil || idx < 0 || idx >= len(moods) {
		_ = r.answerCallback(cbID, "")
		return
	}
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	m := moods[idx]
	if err := r.tracker.SetMood(ctx, u, recordID, m.Name, m.Emoji); err != nil {
		r.log.Error("set mood failed", zap.Int64("chat_id", chatID), zap.Error(err))
		_ = r.answerCallback(cbID, internalErrorText)
		return
	}
	_ = r.answerCallback(cbID, m.Emoji)
	_, _ = r.bot.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	}))
}

// --- Statistics ---

func (r *Router) handleWeekStats(ctx context.Context, chatID int64, text string) {
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	r.log.Info("weekly stats requested", zap.Int64("chat_id", chatID), zap.String("cmd", text))
	rep, err := r.tracker.WeekReport(ctx, u, text)
	if err != nil {
		r.statsError(chatID, text, err)
		return
	}
	r.sendHTML(chatID, formatWeekReport(rep))
}

func (r *Router) handleMonthStats(ctx context.Context, chatID int64, text string) {
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	r.log.Info("monthly stats requested", zap.Int64("chat_id", chatID), zap.String("cmd", text))
	rep, err := r.tracker.MonthReport(ctx, u, text)
	if err != nil {
		r.statsError(chatID, text, err)
		return
	}
	r.sendHTML(chatID, formatMonthReport(rep))
}

func (r *Router) statsError(chatID int64, text string, err error) {
	if errors.Is(err, domain.ErrInvalidArgument) {
		_, arg, _ := strings.Cut(text, " ")
		r.sendHTML(chatID, fmt.Sprintf(wrongOptionFmt, tgEscape(strings.TrimSpace(arg))))
		return
	}
	r.log.Error("stats failed", zap.Int64("chat_id", chatID), zap.Error(err))
	r.sendHTML(chatID, internalErrorText)
}

// --- Settings flows ---

func (r *Router) askBedtime(ctx context.Context, chatID int64, msgID int, cbID string) {
	_ = r.answerCallback(cbID, "")
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	r.editWithMarkup(chatID, msgID, fmt.Sprintf(askBedtimeFmt, bedtimeLabel(u)), bedtimeKeyboard())
	r.setPending(chatID, pendingBedtime, msgID)
}

func (r *Router) askTimezone(ctx context.Context, chatID int64, msgID int, cbID string) {
	_ = r.answerCallback(cbID, "")
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	r.editWithMarkup(chatID, msgID, fmt.Sprintf(askTimezoneFmt, u.Timezone.String()), cancelKeyboard())
	r.setPending(chatID, pendingTZ, msgID)
}

func (r *Router) handleBedtimeReset(ctx context.Context, chatID int64, msgID int, cbID string) {
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	r.clearPending(chatID)
	if err := r.tracker.ResetBedtime(ctx, u); err != nil {
		r.log.Error("reset bedtime failed", zap.Int64("chat_id", chatID), zap.Error(err))
		_ = r.answerCallback(cbID, internalErrorText)
		return
	}
	_ = r.answerCallback(cbID, "Reminder reset")
	r.editWithMarkup(chatID, msgID, settingsTitle, settingsKeyboard(u))
}

func (r *Router) handleDND(ctx context.Context, chatID int64, msgID int, cbID string) {
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	on, err := r.tracker.ToggleDoNotDisturb(ctx, u)
	if err != nil {
		r.log.Error("toggle dnd failed", zap.Int64("chat_id", chatID), zap.Error(err))
		_ = r.answerCallback(cbID, internalErrorText)
		return
	}
	mode := "switched off"
	if on {
		mode = "switched on"
	}
	_ = r.answerCallback(cbID, "Do not disturb mode "+mode)
	r.editWithMarkup(chatID, msgID, settingsTitle, settingsKeyboard(u))
}

func (r *Router) askLanguage(_ context.Context, chatID int64, msgID int, cbID string) {
	_ = r.answerCallback(cbID, "Choose language")
	_, _ = r.bot.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, languageKeyboard()))
}

func (r *Router) handleLanguage(ctx context.Context, chatID int64, msgID int, code, cbID string) {
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	if err := r.tracker.SetLanguage(ctx, u, code); err != nil {
		r.log.Error("set language failed", zap.Int64("chat_id", chatID), zap.Error(err))
		_ = r.answerCallback(cbID, internalErrorText)
		return
	}
	_ = r.answerCallback(cbID, "Language changed to "+languageLabel(code))
	r.editWithMarkup(chatID, msgID, settingsTitle, settingsKeyboard(u))
}

func (r *Router) handleCancel(ctx context.Context, chatID int64, msgID int, cbID string) {
	r.clearPending(chatID)
	_ = r.answerCallback(cbID, "Action cancelled")
	u, ok := r.user(ctx, chatID)
	if !ok {
		return
	}
	r.editWithMarkup(chatID, msgID, settingsTitle, settingsKeyboard(u))
}

func (r *Router) handleDone(chatID int64, msgID int, cbID string) {
	r.clearPending(chatID)
	_ = r.answerCallback(cbID, "Settings saved")
	_, _ = r.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID))
}

// --- Free-form dispatcher (for pending settings inputs) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	p := r.getPending(chatID)
	switch p.key {
	case pendingTZ:
		u, ok := r.user(ctx, chatID)
		if !ok {
			return
		}
		off, err := r.tracker.SetTimezone(ctx, u, text)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidFormat) {
				// Stay in the flow and let the user retry.
				r.sendHTML(chatID, wrongTimezoneText)
				return
			}
			r.clearPending(chatID)
			r.log.Error("set timezone failed", zap.Int64("chat_id", chatID), zap.Error(err))
			r.sendHTML(chatID, internalErrorText)
			return
		}
		r.clearPending(chatID)
		r.finishSettingsInput(chatID, p.messageID, "Time zone changed to "+off.String(), u)

	case pendingBedtime:
		u, ok := r.user(ctx, chatID)
		if !ok {
			return
		}
		t, err := r.tracker.SetBedtime(ctx, u, text)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidFormat) {
				r.sendHTML(chatID, wrongTimeText)
				return
			}
			r.clearPending(chatID)
			r.log.Error("set bedtime failed", zap.Int64("chat_id", chatID), zap.Error(err))
			r.sendHTML(chatID, internalErrorText)
			return
		}
		r.clearPending(chatID)
		r.finishSettingsInput(chatID, p.messageID, "Bedtime reminder changed to "+t.String(), u)

	default:
		// No pending flow: ignore free-form message
	}
}

func (r *Router) finishSettingsInput(chatID int64, settingsMsgID int, text string, u *domain.User) {
	if settingsMsgID != 0 {
		_, _ = r.bot.Request(tgbotapi.NewDeleteMessage(chatID, settingsMsgID))
	}
	r.sendWithMarkup(chatID, text, settingsKeyboard(u))
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func tgEscape(s string) string { return htmlEscaper.Replace(s) }

var _ tracker.Notifier = (*Router)(nil)
