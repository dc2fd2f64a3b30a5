package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/eyev0/wakeupbot/internal/tracker"
)

// Pending state keys used in conversational flows.
const (
	pendingTZ      = "await_tz_text"
	pendingBedtime = "await_bedtime_text"
)

// Callback data.
const (
	cbSetBedtime     = "set_bedtime"
	cbBedtimeReset   = "bedtime:reset"
	cbSetTZ          = "set_tz"
	cbDND            = "dnd"
	cbLanguage       = "lang"
	cbLanguagePrefix = "lang:"
	cbDone           = "done"
	cbCancel         = "cancel"
	cbSleep          = "sleep"
	cbMoodPrefix     = "mood:"
)

// Bot is the part of the Telegram API the router uses; *tgbotapi.BotAPI
// satisfies it.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Router wires Telegram updates to the tracker and holds minimal in-memory state.
type Router struct {
	bot     Bot
	log     *zap.Logger
	tracker *tracker.Service
	state   map[int64]pending // chatID -> pending state
	mu      sync.RWMutex
}

type pending struct {
	key       string
	messageID int // settings message to refresh after input
}

// NewRouter creates a new Telegram router.
func NewRouter(bot Bot, log *zap.Logger, svc *tracker.Service) *Router {
	return &Router{
		bot:     bot,
		log:     log.Named("telegram"),
		tracker: svc,
		state:   make(map[int64]pending),
	}
}

// setPending sets a pending state for a chat (non-persistent, in-memory).
func (r *Router) setPending(chatID int64, key string, messageID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = pending{key: key, messageID: messageID}
}

// getPending returns current pending state for a chat.
func (r *Router) getPending(chatID int64) pending {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

// clearPending clears a pending state for a chat.
func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		if msg.Chat == nil || !msg.Chat.IsPrivate() {
			return
		}
		chatID := msg.Chat.ID
		text := strings.TrimSpace(msg.Text)

		switch {
		case strings.HasPrefix(text, "/start"):
			r.handleStart(ctx, chatID, msg.From)
		case strings.HasPrefix(text, "/help"):
			r.handleHelp(ctx, chatID)
		case strings.HasPrefix(text, "/settings"):
			r.handleSettings(ctx, chatID)
		case text == "-":
			r.handleSleepStart(ctx, chatID)
		case text == "+":
			r.handleSleepEnd(ctx, chatID)
		case isMonthCommand(text):
			r.handleMonthStats(ctx, chatID, text)
		case isWeekCommand(text):
			r.handleWeekStats(ctx, chatID, text)
		default:
			// Free-form text used in settings flows (timezone/bedtime)
			r.handleFreeForm(ctx, chatID, text)
		}
		return
	}

	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		if cb.Message == nil || cb.Message.Chat == nil {
			return
		}
		data := cb.Data
		chatID := cb.Message.Chat.ID
		msgID := cb.Message.MessageID

		switch {
		case data == cbSetBedtime:
			r.askBedtime(ctx, chatID, msgID, cb.ID)
		case data == cbBedtimeReset:
			r.handleBedtimeReset(ctx, chatID, msgID, cb.ID)
		case data == cbSetTZ:
			r.askTimezone(ctx, chatID, msgID, cb.ID)
		case data == cbDND:
			r.handleDND(ctx, chatID, msgID, cb.ID)
		case data == cbLanguage:
			r.askLanguage(ctx, chatID, msgID, cb.ID)
		case strings.HasPrefix(data, cbLanguagePrefix):
			r.handleLanguage(ctx, chatID, msgID, strings.TrimPrefix(data, cbLanguagePrefix), cb.ID)
		case data == cbCancel:
			r.handleCancel(ctx, chatID, msgID, cb.ID)
		case data == cbDone:
			r.handleDone(chatID, msgID, cb.ID)
		case data == cbSleep:
			_ = r.answerCallback(cb.ID, "")
			r.handleSleepStart(ctx, chatID)
		case strings.HasPrefix(data, cbMoodPrefix):
			r.handleMood(ctx, chatID, msgID, strings.TrimPrefix(data, cbMoodPrefix), cb.ID)
		default:
			// Unknown callback, ignore.
		}
	}
}

// isWeekCommand matches "!" and "! N".
func isWeekCommand(text string) bool {
	return text == "!" || strings.HasPrefix(text, "! ")
}

// isMonthCommand matches "!m", "!м" and their "... N" forms.
func isMonthCommand(text string) bool {
	for _, p := range []string{"!m", "!м"} {
		if text == p || strings.HasPrefix(text, p+" ") {
			return true
		}
	}
	return false
}

// Notify sends a reminder to the user. It makes Router satisfy tracker.Notifier.
func (r *Router) Notify(_ context.Context, userID int64, n tracker.Notification) error {
	msg := tgbotapi.NewMessage(userID, "<i>"+n.Text+"</i>")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableNotification = n.Silent
	if n.Action == tracker.ActionSleep {
		msg.ReplyMarkup = sleepKeyboard()
	}
	_, err := r.bot.Send(msg)
	return err
}
