package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/eyev0/wakeupbot/internal/domain"
)

// UI texts in English
const (
	startFmt = "Hello, <b>%s</b>!\n\n" +
		"Send me '-' when you go to sleep, and '+' when you wake up :)\n" +
		"Send '!' to view your weekly stats, '!m' - monthly stats\n" +
		"('!m -1' to view stats on previous month etc.)\n\n" +
		"Send /help to see list of my commands.\n" +
		"You can set your time zone and bedtime reminder in /settings :)"
	helpText = "<b>Here's list of my commands:</b>\n" +
		"\"-\" - Start sleeping\n" +
		"\"+\" - Record your sleep\n" +
		"\"!\" - View weekly stats\n" +
		"\"!m\" - View monthly stats\n" +
		"\"!m -1\" - View previous month's stats\n" +
		"/start - Start conversation with bot\n" +
		"/help - Show this message\n" +
		"/settings - User settings"
	goodNightText     = "<i>Good night..</i>"
	goodMorningText   = "<b>Good morning!</b>\nYour sleep:\n%s\n\nHow do you feel?"
	settingsTitle     = "Personal settings"
	askTimezoneFmt    = "Your current time zone: %s\n\nEnter your time zone (<i>example: </i><code>+1</code>, <code>+10:00</code>, <code>-3:30</code>):"
	askBedtimeFmt     = "Your current bedtime reminder: %s\n\nEnter new time (<i>example: </i><code>21</code>, <code>22:30</code>):"
	wrongTimezoneText = "Wrong format! See examples above"
	wrongTimeText     = "Wrong time format!"
	wrongOptionFmt    = "Wrong option! - %s"
	emptyStatsText    = "No sleep recorded for this period yet."
	internalErrorText = "Something went wrong. Please try again later."
	weeklyTitle       = "Weekly stats:"
	monthlyTitleFmt   = "Monthly stats for %s:"
	averageTitle      = "Average sleep hours per day:"
)

// mood is a post-sleep feeling offered after wake-up.
type mood struct {
	Name  string
	Emoji string
}

var moods = []mood{
	{"Ok", "🙂"},
	{"Well slept", "😃"},
	{"Sluggish", "😪"},
	{"Sleepy", "😴"},
}

var languages = []struct{ Code, Label string }{
	{"en", "🇬🇧 English"},
	{"ru", "🇷🇺 Русский"},
}

var flagStatus = map[bool]string{false: "❌", true: "✅"}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dh %dmin", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// formatSummary renders one sleep interval, e.g.
// "Mon, 1 Jan 23:00:00 - 02:00:00 -- <b>3h 0min</b> (😃)".
func formatSummary(s domain.Summary) string {
	line := fmt.Sprintf("%s %s - %s -- <b>%s</b>",
		s.Day.Format("Mon, 2 Jan"),
		s.Start.Format("15:04:05"),
		s.End.Format("15:04:05"),
		formatDuration(s.Duration),
	)
	if s.Emoji != "" {
		line += " (" + s.Emoji + ")"
	}
	return line
}

func formatAverage(lines []string, avg time.Duration) []string {
	return append(lines, "", "<b>"+averageTitle+"</b>", "<b>"+formatDuration(avg)+"</b>")
}

func formatWeekReport(rep *domain.Report) string {
	lines := []string{"<b>" + weeklyTitle + "</b>", ""}
	if rep.Empty() {
		return strings.Join(append(lines, emptyStatsText), "\n")
	}
	for _, s := range rep.Summaries {
		lines = append(lines, formatSummary(s))
	}
	return strings.Join(formatAverage(lines, rep.Average), "\n")
}

func formatMonthReport(rep *domain.Report) string {
	title := fmt.Sprintf(monthlyTitleFmt, rep.Period.Start.Format("January 2006"))
	lines := []string{"<b>" + title + "</b>"}
	if rep.Empty() {
		return strings.Join(append(lines, "", emptyStatsText), "\n")
	}
	for _, sec := range rep.Sections {
		if len(sec.Summaries) == 0 {
			continue
		}
		last := sec.End.AddDate(0, 0, -1)
		lines = append(lines, "", fmt.Sprintf("<i>%s – %s</i>", sec.Start.Format("2 Jan"), last.Format("2 Jan")))
		for _, s := range sec.Summaries {
			lines = append(lines, formatSummary(s))
		}
	}
	return strings.Join(formatAverage(lines, rep.Average), "\n")
}

func formatWakeup(rec *domain.SleepRecord, loc *time.Location) string {
	sums := domain.NewEngine(loc, domain.Week).ExplicitSummaries([]domain.SleepRecord{*rec})
	if len(sums) == 0 {
		return fmt.Sprintf(goodMorningText, "-")
	}
	return fmt.Sprintf(goodMorningText, formatSummary(sums[0]))
}

func bedtimeLabel(u *domain.User) string {
	if u.Bedtime == nil {
		return "-"
	}
	return u.Bedtime.String()
}

func languageLabel(code string) string {
	for _, l := range languages {
		if l.Code == code {
			return l.Label
		}
	}
	return code
}

// Inline keyboards

func settingsKeyboard(u *domain.User) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏰ Bedtime reminder: "+bedtimeLabel(u), cbSetBedtime),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌍 Time zone: "+u.Timezone.String(), cbSetTZ),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(flagStatus[u.DoNotDisturb]+" Do not disturb", cbDND),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(languageLabel(u.Language), cbLanguage),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Done", cbDone),
		),
	)
}

func bedtimeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reset", cbBedtimeReset),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", cbCancel),
		),
	)
}

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", cbCancel),
		),
	)
}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(languages))
	for _, l := range languages {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(l.Label, cbLanguagePrefix+l.Code))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func moodKeyboard(recordID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(recordID, 10)
	btn := func(i int) tgbotapi.InlineKeyboardButton {
		m := moods[i]
		return tgbotapi.NewInlineKeyboardButtonData(m.Name+" "+m.Emoji, fmt.Sprintf("%s%s:%d", cbMoodPrefix, id, i))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(btn(0), btn(1)),
		tgbotapi.NewInlineKeyboardRow(btn(2), btn(3)),
	)
}

func sleepKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("I'm going to sleep", cbSleep),
		),
	)
}
