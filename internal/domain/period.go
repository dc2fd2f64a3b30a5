package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a half-open time range [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Days returns the number of calendar days the period spans.
func (p Period) Days() int {
	n := 0
	for d := p.Start; d.Before(p.End); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// ResolveRelativeOffset shifts nowLocal by the signed integer argument of a
// stats command ("!m -1", "! 2" or just "-1") in units of g. A command
// without an argument means the current period.
func ResolveRelativeOffset(nowLocal time.Time, token string, g Granularity) (time.Time, error) {
	arg := relativeArg(token)
	if arg == "" {
		return nowLocal, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidArgument, arg)
	}
	if g == Month {
		return addMonths(nowLocal, n), nil
	}
	return nowLocal.AddDate(0, 0, 7*n), nil
}

func relativeArg(token string) string {
	token = strings.TrimSpace(token)
	cmd, rest, found := strings.Cut(token, " ")
	if found {
		return strings.TrimSpace(rest)
	}
	if _, err := strconv.Atoi(cmd); err == nil {
		return cmd
	}
	return ""
}

// addMonths moves t by n calendar months, clamping the day to the length of
// the target month (Mar 31 - 1 month = Feb 29 in a leap year).
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := DaysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WeekRange returns the Monday-aligned week containing anchor, starting at
// local midnight.
func WeekRange(anchor time.Time) Period {
	y, m, d := anchor.Date()
	back := (int(anchor.Weekday()) + 6) % 7
	start := time.Date(y, m, d-back, 0, 0, 0, 0, anchor.Location())
	return Period{Start: start, End: start.AddDate(0, 0, 7)}
}

// MonthRange returns the calendar month containing anchor.
func MonthRange(anchor time.Time) Period {
	y, m, _ := anchor.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, anchor.Location())
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// MonthRangeSplitByWeek splits the month containing anchor into Monday-aligned
// weeks clipped to the month. The first and last parts may be shorter than
// seven days; the parts are contiguous and cover the month exactly.
func MonthRangeSplitByWeek(anchor time.Time) []Period {
	month := MonthRange(anchor)
	var res []Period
	for start := month.Start; start.Before(month.End); {
		end := WeekRange(start).End
		if end.After(month.End) {
			end = month.End
		}
		res = append(res, Period{Start: start, End: end})
		start = end
	}
	return res
}
