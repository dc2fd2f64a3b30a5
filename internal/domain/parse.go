package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidFormat     = errors.New("invalid format")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInconsistentState = errors.New("inconsistent state")
)

// Offset is a fixed UTC offset in seconds east of UTC.
type Offset int

// ParseOffset parses "+H", "-H", "+H:MM" or "-H:MM" (e.g. "+1", "-3:30", "+10:00").
// The sign is mandatory, hours must be below 24 and minutes below 60.
func ParseOffset(s string) (Offset, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty timezone", ErrInvalidFormat)
	}
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("%w: timezone must start with + or -: %q", ErrInvalidFormat, s)
	}
	hours, minutes, hasMinutes := strings.Cut(s[1:], ":")
	if !isAllDigits(hours) {
		return 0, fmt.Errorf("%w: invalid hours in %q", ErrInvalidFormat, s)
	}
	h, err := strconv.Atoi(hours)
	if err != nil || h > 23 {
		return 0, fmt.Errorf("%w: invalid hours in %q", ErrInvalidFormat, s)
	}
	m := 0
	if hasMinutes {
		if !isAllDigits(minutes) {
			return 0, fmt.Errorf("%w: invalid minutes in %q", ErrInvalidFormat, s)
		}
		m, err = strconv.Atoi(minutes)
		if err != nil || m >= 60 {
			return 0, fmt.Errorf("%w: invalid minutes in %q", ErrInvalidFormat, s)
		}
	}
	return Offset(sign * (h*3600 + m*60)), nil
}

// MustParseOffset is ParseOffset for values known to be valid.
func MustParseOffset(s string) Offset {
	o, err := ParseOffset(s)
	if err != nil {
		panic(err)
	}
	return o
}

// String formats the offset as ±H:MM.
func (o Offset) String() string {
	sign := "+"
	secs := int(o)
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	return fmt.Sprintf("%s%d:%02d", sign, secs/3600, (secs%3600)/60)
}

// Location returns a fixed zone named after the offset.
func (o Offset) Location() *time.Location {
	return time.FixedZone(o.String(), int(o))
}

// TimeOfDay is an hour and minute as entered by the user.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "H" or "H:MM". Only integer parsing is checked;
// out-of-range values wrap around the clock when used.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hours, minutes, hasMinutes := strings.Cut(s, ":")
	h, err := strconv.Atoi(hours)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: invalid hour in %q", ErrInvalidFormat, s)
	}
	m := 0
	if hasMinutes {
		m, err = strconv.Atoi(minutes)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("%w: invalid minute in %q", ErrInvalidFormat, s)
		}
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// Normalize folds the value into 00:00..23:59.
func (t TimeOfDay) Normalize() TimeOfDay {
	mins := (t.Hour*60 + t.Minute) % (24 * 60)
	if mins < 0 {
		mins += 24 * 60
	}
	return TimeOfDay{Hour: mins / 60, Minute: mins % 60}
}

// String returns HH:MM.
func (t TimeOfDay) String() string {
	n := t.Normalize()
	return fmt.Sprintf("%02d:%02d", n.Hour, n.Minute)
}

// On returns the instant at this time of day on the calendar date of day in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	n := t.Normalize()
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), n.Hour, n.Minute, 0, 0, loc)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
