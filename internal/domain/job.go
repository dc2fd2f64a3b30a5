package domain

import (
	"fmt"
	"time"
)

// JobKind identifies which reminder a scheduled job delivers.
type JobKind string

const (
	KindBedtime JobKind = "bedtime"
	KindWakeup  JobKind = "wakeup"
)

// Valid reports whether k is a known kind.
func (k JobKind) Valid() bool {
	return k == KindBedtime || k == KindWakeup
}

// SleepDurationEstimate is how long after falling asleep the wake-up
// reminder fires.
const SleepDurationEstimate = 6*time.Hour + 30*time.Minute

// WakeupReminderWindow is how long a wake-up reminder stays deliverable
// after its fire time.
const WakeupReminderWindow = 5 * time.Minute

// TriggerType distinguishes recurring from one-shot triggers.
type TriggerType string

const (
	TriggerDaily TriggerType = "daily"
	TriggerOnce  TriggerType = "once"
)

// Trigger describes when a job fires.
// Daily triggers fire every day at Hour:Minute in Location.
// Once triggers fire at RunAt and are dropped after ExpiresAt.
type Trigger struct {
	Type      TriggerType
	Hour      int
	Minute    int
	Location  *time.Location
	RunAt     time.Time
	ExpiresAt *time.Time
}

// DailyAt converts a local time of day in the user's timezone into a daily
// trigger in the scheduler's reference location. now fixes the calendar date
// used for the conversion.
func DailyAt(t TimeOfDay, userLoc, schedLoc *time.Location, now time.Time) Trigger {
	if schedLoc == nil {
		schedLoc = time.UTC
	}
	at := t.On(now, userLoc).In(schedLoc)
	return Trigger{
		Type:     TriggerDaily,
		Hour:     at.Hour(),
		Minute:   at.Minute(),
		Location: schedLoc,
	}
}

// OnceAt returns a one-shot trigger that expires window after at.
func OnceAt(at time.Time, window time.Duration) Trigger {
	exp := at.Add(window)
	return Trigger{Type: TriggerOnce, RunAt: at.UTC(), ExpiresAt: &exp}
}

// Next returns the first fire time strictly after after. The second result
// is false when the trigger will never fire again.
func (t Trigger) Next(after time.Time) (time.Time, bool) {
	switch t.Type {
	case TriggerDaily:
		loc := t.Location
		if loc == nil {
			loc = time.UTC
		}
		a := after.In(loc)
		next := time.Date(a.Year(), a.Month(), a.Day(), t.Hour, t.Minute, 0, 0, loc)
		if !next.After(after) {
			next = time.Date(a.Year(), a.Month(), a.Day()+1, t.Hour, t.Minute, 0, 0, loc)
		}
		return next.UTC(), true
	case TriggerOnce:
		if t.RunAt.After(after) {
			return t.RunAt, true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// First returns the initial fire time relative to now. For one-shot
// triggers this is RunAt even when it lies in the past.
func (t Trigger) First(now time.Time) (time.Time, bool) {
	if t.Type == TriggerOnce {
		if t.Expired(now) {
			return time.Time{}, false
		}
		return t.RunAt, true
	}
	return t.Next(now)
}

// Expired reports whether a one-shot trigger is past its expiry at now.
func (t Trigger) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

func (t Trigger) String() string {
	if t.Type == TriggerOnce {
		return "once@" + t.RunAt.Format(time.RFC3339)
	}
	name := "UTC"
	if t.Location != nil {
		name = t.Location.String()
	}
	return fmt.Sprintf("daily@%02d:%02d %s", t.Hour, t.Minute, name)
}

// Job is a durable scheduled job. The target is stored as {Kind, UserID};
// the callback is resolved by kind when the scheduler binds the job.
type Job struct {
	ID        string
	Kind      JobKind
	UserID    int64
	Trigger   Trigger
	NextRunAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (j *Job) Owner() int64 { return j.UserID }
