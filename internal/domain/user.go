package domain

import "time"

// Timestamped is implemented by entities that track creation and update times.
type Timestamped interface {
	Created() time.Time
	Updated() time.Time
}

// UserOwned is implemented by entities that belong to exactly one user.
type UserOwned interface {
	Owner() int64
}

// User holds per-chat sleep tracker settings.
type User struct {
	ID                  int64
	Timezone            Offset
	Bedtime             *TimeOfDay // nil means no bedtime reminder
	DoNotDisturb        bool
	Language            string
	ConversationStarted bool
	CreatedAt           time.Time // UTC
	UpdatedAt           time.Time // UTC
}

func (u *User) Created() time.Time { return u.CreatedAt }
func (u *User) Updated() time.Time { return u.UpdatedAt }

// Location returns the user's fixed-offset timezone.
func (u *User) Location() *time.Location { return u.Timezone.Location() }

// SleepRecord is one sleep interval. WakeupAt is nil while the user sleeps.
type SleepRecord struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time // sleep start, UTC
	UpdatedAt time.Time
	WakeupAt  *time.Time
	Mood      string
	Emoji     string
	Note      string
}

func (r *SleepRecord) Created() time.Time { return r.CreatedAt }
func (r *SleepRecord) Updated() time.Time { return r.UpdatedAt }
func (r *SleepRecord) Owner() int64       { return r.UserID }

// Open reports whether the interval has not been closed yet.
func (r *SleepRecord) Open() bool { return r.WakeupAt == nil }

// Duration is zero for open intervals.
func (r *SleepRecord) Duration() time.Duration {
	if r.WakeupAt == nil {
		return 0
	}
	return r.WakeupAt.Sub(r.CreatedAt)
}

// ReminderJob links a user's reminder of a given kind to a scheduled job.
type ReminderJob struct {
	UserID    int64
	Kind      JobKind
	JobID     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (j *ReminderJob) Created() time.Time { return j.CreatedAt }
func (j *ReminderJob) Updated() time.Time { return j.UpdatedAt }
func (j *ReminderJob) Owner() int64       { return j.UserID }
