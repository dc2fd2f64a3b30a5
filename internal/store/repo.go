package store

import (
	"context"
	"errors"
	"time"

	"github.com/eyev0/wakeupbot/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrJobNotFound = errors.New("job not found")
	// ErrJobChanged is returned when a job was rescheduled after it was read.
	ErrJobChanged = errors.New("job rescheduled concurrently")
	// ErrOpenRecord is returned when a user already has an open sleep record.
	ErrOpenRecord = errors.New("open sleep record exists")
)

// UserRepo stores user settings.
type UserRepo interface {
	UpsertUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// RecordRepo stores sleep intervals.
type RecordRepo interface {
	CreateRecord(ctx context.Context, userID int64, start time.Time) (*domain.SleepRecord, error)
	CloseRecord(ctx context.Context, userID int64, end time.Time) (*domain.SleepRecord, error)
	OpenRecord(ctx context.Context, userID int64) (*domain.SleepRecord, error)
	ListClosedRecords(ctx context.Context, userID int64, start, end time.Time) ([]domain.SleepRecord, error)
	SetMood(ctx context.Context, userID, recordID int64, mood, emoji string) error
}

// JobRepo is the durable job store plus the per-user reminder rows that
// reference it. The two are always written together.
type JobRepo interface {
	InsertJob(ctx context.Context, job *domain.Job) error
	RescheduleJob(ctx context.Context, jobID string, trigger domain.Trigger, next time.Time) error
	AdvanceJob(ctx context.Context, jobID string, prev, next time.Time) error
	RemoveJob(ctx context.Context, jobID string) error
	RemoveDueJob(ctx context.Context, jobID string, prev time.Time) error
	DueJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)
	ListJobs(ctx context.Context) ([]domain.Job, error)
	GetReminder(ctx context.Context, userID int64, kind domain.JobKind) (*domain.ReminderJob, error)
	ListReminders(ctx context.Context) ([]domain.ReminderJob, error)
}

// Repo defines all storage operations.
type Repo interface {
	UserRepo
	RecordRepo
	JobRepo
	Close() error
}
