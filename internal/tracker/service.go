// Package tracker records sleep intervals, builds statistics and keeps the
// per-user reminders in step with what the user is doing.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eyev0/wakeupbot/internal/domain"
	"github.com/eyev0/wakeupbot/internal/store"
)

var (
	ErrAlreadyAsleep = fmt.Errorf("%w: user is already asleep", domain.ErrInconsistentState)
	ErrAlreadyAwake  = fmt.Errorf("%w: user is already awake", domain.ErrInconsistentState)
)

// Repo is the storage the tracker needs.
type Repo interface {
	store.UserRepo
	store.RecordRepo
}

// Reminders arms and disarms per-user reminder jobs.
type Reminders interface {
	ArmDaily(ctx context.Context, userID int64, kind domain.JobKind, t domain.TimeOfDay, userLoc *time.Location) (string, error)
	ArmOnce(ctx context.Context, userID int64, kind domain.JobKind, at time.Time, window time.Duration) (string, error)
	Disarm(ctx context.Context, userID int64, kind domain.JobKind) error
}

// Action is an optional quick-reply attached to a notification.
type Action int

const (
	ActionNone Action = iota
	ActionSleep
)

// Notification is a message pushed to a user outside of a conversation.
type Notification struct {
	Text   string
	Silent bool
	Action Action
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, userID int64, n Notification) error
}

const (
	bedtimeText = "Hey!.. Time to sleep, my dear friend."
	wakeupText  = "Did you wake up?"
)

// Service implements the sleep tracker use cases. Operations for the same
// user are serialized, including reminder callbacks.
type Service struct {
	repo      Repo
	reminders Reminders
	notifier  Notifier
	log       *zap.Logger
	defaultTZ domain.Offset
	now       func() time.Time
	locks     userLocks
}

// New creates the tracker service.
func New(repo Repo, reminders Reminders, notifier Notifier, log *zap.Logger, defaultTZ domain.Offset) *Service {
	return &Service{
		repo:      repo,
		reminders: reminders,
		notifier:  notifier,
		log:       log.Named("tracker"),
		defaultTZ: defaultTZ,
		now:       time.Now,
		locks:     userLocks{m: make(map[int64]*userLock)},
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetNotifier replaces the notifier; the transport is built after the service.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// EnsureUser loads the user, creating one with defaults on first contact.
func (s *Service) EnsureUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	u = &domain.User{ID: id, Timezone: s.defaultTZ, Language: "en"}
	if err := s.repo.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user created", zap.Int64("user_id", id))
	return u, nil
}

// IsAwake reports whether the user has no open sleep interval.
func (s *Service) IsAwake(ctx context.Context, userID int64) (bool, error) {
	_, err := s.repo.OpenRecord(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// StartSleep opens a sleep interval and arms the wake-up reminder.
func (s *Service) StartSleep(ctx context.Context, u *domain.User) (*domain.SleepRecord, error) {
	defer s.locks.lock(u.ID)()

	awake, err := s.IsAwake(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if !awake {
		return nil, ErrAlreadyAsleep
	}

	rec, err := s.repo.CreateRecord(ctx, u.ID, s.now())
	if errors.Is(err, store.ErrOpenRecord) {
		return nil, ErrAlreadyAsleep
	}
	if err != nil {
		return nil, err
	}

	at := rec.CreatedAt.Add(domain.SleepDurationEstimate)
	if _, err := s.reminders.ArmOnce(ctx, u.ID, domain.KindWakeup, at, domain.WakeupReminderWindow); err != nil {
		s.log.Error("arm wakeup reminder failed", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	s.log.Info("sleep started", zap.Int64("user_id", u.ID), zap.Int64("record_id", rec.ID))
	return rec, nil
}

// EndSleep closes the open interval, drops the pending wake-up reminder and
// re-arms the bedtime reminder.
func (s *Service) EndSleep(ctx context.Context, u *domain.User) (*domain.SleepRecord, error) {
	defer s.locks.lock(u.ID)()

	awake, err := s.IsAwake(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if awake {
		return nil, ErrAlreadyAwake
	}

	rec, err := s.repo.CloseRecord(ctx, u.ID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn("no open sleep record to close", zap.Int64("user_id", u.ID))
		return nil, fmt.Errorf("%w: no open sleep record", domain.ErrInconsistentState)
	}
	if err != nil {
		return nil, err
	}

	if err := s.reminders.Disarm(ctx, u.ID, domain.KindWakeup); err != nil {
		s.log.Error("disarm wakeup reminder failed", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	if err := s.armBedtime(ctx, u); err != nil {
		s.log.Error("arm bedtime reminder failed", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	s.log.Info("sleep ended",
		zap.Int64("user_id", u.ID),
		zap.Int64("record_id", rec.ID),
		zap.Duration("duration", rec.Duration()),
	)
	return rec, nil
}

// SetMood tags a finished sleep record with how the user feels.
func (s *Service) SetMood(ctx context.Context, u *domain.User, recordID int64, mood, emoji string) error {
	defer s.locks.lock(u.ID)()
	return s.repo.SetMood(ctx, u.ID, recordID, mood, emoji)
}

// WeekReport builds statistics for the week selected by token ("!", "! -1").
func (s *Service) WeekReport(ctx context.Context, u *domain.User, token string) (*domain.Report, error) {
	loc := u.Location()
	anchor, err := domain.ResolveRelativeOffset(s.now().In(loc), token, domain.Week)
	if err != nil {
		return nil, err
	}
	period := domain.WeekRange(anchor)
	records, err := s.repo.ListClosedRecords(ctx, u.ID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	return domain.NewEngine(loc, domain.Week).BuildReport(period, nil, records), nil
}

// MonthReport builds statistics for the month selected by token ("!m",
// "!m -1"), split into week sections.
func (s *Service) MonthReport(ctx context.Context, u *domain.User, token string) (*domain.Report, error) {
	loc := u.Location()
	anchor, err := domain.ResolveRelativeOffset(s.now().In(loc), token, domain.Month)
	if err != nil {
		return nil, err
	}
	period := domain.MonthRange(anchor)
	records, err := s.repo.ListClosedRecords(ctx, u.ID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	sections := domain.MonthRangeSplitByWeek(anchor)
	return domain.NewEngine(loc, domain.Month).BuildReport(period, sections, records), nil
}

// SetTimezone parses and stores the user's timezone and moves the bedtime
// reminder accordingly.
func (s *Service) SetTimezone(ctx context.Context, u *domain.User, text string) (domain.Offset, error) {
	off, err := domain.ParseOffset(text)
	if err != nil {
		s.log.Info("wrong timezone format", zap.Int64("user_id", u.ID), zap.String("input", text))
		return 0, err
	}

	defer s.locks.lock(u.ID)()
	u.Timezone = off
	if err := s.repo.UpsertUser(ctx, u); err != nil {
		return 0, err
	}
	if err := s.armBedtime(ctx, u); err != nil {
		return 0, err
	}
	return off, nil
}

// SetBedtime parses and stores the bedtime and arms the daily reminder.
func (s *Service) SetBedtime(ctx context.Context, u *domain.User, text string) (domain.TimeOfDay, error) {
	t, err := domain.ParseTimeOfDay(text)
	if err != nil {
		s.log.Info("wrong time format", zap.Int64("user_id", u.ID), zap.String("input", text))
		return domain.TimeOfDay{}, err
	}
	t = t.Normalize()

	defer s.locks.lock(u.ID)()
	u.Bedtime = &t
	if err := s.repo.UpsertUser(ctx, u); err != nil {
		return domain.TimeOfDay{}, err
	}
	if err := s.armBedtime(ctx, u); err != nil {
		return domain.TimeOfDay{}, err
	}
	return t, nil
}

// ResetBedtime clears the bedtime and removes the reminder job.
func (s *Service) ResetBedtime(ctx context.Context, u *domain.User) error {
	defer s.locks.lock(u.ID)()
	u.Bedtime = nil
	if err := s.repo.UpsertUser(ctx, u); err != nil {
		return err
	}
	return s.reminders.Disarm(ctx, u.ID, domain.KindBedtime)
}

// ToggleDoNotDisturb flips the flag and returns the new value.
func (s *Service) ToggleDoNotDisturb(ctx context.Context, u *domain.User) (bool, error) {
	defer s.locks.lock(u.ID)()
	u.DoNotDisturb = !u.DoNotDisturb
	if err := s.repo.UpsertUser(ctx, u); err != nil {
		u.DoNotDisturb = !u.DoNotDisturb
		return u.DoNotDisturb, err
	}
	return u.DoNotDisturb, nil
}

// SetLanguage stores the user's language code.
func (s *Service) SetLanguage(ctx context.Context, u *domain.User, lang string) error {
	defer s.locks.lock(u.ID)()
	u.Language = lang
	return s.repo.UpsertUser(ctx, u)
}

// MarkConversationStarted records that the user has seen the greeting.
func (s *Service) MarkConversationStarted(ctx context.Context, u *domain.User) error {
	if u.ConversationStarted {
		return nil
	}
	defer s.locks.lock(u.ID)()
	u.ConversationStarted = true
	return s.repo.UpsertUser(ctx, u)
}

// RemindBedtime is the bedtime job handler. It stays quiet when the user is
// already asleep.
func (s *Service) RemindBedtime(ctx context.Context, userID int64) error {
	defer s.locks.lock(userID)()

	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	awake, err := s.IsAwake(ctx, userID)
	if err != nil {
		return err
	}
	if !awake {
		s.log.Debug("bedtime reminder suppressed, user asleep", zap.Int64("user_id", userID))
		return nil
	}
	s.log.Info("sending bedtime reminder", zap.Int64("user_id", userID))
	return s.notifier.Notify(ctx, userID, Notification{
		Text:   bedtimeText,
		Silent: u.DoNotDisturb,
		Action: ActionSleep,
	})
}

// RemindWakeup is the wake-up job handler. It stays quiet when the user has
// already logged waking up.
func (s *Service) RemindWakeup(ctx context.Context, userID int64) error {
	defer s.locks.lock(userID)()

	awake, err := s.IsAwake(ctx, userID)
	if err != nil {
		return err
	}
	if awake {
		s.log.Debug("wakeup reminder suppressed, user awake", zap.Int64("user_id", userID))
		return nil
	}
	s.log.Info("sending wakeup reminder", zap.Int64("user_id", userID))
	return s.notifier.Notify(ctx, userID, Notification{Text: wakeupText, Silent: true})
}

func (s *Service) armBedtime(ctx context.Context, u *domain.User) error {
	if u.Bedtime == nil {
		return nil
	}
	_, err := s.reminders.ArmDaily(ctx, u.ID, domain.KindBedtime, *u.Bedtime, u.Location())
	return err
}

// userLocks hands out one mutex per user. An entry lives only while someone
// holds or waits for it.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the user's mutex and returns its unlock function.
func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	e, ok := l.m[userID]
	if !ok {
		e = &userLock{}
		l.m[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
