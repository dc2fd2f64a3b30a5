package tracker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eyev0/wakeupbot/internal/domain"
	"github.com/eyev0/wakeupbot/internal/scheduler"
	"github.com/eyev0/wakeupbot/internal/store"
)

type sentNotification struct {
	userID int64
	n      Notification
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(_ context.Context, userID int64, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{userID: userID, n: n})
	return nil
}

type testEnv struct {
	repo     *store.SQLiteRepo
	sched    *scheduler.Scheduler
	svc      *Service
	notifier *fakeNotifier
	now      time.Time
}

func (e *testEnv) clock() time.Time { return e.now }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	env := &testEnv{
		repo:     repo,
		notifier: &fakeNotifier{},
		now:      time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC),
	}
	env.sched = scheduler.New(repo, zap.NewNop(), scheduler.Config{Location: time.UTC})
	env.sched.SetClock(env.clock)
	env.svc = New(repo, env.sched, env.notifier, zap.NewNop(), domain.MustParseOffset("+0"))
	env.svc.SetClock(env.clock)
	env.sched.Register(domain.KindBedtime, env.svc.RemindBedtime)
	env.sched.Register(domain.KindWakeup, env.svc.RemindWakeup)
	return env
}

func (e *testEnv) user(t *testing.T, id int64) *domain.User {
	t.Helper()
	u, err := e.svc.EnsureUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *testEnv) state(t *testing.T, id int64, kind domain.JobKind) scheduler.State {
	t.Helper()
	st, _, err := e.sched.State(context.Background(), id, kind)
	require.NoError(t, err)
	return st
}

func TestEnsureUser_Defaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.user(t, 7)
	assert.Equal(t, domain.Offset(0), u.Timezone)
	assert.Nil(t, u.Bedtime)
	assert.False(t, u.DoNotDisturb)

	again, err := env.svc.EnsureUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
}

func TestStartSleep_ArmsWakeup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, 1)

	rec, err := env.svc.StartSleep(ctx, u)
	require.NoError(t, err)
	assert.True(t, rec.Open())

	awake, err := env.svc.IsAwake(ctx, 1)
	require.NoError(t, err)
	assert.False(t, awake)
	assert.Equal(t, scheduler.Armed, env.state(t, 1, domain.KindWakeup))

	jobs, err := env.repo.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, env.now.Add(domain.SleepDurationEstimate), jobs[0].NextRunAt)

	_, err = env.svc.StartSleep(ctx, u)
	require.ErrorIs(t, err, ErrAlreadyAsleep)
	require.ErrorIs(t, err, domain.ErrInconsistentState)
}

func TestEndSleep_DisarmsWakeupAndArmsBedtime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, 1)

	_, err := env.svc.EndSleep(ctx, u)
	require.ErrorIs(t, err, ErrAlreadyAwake)

	_, err = env.svc.SetBedtime(ctx, u, "23")
	require.NoError(t, err)
	_, err = env.svc.StartSleep(ctx, u)
	require.NoError(t, err)

	env.now = env.now.Add(8 * time.Hour)
	rec, err := env.svc.EndSleep(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, rec.Duration())

	assert.Equal(t, scheduler.Unset, env.state(t, 1, domain.KindWakeup))
	assert.Equal(t, scheduler.Armed, env.state(t, 1, domain.KindBedtime))

	awake, err := env.svc.IsAwake(ctx, 1)
	require.NoError(t, err)
	assert.True(t, awake)
}

func TestWakeupReminder_SuppressedAfterWakingUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, 1)

	_, err := env.svc.StartSleep(ctx, u)
	require.NoError(t, err)
	env.now = env.now.Add(2 * time.Hour)
	_, err = env.svc.EndSleep(ctx, u)
	require.NoError(t, err)

	// Fire time of the dropped reminder.
	env.now = time.Date(2024, 1, 2, 4, 31, 0, 0, time.UTC)
	n, err := env.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A late handler call after waking up still sends nothing.
	require.NoError(t, env.svc.RemindWakeup(ctx, 1))
	assert.Empty(t, env.notifier.sent)
}

func TestWakeupReminder_SentWhileAsleep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, 1)

	_, err := env.svc.StartSleep(ctx, u)
	require.NoError(t, err)

	env.now = env.now.Add(domain.SleepDurationEstimate + time.Minute)
	n, err := env.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, env.notifier.sent, 1)
	got := env.notifier.sent[0]
	assert.Equal(t, int64(1), got.userID)
	assert.Equal(t, wakeupText, got.n.Text)
	assert.True(t, got.n.Silent)
	assert.Equal(t, ActionNone, got.n.Action)
	assert.Equal(t, scheduler.Unset, env.state(t, 1, domain.KindWakeup))
}

func TestBedtimeReminder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, 1)

	require.NoError(t, env.svc.RemindBedtime(ctx, 1))
	require.Len(t, env.notifier.sent, 1)
	assert.False(t, env.notifier.sent[0].n.Silent)
	assert.Equal(t, ActionSleep, env.notifier.sent[0].n.Action)
	assert.Equal(t, bedtimeText, env.notifier.sent[0].n.Text)

	dnd, err := env.svc.ToggleDoNotDisturb(ctx, u)
	require.NoError(t, err)
	assert.True(t, dnd)
	require.NoError(t, env.svc.RemindBedtime(ctx, 1))
	require.Len(t, env.notifier.sent, 2)
	assert.True(t, env.notifier.sent[1].n.Silent)

	_, err = env.svc.StartSleep(ctx, u)
	require.NoError(t, err)
	require.NoError(t, env.svc.RemindBedtime(ctx, 1))
	assert.Len(t, env.notifier.sent, 2)
}

func TestSetBedtime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, 1)

	_, err := env.svc.SetTimezone(ctx, u, "+2")
	require.NoError(t, err)

	_, err = env.svc.SetBedtime(ctx, u, "late")
	require.ErrorIs(t, err, domain.ErrInvalidFormat)
	assert.Equal(t, scheduler.Unset, env.state(t, 1, domain.KindBedtime))

	bt, err := env.svc.SetBedtime(ctx, u, "22:30")
	require.NoError(t, err)
	assert.Equal(t, "22:30", bt.String())

	jobs, err := env.repo.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 20, jobs[0].Trigger.Hour)
	assert.Equal(t, 30, jobs[0].Trigger.Minute)

	stored, err := env.repo.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stored.Bedtime)
	assert.Equal(t, domain.TimeOfDay{Hour: 22, Minute: 30}, *stored.Bedtime)

	bt, err = env.svc.SetBedtime(ctx, u, "24:15")
	require.NoError(t, err)
	assert.Equal(t, domain.TimeOfDay{Minute: 15}, bt)

	require.NoError(t, env.svc.ResetBedtime(ctx, u))
	assert.Equal(t, scheduler.Unset, env.state(t, 1, domain.KindBedtime))
	require.NoError(t, env.svc.ResetBedtime(ctx, u))
}

func TestSetTimezone_MovesBedtime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, 1)

	_, err := env.svc.SetBedtime(ctx, u, "22:00")
	require.NoError(t, err)

	_, err = env.svc.SetTimezone(ctx, u, "3")
	require.ErrorIs(t, err, domain.ErrInvalidFormat)

	off, err := env.svc.SetTimezone(ctx, u, "-3:30")
	require.NoError(t, err)
	assert.Equal(t, "-3:30", off.String())

	jobs, err := env.repo.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Trigger.Hour)
	assert.Equal(t, 30, jobs[0].Trigger.Minute)
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, 1)

	// Monday 23:00 to Tuesday 07:00, then Wednesday 00:30 to 06:30.
	for _, span := range [][2]time.Time{
		{time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 3, 0, 30, 0, 0, time.UTC), time.Date(2024, 1, 3, 6, 30, 0, 0, time.UTC)},
	} {
		env.now = span[0]
		_, err := env.svc.StartSleep(ctx, u)
		require.NoError(t, err)
		env.now = span[1]
		_, err = env.svc.EndSleep(ctx, u)
		require.NoError(t, err)
	}

	env.now = time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC)
	rep, err := env.svc.WeekReport(ctx, u, "!")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rep.Period.Start.UTC())
	require.Len(t, rep.Summaries, 2)
	assert.Equal(t, []time.Duration{8 * time.Hour, 6 * time.Hour}, rep.Buckets)
	assert.Equal(t, 7*time.Hour, rep.Average)

	prev, err := env.svc.WeekReport(ctx, u, "! -1")
	require.NoError(t, err)
	assert.True(t, prev.Empty())

	_, err = env.svc.WeekReport(ctx, u, "! soon")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	env.now = time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)
	month, err := env.svc.MonthReport(ctx, u, "!m -1")
	require.NoError(t, err)
	assert.Equal(t, time.January, month.Period.Start.Month())
	assert.Len(t, month.Summaries, 2)
	require.Len(t, month.Sections, 5)
	assert.Len(t, month.Sections[0].Summaries, 2)

	current, err := env.svc.MonthReport(ctx, u, "!m")
	require.NoError(t, err)
	assert.True(t, current.Empty())
}

func TestSetMoodAndSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, 1)

	_, err := env.svc.StartSleep(ctx, u)
	require.NoError(t, err)
	env.now = env.now.Add(7 * time.Hour)
	rec, err := env.svc.EndSleep(ctx, u)
	require.NoError(t, err)

	require.NoError(t, env.svc.SetMood(ctx, u, rec.ID, "sleepy", "😴"))
	require.NoError(t, env.svc.SetLanguage(ctx, u, "ru"))
	require.NoError(t, env.svc.MarkConversationStarted(ctx, u))

	stored, err := env.repo.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ru", stored.Language)
	assert.True(t, stored.ConversationStarted)

	list, err := env.repo.ListClosedRecords(ctx, 1, rec.CreatedAt, rec.CreatedAt.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "😴", list[0].Emoji)
}
