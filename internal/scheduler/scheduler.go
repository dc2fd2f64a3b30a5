// Package scheduler keeps one bedtime and one wake-up reminder job per user
// in the durable job store and dispatches them when they come due.
package scheduler

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
	ErrNoHandler      = errors.New("no handler registered for job kind")
	ErrTriggerExpired = errors.New("trigger will never fire")

	errOrphanJob = errors.New("job has no reminder row")
)

// Handler delivers a reminder of one kind to a user.
type Handler func(ctx context.Context, userID int64) error

// State is the reminder state of one (user, kind) pair.
type State int

const (
	Unset State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "unset"
}

// Config holds scheduler settings.
type Config struct {
	Location     *time.Location // reference timezone for daily triggers
	PollInterval time.Duration
	MisfireGrace time.Duration // due jobs later than this are dropped
	BatchSize    int
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Location:     time.UTC,
		PollInterval: 15 * time.Second,
		MisfireGrace: 5 * time.Minute,
		BatchSize:    100,
	}
}

type binding struct {
	kind   domain.JobKind
	userID int64
	fn     Handler
}

// Scheduler polls the job store and dispatches due reminders.
// Jobs are bound to live handlers by kind; Start rebinds every persisted
// job before the first dispatch.
type Scheduler struct {
	repo store.JobRepo
	log  *zap.Logger
	cfg  Config
	now  func() time.Time

	mu       sync.Mutex
	handlers map[domain.JobKind]Handler
	bindings map[string]binding
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler. Zero config fields take their defaults.
func New(repo store.JobRepo, log *zap.Logger, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = def.MisfireGrace
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Scheduler{
		repo:     repo,
		log:      log.Named("scheduler"),
		cfg:      cfg,
		now:      time.Now,
		handlers: make(map[domain.JobKind]Handler),
		bindings: make(map[string]binding),
	}
}

// Location returns the reference timezone for daily triggers.
func (s *Scheduler) Location() *time.Location { return s.cfg.Location }

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Register sets the handler for a job kind. Call before Start.
func (s *Scheduler) Register(kind domain.JobKind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// Start rebinds persisted jobs and then begins the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	n, err := s.Rebind(ctx)
	if err != nil {
		return fmt.Errorf("rebind jobs: %w", err)
	}

	s.mu.Lock()
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info("scheduler started",
		zap.Int("jobs", n),
		zap.Duration("poll", s.cfg.PollInterval),
		zap.String("tz", s.cfg.Location.String()),
	)
	return nil
}

// Shutdown stops the dispatch loop and waits for it to exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Running reports whether the dispatch loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Rebind points every persisted reminder job at the live handler for its
// kind and removes jobs that no reminder row references.
func (s *Scheduler) Rebind(ctx context.Context) (int, error) {
	reminders, err := s.repo.ListReminders(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	bindings := make(map[string]binding, len(reminders))
	for _, rj := range reminders {
		h, ok := s.handlers[rj.Kind]
		if !ok {
			s.mu.Unlock()
			return 0, fmt.Errorf("%w: %s", ErrNoHandler, rj.Kind)
		}
		bindings[rj.JobID] = binding{kind: rj.Kind, userID: rj.UserID, fn: h}
	}
	s.mu.Unlock()

	jobs, err := s.repo.ListJobs(ctx)
	if err != nil {
		return 0, err
	}
	for _, j := range jobs {
		if _, ok := bindings[j.ID]; ok {
			continue
		}
		s.log.Warn("removing orphan job",
			zap.String("job_id", j.ID),
			zap.Int64("user_id", j.UserID),
			zap.String("kind", string(j.Kind)),
		)
		if err := s.repo.RemoveJob(ctx, j.ID); err != nil && !errors.Is(err, store.ErrJobNotFound) {
			return 0, err
		}
	}

	s.mu.Lock()
	s.bindings = bindings
	s.mu.Unlock()
	return len(bindings), nil
}

// State returns the reminder state for (user, kind) and the job id when armed.
func (s *Scheduler) State(ctx context.Context, userID int64, kind domain.JobKind) (State, string, error) {
	rj, err := s.repo.GetReminder(ctx, userID, kind)
	if errors.Is(err, store.ErrNotFound) {
		return Unset, "", nil
	}
	if err != nil {
		return Unset, "", err
	}
	return Armed, rj.JobID, nil
}

// ArmDaily arms a reminder firing every day at t in userLoc. The time is
// converted into the scheduler's reference timezone.
func (s *Scheduler) ArmDaily(ctx context.Context, userID int64, kind domain.JobKind, t domain.TimeOfDay, userLoc *time.Location) (string, error) {
	return s.Arm(ctx, userID, kind, domain.DailyAt(t, userLoc, s.cfg.Location, s.now()))
}

// ArmOnce arms a reminder firing once at at and dropped after window.
func (s *Scheduler) ArmOnce(ctx context.Context, userID int64, kind domain.JobKind, at time.Time, window time.Duration) (string, error) {
	return s.Arm(ctx, userID, kind, domain.OnceAt(at, window))
}

// Arm creates the (user, kind) job or reschedules the existing one in place.
// Either way exactly one job remains and its id is returned.
func (s *Scheduler) Arm(ctx context.Context, userID int64, kind domain.JobKind, trigger domain.Trigger) (string, error) {
	h, err := s.handler(kind)
	if err != nil {
		return "", err
	}
	next, ok := trigger.First(s.now())
	if !ok {
		return "", ErrTriggerExpired
	}

	log := s.log.With(zap.Int64("user_id", userID), zap.String("kind", string(kind)))

	rj, err := s.repo.GetReminder(ctx, userID, kind)
	switch {
	case err == nil:
		if err := s.repo.RescheduleJob(ctx, rj.JobID, trigger, next); err != nil {
			log.Error("reschedule failed, needs reconciliation",
				zap.String("job_id", rj.JobID), zap.Error(err))
			return "", fmt.Errorf("reschedule %s job %s: %w", kind, rj.JobID, err)
		}
		s.bind(rj.JobID, binding{kind: kind, userID: userID, fn: h})
		log.Info("reminder rescheduled",
			zap.String("job_id", rj.JobID),
			zap.String("trigger", trigger.String()),
			zap.Time("next", next),
		)
		return rj.JobID, nil

	case errors.Is(err, store.ErrNotFound):
		job := &domain.Job{Kind: kind, UserID: userID, Trigger: trigger, NextRunAt: next}
		if err := s.repo.InsertJob(ctx, job); err != nil {
			return "", fmt.Errorf("add %s job: %w", kind, err)
		}
		s.bind(job.ID, binding{kind: kind, userID: userID, fn: h})
		log.Info("reminder armed",
			zap.String("job_id", job.ID),
			zap.String("trigger", trigger.String()),
			zap.Time("next", next),
		)
		return job.ID, nil

	default:
		return "", err
	}
}

// Disarm removes the (user, kind) job and its reminder row. It is a no-op
// when nothing is armed.
func (s *Scheduler) Disarm(ctx context.Context, userID int64, kind domain.JobKind) error {
	rj, err := s.repo.GetReminder(ctx, userID, kind)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.repo.RemoveJob(ctx, rj.JobID); err != nil {
		s.log.Error("remove job failed, needs reconciliation",
			zap.Int64("user_id", userID),
			zap.String("kind", string(kind)),
			zap.String("job_id", rj.JobID),
			zap.Error(err),
		)
		return fmt.Errorf("remove %s job %s: %w", kind, rj.JobID, err)
	}
	s.unbind(rj.JobID)
	s.log.Info("reminder disarmed",
		zap.Int64("user_id", userID),
		zap.String("kind", string(kind)),
		zap.String("job_id", rj.JobID),
	)
	return nil
}

// RunOnce dispatches all due jobs once and returns how many handlers ran
// successfully.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	jobs, err := s.repo.DueJobs(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, j := range jobs {
		if s.dispatch(ctx, j, now) {
			fired++
		}
	}
	return fired, nil
}

// dispatch fires a single due job unless it misfired, then advances or
// drops it. Delivery failures are logged and not retried.
func (s *Scheduler) dispatch(ctx context.Context, j domain.Job, now time.Time) bool {
	log := s.log.With(
		zap.String("job_id", j.ID),
		zap.Int64("user_id", j.UserID),
		zap.String("kind", string(j.Kind)),
	)

	b, err := s.bindingFor(ctx, j)
	if errors.Is(err, errOrphanJob) {
		log.Warn("removing orphan job")
		s.finish(ctx, log, j)
		return false
	}

	fired := false
	switch late := now.Sub(j.NextRunAt); {
	case err != nil:
		log.Error("cannot resolve job handler, skipping run", zap.Error(err))
	case j.Trigger.Expired(now):
		log.Info("reminder expired before delivery", zap.Duration("late", late))
	case late > s.cfg.MisfireGrace:
		log.Warn("reminder misfired", zap.Duration("late", late))
	default:
		if err := b.fn(ctx, b.userID); err != nil {
			log.Error("reminder delivery failed", zap.Error(err))
		} else {
			fired = true
		}
	}

	s.settle(ctx, log, j, now)
	return fired
}

// bindingFor returns the live binding of j. A job bound by neither Rebind nor
// Arm yet is bound here when its reminder row still points at it.
func (s *Scheduler) bindingFor(ctx context.Context, j domain.Job) (binding, error) {
	if b, ok := s.lookup(j.ID); ok {
		return b, nil
	}
	rj, err := s.repo.GetReminder(ctx, j.UserID, j.Kind)
	if errors.Is(err, store.ErrNotFound) || (err == nil && rj.JobID != j.ID) {
		return binding{}, errOrphanJob
	}
	if err != nil {
		return binding{}, err
	}
	h, err := s.handler(j.Kind)
	if err != nil {
		return binding{}, err
	}
	b := binding{kind: j.Kind, userID: j.UserID, fn: h}
	s.bind(j.ID, b)
	return b, nil
}

// settle advances j past now or removes it once it will not fire again.
// The write only applies while next_run_at is still the value j was loaded
// with; a reschedule made while the job fired wins.
func (s *Scheduler) settle(ctx context.Context, log *zap.Logger, j domain.Job, now time.Time) {
	next, ok := j.Trigger.Next(now)
	if !ok {
		s.finish(ctx, log, j)
		return
	}
	err := s.repo.AdvanceJob(ctx, j.ID, j.NextRunAt, next)
	switch {
	case errors.Is(err, store.ErrJobChanged):
		log.Info("job rescheduled while firing, keeping new schedule")
	case err != nil && !errors.Is(err, store.ErrJobNotFound):
		log.Error("advance job failed", zap.Error(err))
	}
}

// finish removes j unless it was rescheduled after it came due.
func (s *Scheduler) finish(ctx context.Context, log *zap.Logger, j domain.Job) {
	err := s.repo.RemoveDueJob(ctx, j.ID, j.NextRunAt)
	switch {
	case err == nil, errors.Is(err, store.ErrJobNotFound):
		s.unbind(j.ID)
	case errors.Is(err, store.ErrJobChanged):
		log.Info("job rescheduled while firing, keeping new schedule")
	default:
		log.Error("remove finished job failed", zap.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error("dispatch cycle failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Debug("reminders dispatched", zap.Int("count", n))
	}
}

func (s *Scheduler) handler(kind domain.JobKind) (Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}
	return h, nil
}

func (s *Scheduler) bind(jobID string, b binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[jobID] = b
}

func (s *Scheduler) unbind(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, jobID)
}

func (s *Scheduler) lookup(jobID string) (binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[jobID]
	return b, ok
}
