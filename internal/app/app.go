package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eyev0/wakeupbot/internal/config"
	"github.com/eyev0/wakeupbot/internal/domain"
	"github.com/eyev0/wakeupbot/internal/scheduler"
	"github.com/eyev0/wakeupbot/internal/store"
	"github.com/eyev0/wakeupbot/internal/telegram"
	"github.com/eyev0/wakeupbot/internal/tracker"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	sched   *scheduler.Scheduler
	router  *telegram.Router
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	a := &App{cfg: cfg, log: log, bot: bot}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthz)
	a.httpSrv = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	return a, nil
}

// healthz reports 503 until the scheduler has rebound its jobs.
func (a *App) healthz(w http.ResponseWriter, _ *http.Request) {
	if a.sched == nil || !a.sched.Running() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting wakeupbot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("scheduler_tz", a.cfg.SchedulerLocation.String()),
	)

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	defer func() { _ = a.repo.Close() }()
	a.log.Info("sqlite ready")

	a.sched = scheduler.New(repo, a.log, scheduler.Config{
		Location:     a.cfg.SchedulerLocation,
		PollInterval: a.cfg.PollInterval,
		MisfireGrace: a.cfg.MisfireGrace,
	})
	svc := tracker.New(repo, a.sched, nil, a.log, a.cfg.DefaultOffset)
	a.router = telegram.NewRouter(a.bot, a.log, svc)
	svc.SetNotifier(a.router)

	a.sched.Register(domain.KindBedtime, svc.RemindBedtime)
	a.sched.Register(domain.KindWakeup, svc.RemindWakeup)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Rebind persisted jobs before any update or reminder is processed.
	if err := a.sched.Start(ctx); err != nil {
		a.log.Error("scheduler start failed", zap.Error(err))
		return err
	}
	defer a.sched.Shutdown()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shCtx); err != nil {
			a.log.Warn("http server shutdown error", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updCh := a.bot.GetUpdatesChan(u)
		defer a.bot.StopReceivingUpdates()

		// Updates are handled one at a time, preserving per-user arrival order.
		for {
			select {
			case <-gctx.Done():
				return nil
			case upd := <-updCh:
				a.router.HandleUpdate(gctx, upd)
			}
		}
	})

	return g.Wait()
}
