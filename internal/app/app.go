// Package app wires the process together: config, logging, storage, state,
// the reminder and to-do services, the sweeper, the Telegram transport and
// the operational HTTP server.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"

	"remindbot/internal/config"
	"remindbot/internal/domain"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/router"
	"remindbot/internal/state"
	"remindbot/internal/storage"
	"remindbot/internal/sweeper"
	"remindbot/internal/todo"
	telegram "remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	loc  *time.Location

	logMu sync.Mutex
	log   logx.Logger

	store storage.Store
	st    *state.State

	bot   *telegram.Bot
	notif *notifier.Service
	rems  *reminder.Service
	todos *todo.Service
	sweep *sweeper.Service

	http *httpServer

	cancel context.CancelFunc
}

// New builds the whole object graph from the config file. Nothing starts
// running until Start.
func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")
	cfgm := config.NewManager(cfgPath, bootLog.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	tz := cfg.Reminder.Timezone
	if tz == "" {
		tz = domain.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	busyTimeout, err := cfg.StorageBusyTimeout()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	clk := clock.New()
	st := state.New(store, clk, log.With(logx.String("comp", "state")))

	pollTimeout, err := cfg.PollTimeout()
	if err != nil {
		return nil, err
	}
	bot, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	notif := notifier.New(notifier.Config{RatePerSec: cfg.Reminder.PushRatePerSec},
		bot, log.With(logx.String("comp", "notifier")))

	rems := reminder.NewService(st, reminder.NewRegistry(), notif, clk, loc,
		log.With(logx.String("comp", "reminder")))
	todos := todo.NewService(st, clk, loc, log.With(logx.String("comp", "todo")))
	sweep := sweeper.New(st, rems, todos, notif, clk, loc,
		log.With(logx.String("comp", "sweeper")))

	rtr := router.New(st, rems, todos, clk, loc, log.With(logx.String("comp", "router")))
	bot.SetDispatcher(rtr)

	a := &App{
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		loc:   loc,
		store: store,
		st:    st,
		bot:   bot,
		notif: notif,
		rems:  rems,
		todos: todos,
		sweep: sweep,
	}
	if cfg.HTTP.Enabled {
		a.http = newHTTPServer(cfg.HTTPAddr(), a, log.With(logx.String("comp", "http")))
	}
	return a, nil
}

// logger returns the current app-scope logger; applyConfigUpdates may swap
// its level while the process runs.
func (a *App) logger() logx.Logger {
	a.logMu.Lock()
	defer a.logMu.Unlock()
	return a.log
}

// Start loads persisted state, reconciles timers, and brings every service
// up. Returns once the process is serving; runs until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.st.Load(ctx); err != nil {
		// Start with an empty state rather than refusing to run.
		a.log.Error("state load failed, starting empty", logx.Err(err))
	}
	stats := a.rems.Recover(ctx)
	a.log.Info("startup recovery",
		logx.Int("restored", stats.Restored),
		logx.Int("pruned", stats.Pruned),
		logx.Int("overdue", stats.Overdue))

	if err := a.sweep.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	a.bot.Start(ctx)
	if a.http != nil {
		a.http.Start(ctx)
	}

	go func() {
		if err := a.cfgm.Watch(ctx); err != nil {
			a.logger().Warn("config watch exited", logx.Err(err))
		}
	}()
	go a.applyConfigUpdates(ctx)

	a.logger().Info("started",
		logx.String("tz", a.loc.String()),
		logx.Int("users", a.st.UserCount()),
		logx.Int("timers", a.rems.Registry().Size()))
	return nil
}

// applyConfigUpdates consumes validated hot-reload updates. Only the log
// level applies live; transport and storage changes need a restart.
func (a *App) applyConfigUpdates(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logMu.Lock()
			a.log = a.log.SetLevel(cfg.Logging.Level)
			a.logMu.Unlock()
			a.logger().Info("config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// Stop shuts the services down in reverse start order and persists a final
// snapshot. Bounded by ctx.
func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.bot.Stop(ctx)
	a.sweep.Stop(ctx)
	if a.http != nil {
		a.http.Stop(ctx)
	}
	a.rems.Registry().CancelAll()

	if err := a.st.SaveAll(ctx); err != nil {
		a.logger().Error("final snapshot failed", logx.Err(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger().Warn("storage close failed", logx.Err(err))
	}
	log := a.logger()
	log.Info("stopped")
	_ = log.Close()
}

// Health is the snapshot served by the HTTP health endpoint.
type Health struct {
	Users           int       `json:"users"`
	ActiveReminders int       `json:"active_reminders"`
	Time            time.Time `json:"time"`
}

func (a *App) Health() Health {
	return Health{
		Users:           a.st.UserCount(),
		ActiveReminders: a.rems.Registry().Size(),
		Time:            time.Now().In(a.loc),
	}
}
