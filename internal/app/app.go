// Package app assembles the process: config, logging, store, checkpoints,
// stats, the notification engine with its live feed, the scheduler and the
// HTTP server, plus config hot-reload fan-out.
package app

import (
	"context"
	"sync"
	"time"

	"folionotify/internal/checkpoint"
	"folionotify/internal/config"
	"folionotify/internal/eventbus"
	"folionotify/internal/mailer"
	"folionotify/internal/notify"
	"folionotify/internal/scheduler"
	"folionotify/internal/stats"
	"folionotify/internal/store"
	"folionotify/internal/web"
	"folionotify/pkg/logx"
)

const defaultCheckpointPath = "./data/checkpoints.json"

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	bus     eventbus.Bus
	records notify.Store
	cps     *checkpoint.Store
	tracker *stats.Tracker

	engine   *notify.Service
	feed     *notify.Feed
	sched    *scheduler.Service
	registry *web.Registry
	srv      *web.Server

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	records, err := store.Open(store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")), bus)
	if err != nil {
		return nil, err
	}

	cpPath := cfg.Checkpoint.Path
	if cpPath == "" {
		cpPath = defaultCheckpointPath
	}
	cps, err := checkpoint.Open(cpPath, log.With(logx.String("comp", "checkpoint")))
	if err != nil {
		return nil, err
	}

	tracker := stats.NewTracker(cps, log.With(logx.String("comp", "stats")), stats.Thresholds{
		ResponseTimeMs: cfg.Stats.ResponseTimeMs,
		ErrorRatePct:   cfg.Stats.ErrorRatePct,
	})

	schedCfg, err := schedulerConfig(cfg.Scheduler)
	if err != nil {
		return nil, err
	}

	engine := notify.NewService(records, cps, tracker,
		log.With(logx.String("comp", "notify")), notify.Config{
			Milestones:        cfg.Notifications.Milestones,
			SummaryPeriod:     schedCfg.SummaryPeriod,
			PerformancePeriod: schedCfg.PerformancePeriod,
		})

	feed := notify.NewFeed(records, log.With(logx.String("comp", "feed")), cfg.Notifications.FeedLimit)

	sched := scheduler.New(schedCfg, engine, bus, log.With(logx.String("comp", "scheduler")))

	registry := web.NewRegistry(cfg.Projects)
	tracker.SetProjectCounts(registry.Counts())

	var mailCfg mailer.Config
	if cfg.Mailer != nil {
		mailCfg = mailer.Config{
			Enabled:    cfg.Mailer.Enabled,
			Endpoint:   cfg.Mailer.Endpoint,
			APIKey:     cfg.Mailer.APIKey,
			From:       cfg.Mailer.From,
			To:         cfg.Mailer.To,
			RatePerMin: cfg.Mailer.RatePerMin,
		}
	}
	mail := mailer.New(mailCfg, log.With(logx.String("comp", "mailer")))

	srv := web.New(cfg.Web, engine, feed, tracker, registry, mail,
		log.With(logx.String("comp", "web")))

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		records:  records,
		cps:      cps,
		tracker:  tracker,
		engine:   engine,
		feed:     feed,
		sched:    sched,
		registry: registry,
		srv:      srv,
	}, nil
}

func schedulerConfig(c config.SchedulerConfig) (scheduler.Config, error) {
	startDelay, err := config.ParseDurationOrDefault("scheduler.start_delay", c.StartDelay, 3*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	summary, err := config.ParseDurationOrDefault("scheduler.summary_period", c.SummaryPeriod, 24*time.Hour)
	if err != nil {
		return scheduler.Config{}, err
	}
	performance, err := config.ParseDurationOrDefault("scheduler.performance_period", c.PerformancePeriod, time.Hour)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:           c.Enabled,
		StartDelay:        startDelay,
		SummaryPeriod:     summary,
		PerformancePeriod: performance,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.runCancel = context.WithCancel(ctx)

	if err := a.feed.Start(); err != nil {
		return err
	}

	if a.sched.Enabled() {
		a.sched.Start(a.runCtx)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.srv.Start(); err != nil {
			a.log.Error("http server failed", logx.Err(err))
			a.runCancel()
		}
	}()

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-a.runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(newCfg)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(a.runCtx); err != nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

// applyConfig applies the hot-reloadable sections of a committed config:
// logging and the scheduler. Store, web and mailer changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	prevEnabled := a.sched.Enabled()
	schedCfg, err := schedulerConfig(cfg.Scheduler)
	if err != nil {
		a.log.Warn("invalid scheduler config on reload, keeping current", logx.Err(err))
		return
	}
	a.sched.Apply(schedCfg)
	if !prevEnabled && schedCfg.Enabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(a.runCtx)
	} else if prevEnabled && !schedCfg.Enabled {
		a.log.Info("scheduler disabled via config")
	}

	a.log.Info("config applied")
}

// Stop shuts components down in dependency order: HTTP first so no new
// mutations arrive, then scheduler, feed and store.
func (a *App) Stop(ctx context.Context) error {
	if a.runCancel != nil {
		a.runCancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown error", logx.Err(err))
	}

	a.sched.Stop()
	a.feed.Stop()

	if err := a.records.Close(); err != nil {
		a.log.Warn("store close error", logx.Err(err))
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("stop deadline reached before all loops exited")
	}

	a.log.Info("stopped")
	return a.logs.Close()
}
