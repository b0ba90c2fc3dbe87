// Package scheduler drives the periodic notification checks for as long as
// the process lives. It is deliberately best-effort: when the app is down
// nothing runs, and when several instances share a host the checkpoint file
// plus the store-level dedup queries keep records from duplicating.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"folionotify/internal/eventbus"
	"folionotify/internal/notify"
	"folionotify/pkg/logx"
)

type Config struct {
	Enabled bool

	// StartDelay debounces the boot-time checks so a restart loop does not
	// hammer the store. Default 3s.
	StartDelay time.Duration

	// SummaryPeriod and PerformancePeriod drive the fallback tickers that
	// cover long-lived processes. Defaults 24h and 1h. The engine applies
	// its own checkpoint gate on top, so firing early is harmless.
	SummaryPeriod     time.Duration
	PerformancePeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.StartDelay <= 0 {
		c.StartDelay = 3 * time.Second
	}
	if c.SummaryPeriod <= 0 {
		c.SummaryPeriod = 24 * time.Hour
	}
	if c.PerformancePeriod <= 0 {
		c.PerformancePeriod = time.Hour
	}
	return c
}

type Service struct {
	log    logx.Logger
	engine *notify.Service
	bus    eventbus.Bus

	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	timers []*time.Timer

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, engine *notify.Service, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), engine: engine, bus: bus, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config. Period changes take effect on the next Start;
// disabling stops a running scheduler.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	running := s.c != nil
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()

	if running && !cfg.Enabled {
		s.Stop()
	}
}

// Start arms the boot-time debounce timers and the recurring fallback
// tickers. Idempotent while running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}

	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	_ = ctx // timers outlive the caller's ctx; Stop() owns cancellation

	// Boot-time checks, staggered so they never contend on the store.
	s.timers = append(s.timers,
		time.AfterFunc(s.cfg.StartDelay, func() { s.runDaily() }),
		time.AfterFunc(s.cfg.StartDelay+2*time.Second, func() { s.runPerformance() }),
	)

	c := cron.New()
	_, _ = c.AddFunc("@every "+s.cfg.SummaryPeriod.String(), s.runDaily)
	_, _ = c.AddFunc("@every "+s.cfg.PerformancePeriod.String(), s.runPerformance)
	c.Start()
	s.c = c

	s.log.Info("scheduler started",
		logx.Duration("summary_period", s.cfg.SummaryPeriod),
		logx.Duration("performance_period", s.cfg.PerformancePeriod))
}

// Stop cancels pending timers and tickers. In-flight checks are not
// cancelled; they finish on their own (fire-and-forget).
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	timers := s.timers
	s.timers = nil
	cancel := s.runCancel
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	for _, t := range timers {
		_ = t.Stop()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	if cancel != nil {
		// Only future runs observe this; issued store requests complete.
		cancel()
	}
	s.log.Info("scheduler stopped")
}

// runDaily and runPerformance are the scheduler-side call sites: errors are
// caught and logged here, never surfaced, so one failed check does not break
// the loop.
func (s *Service) runDaily() {
	ctx := s.currentCtx()
	if ctx == nil {
		return
	}
	err := s.engine.RunDailySummary(ctx, time.Now())
	if err != nil {
		s.log.Warn("daily summary check failed", logx.Err(err))
	}
	s.publishRan("daily_summary", err)
}

func (s *Service) runPerformance() {
	ctx := s.currentCtx()
	if ctx == nil {
		return
	}
	err := s.engine.RunPerformanceCheck(ctx, time.Now())
	if err != nil {
		s.log.Warn("performance check failed", logx.Err(err))
	}
	s.publishRan("performance", err)
}

func (s *Service) currentCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCtx
}

func (s *Service) publishRan(kind string, err error) {
	if s.bus == nil {
		return
	}
	data := map[string]any{"check": kind, "ok": err == nil}
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicCheckRan, Data: data})
}
