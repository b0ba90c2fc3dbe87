package notify

import (
	"context"
	"fmt"
	"time"

	"folionotify/pkg/logx"
)

// Checkpoint keys. The value formats differ on purpose: the daily check is
// calendar-gated (one per local day), the performance check is elapsed-gated.
const (
	checkpointDailySummary = "lastDailySummary"
	checkpointPerformance  = "lastPerformanceCheck"

	dateLayout = "2006-01-02"
)

// Config controls the notification engine.
type Config struct {
	// Milestones is the ascending view-count set that fires a milestone
	// notification on exact match. Empty means the default set.
	Milestones []int

	// SummaryPeriod and PerformancePeriod gate the periodic checks.
	SummaryPeriod     time.Duration // default 24h
	PerformancePeriod time.Duration // default 1h
}

func (c Config) withDefaults() Config {
	if len(c.Milestones) == 0 {
		c.Milestones = defaultMilestones
	}
	if c.SummaryPeriod <= 0 {
		c.SummaryPeriod = 24 * time.Hour
	}
	if c.PerformancePeriod <= 0 {
		c.PerformancePeriod = time.Hour
	}
	return c
}

// Service is the notification factory plus the gates that decide whether a
// factory fires. It is stateless apart from its injected collaborators and
// safe for concurrent use.
type Service struct {
	store Store
	cps   Checkpoints
	stats StatsSource
	log   logx.Logger

	cfg        Config
	milestones map[int]struct{}
}

// NewService wires the engine. stats may be nil when no periodic checks are
// scheduled (e.g. in tests exercising only the factories).
func NewService(store Store, cps Checkpoints, stats StatsSource, log logx.Logger, cfg Config) *Service {
	cfg = cfg.withDefaults()
	ms := make(map[int]struct{}, len(cfg.Milestones))
	for _, m := range cfg.Milestones {
		ms[m] = struct{}{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:      store,
		cps:        cps,
		stats:      stats,
		log:        log,
		cfg:        cfg,
		milestones: ms,
	}
}

// insert persists a factory-built record. Store failures are logged here and
// returned to the caller; user-triggered paths surface them, scheduler paths
// catch them.
func (s *Service) insert(ctx context.Context, rec Record) (*Record, error) {
	out, err := s.store.Insert(ctx, rec)
	if err != nil {
		s.log.Error("notification insert failed",
			logx.String("category", string(rec.Category)),
			logx.Err(err))
		return nil, fmt.Errorf("insert %s notification: %w", rec.Category, err)
	}
	s.log.Debug("notification created",
		logx.String("id", out.ID),
		logx.String("category", string(out.Category)),
		logx.String("type", string(out.Type)))
	return &out, nil
}
