package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"folionotify/pkg/logx"
)

// defaultMilestones is the fixed ascending view-count set. Membership is
// exact: a batched increment that crosses a milestone without landing on it
// does not fire.
var defaultMilestones = []int{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

func (s *Service) isMilestone(count int) bool {
	_, ok := s.milestones[count]
	return ok
}

// performanceSeen reports whether a performance record with the same
// (metric, value) pair already exists. Errors propagate so callers fail
// closed instead of double-inserting.
func (s *Service) performanceSeen(ctx context.Context, metric string, value float64) (bool, error) {
	recs, err := s.store.QueryByField(ctx,
		FieldEq{Field: "category", Value: string(CategoryPerformance)},
		FieldEq{Field: "metadata.metric", Value: metric},
		FieldEq{Field: "metadata.value", Value: value},
	)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// RunDailySummary creates at most one summary record per calendar day.
//
// Two-level guard: the local checkpoint short-circuits without touching the
// store; when it is stale or missing, the store is asked for a summary dated
// today (covers other processes and a cleared checkpoint file). The
// checkpoint is advanced unconditionally afterwards, even on failure, so a
// persistently failing check does not retry on every start.
func (s *Service) RunDailySummary(ctx context.Context, now time.Time) error {
	today := now.Format(dateLayout)
	if v, ok := s.cps.Get(checkpointDailySummary); ok && v == today {
		return nil
	}

	err := s.createDailySummary(ctx, now, today)

	if cerr := s.cps.Set(checkpointDailySummary, today); cerr != nil {
		s.log.Warn("daily summary checkpoint write failed", logx.Err(cerr))
	}
	return err
}

func (s *Service) createDailySummary(ctx context.Context, now time.Time, today string) error {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	existing, err := s.store.QuerySince(ctx, CategorySummary, midnight)
	if err != nil {
		// Fail closed: without the existence check we might duplicate.
		return fmt.Errorf("daily summary lookup: %w", err)
	}
	if len(existing) > 0 {
		s.log.Debug("daily summary already present", logx.String("date", today))
		return nil
	}

	if s.stats == nil {
		return errors.New("daily summary: no stats source configured")
	}
	snap, err := s.stats.ActivitySnapshot(ctx)
	if err != nil {
		return fmt.Errorf("daily summary snapshot: %w", err)
	}
	snap.Date = today
	if _, err := s.NotifyActivitySummary(ctx, snap); err != nil {
		return err
	}
	return nil
}

// RunPerformanceCheck evaluates the current performance samples when at least
// PerformancePeriod has elapsed since the last run. Individual sample
// failures are collected rather than aborting the batch; the checkpoint
// advances regardless.
func (s *Service) RunPerformanceCheck(ctx context.Context, now time.Time) error {
	if v, ok := s.cps.Get(checkpointPerformance); ok {
		if last, perr := time.Parse(time.RFC3339, v); perr == nil {
			if now.Sub(last) < s.cfg.PerformancePeriod {
				return nil
			}
		}
	}

	err := s.evaluatePerformance(ctx)

	if cerr := s.cps.Set(checkpointPerformance, now.Format(time.RFC3339)); cerr != nil {
		s.log.Warn("performance checkpoint write failed", logx.Err(cerr))
	}
	return err
}

func (s *Service) evaluatePerformance(ctx context.Context) error {
	if s.stats == nil {
		return errors.New("performance check: no stats source configured")
	}
	samples, err := s.stats.PerformanceSamples(ctx)
	if err != nil {
		return fmt.Errorf("performance samples: %w", err)
	}

	var errs []error
	for _, sample := range samples {
		if _, err := s.NotifyPerformance(ctx, sample); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sample.Metric, err))
		}
	}
	return errors.Join(errs...)
}
