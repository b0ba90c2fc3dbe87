// Package stats accumulates the site activity the periodic checks report
// on: per-project view counts (the milestone input), contact message and
// request counters, and a request latency average.
package stats

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"folionotify/internal/notify"
	"folionotify/pkg/logx"
)

const countersKey = "statsCounters"

// Thresholds configure the hourly performance evaluation. Both metrics
// trend downward: lower is better.
type Thresholds struct {
	ResponseTimeMs float64 // default 500
	ErrorRatePct   float64 // default 5
}

func (t Thresholds) withDefaults() Thresholds {
	if t.ResponseTimeMs <= 0 {
		t.ResponseTimeMs = 500
	}
	if t.ErrorRatePct <= 0 {
		t.ErrorRatePct = 5
	}
	return t
}

// counters is the persisted slice of tracker state. Daily counters reset on
// date rollover; all-time view counts feed the milestone gate and must
// survive restarts, otherwise counts would re-cross milestones.
type counters struct {
	Date       string            `json:"date"`
	DailyViews map[string]int    `json:"dailyViews"`
	TotalViews map[string]int    `json:"totalViews"`
	Titles     map[string]string `json:"titles"`
	Messages   int               `json:"messages"`
}

// Tracker implements notify.StatsSource.
type Tracker struct {
	cps notify.Checkpoints
	log logx.Logger
	thr Thresholds

	mu sync.Mutex
	c  counters

	published int
	total     int

	requests int
	errors   int
	// latencyMs is an exponentially weighted moving average.
	latencyMs float64

	now func() time.Time
}

func NewTracker(cps notify.Checkpoints, log logx.Logger, thr Thresholds) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Tracker{
		cps: cps,
		log: log,
		thr: thr.withDefaults(),
		now: time.Now,
		c: counters{
			DailyViews: map[string]int{},
			TotalViews: map[string]int{},
			Titles:     map[string]string{},
		},
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	if t.cps == nil {
		return
	}
	raw, ok := t.cps.Get(countersKey)
	if !ok {
		return
	}
	var c counters
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.log.Warn("stats counters unreadable, starting empty", logx.Err(err))
		return
	}
	if c.DailyViews == nil {
		c.DailyViews = map[string]int{}
	}
	if c.TotalViews == nil {
		c.TotalViews = map[string]int{}
	}
	if c.Titles == nil {
		c.Titles = map[string]string{}
	}
	t.c = c
}

func (t *Tracker) saveLocked() {
	if t.cps == nil {
		return
	}
	b, err := json.Marshal(t.c)
	if err != nil {
		return
	}
	if err := t.cps.Set(countersKey, string(b)); err != nil {
		t.log.Warn("stats counters save failed", logx.Err(err))
	}
}

// rolloverLocked resets daily counters when the calendar day changes.
func (t *Tracker) rolloverLocked() {
	today := t.now().Format("2006-01-02")
	if t.c.Date == today {
		return
	}
	t.c.Date = today
	t.c.DailyViews = map[string]int{}
	t.c.Messages = 0
}

// RecordView bumps a project's counters and returns the new all-time count,
// which the caller feeds to the milestone gate.
func (t *Tracker) RecordView(projectID, title string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	t.c.DailyViews[projectID]++
	t.c.TotalViews[projectID]++
	if title != "" {
		t.c.Titles[projectID] = title
	}
	total := t.c.TotalViews[projectID]
	t.saveLocked()
	return total
}

func (t *Tracker) RecordMessage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	t.c.Messages++
	t.saveLocked()
}

// ObserveRequest feeds the latency average and error rate. Counters here
// are in-memory only; they describe the current process, not history.
func (t *Tracker) ObserveRequest(d time.Duration, isError bool) {
	ms := float64(d.Milliseconds())
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests++
	if isError {
		t.errors++
	}
	if t.requests == 1 {
		t.latencyMs = ms
	} else {
		t.latencyMs = t.latencyMs*0.9 + ms*0.1
	}
}

// SetProjectCounts records the published/total project ratio for the daily
// summary. The project registry calls this on startup and after toggles.
func (t *Tracker) SetProjectCounts(published, total int) {
	t.mu.Lock()
	t.published, t.total = published, total
	t.mu.Unlock()
}

func (t *Tracker) ActivitySnapshot(ctx context.Context) (notify.ActivitySnapshot, error) {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()

	views := 0
	topID, topViews := "", 0
	for id, n := range t.c.DailyViews {
		views += n
		if n > topViews {
			topID, topViews = id, n
		}
	}
	top := t.c.Titles[topID]

	return notify.ActivitySnapshot{
		Date:              t.c.Date,
		Views:             views,
		NewMessages:       t.c.Messages,
		PublishedProjects: t.published,
		TotalProjects:     t.total,
		TopProject:        top,
	}, nil
}

func (t *Tracker) PerformanceSamples(ctx context.Context) ([]notify.PerformanceSample, error) {
	_ = ctx
	t.mu.Lock()
	defer t.mu.Unlock()

	// Round to one decimal so identical readings dedup at the store.
	latency := round1(t.latencyMs)
	errRate := 0.0
	if t.requests > 0 {
		errRate = round1(float64(t.errors) / float64(t.requests) * 100)
	}

	return []notify.PerformanceSample{
		{Metric: "avg_response_ms", Value: latency, Threshold: t.thr.ResponseTimeMs, Trend: notify.TrendDown},
		{Metric: "error_rate_pct", Value: errRate, Threshold: t.thr.ErrorRatePct, Trend: notify.TrendDown},
	}, nil
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
