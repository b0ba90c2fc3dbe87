package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"folionotify/pkg/logx"
)

// fakeStore is an in-test Store with deterministic IDs and timestamps. It
// pushes the current newest-first list to subscribers after every mutation,
// matching the driver contract.
type fakeStore struct {
	mu   sync.Mutex
	recs []Record
	seq  int

	subs []sub

	insertErr error
	queryErr  error
}

type sub struct {
	limit int
	fn    func([]Record)
}

var fakeEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func (s *fakeStore) Insert(ctx context.Context, rec Record) (Record, error) {
	_ = ctx
	s.mu.Lock()
	if s.insertErr != nil {
		s.mu.Unlock()
		return Record{}, s.insertErr
	}
	s.seq++
	rec.ID = fmt.Sprintf("rec-%d", s.seq)
	rec.Read = false
	rec.CreatedAt = fakeEpoch.Add(time.Duration(s.seq) * time.Second)
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	s.push()
	return rec, nil
}

func (s *fakeStore) QueryByField(ctx context.Context, eqs ...FieldEq) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []Record
	for _, r := range s.recs {
		if fakeMatch(r, eqs) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) QueryRecent(ctx context.Context, limit int) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Record(nil), s.recs...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) QuerySince(ctx context.Context, cat Category, since time.Time) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []Record
	for _, r := range s.recs {
		if r.Category == cat && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) SetRead(ctx context.Context, id string, read bool) error {
	_ = ctx
	s.mu.Lock()
	found := false
	for i := range s.recs {
		if s.recs[i].ID == id {
			s.recs[i].Read = read
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return ErrNotFound
	}
	s.push()
	return nil
}

func (s *fakeStore) SetAllRead(ctx context.Context) (int, error) {
	_ = ctx
	s.mu.Lock()
	n := 0
	for i := range s.recs {
		if !s.recs[i].Read {
			s.recs[i].Read = true
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.push()
	}
	return n, nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	idx := -1
	for i := range s.recs {
		if s.recs[i].ID == id {
			idx = i
			break
		}
	}
	if idx >= 0 {
		s.recs = append(s.recs[:idx], s.recs[idx+1:]...)
	}
	s.mu.Unlock()
	if idx < 0 {
		return ErrNotFound
	}
	s.push()
	return nil
}

func (s *fakeStore) Subscribe(limit int, fn func([]Record)) (func(), error) {
	recs, err := s.QueryRecent(context.Background(), limit)
	if err != nil {
		return nil, err
	}
	fn(recs)
	s.mu.Lock()
	s.subs = append(s.subs, sub{limit: limit, fn: fn})
	s.mu.Unlock()
	return func() {}, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) push() {
	s.mu.Lock()
	subs := append([]sub(nil), s.subs...)
	s.mu.Unlock()
	for _, sb := range subs {
		recs, _ := s.QueryRecent(context.Background(), sb.limit)
		sb.fn(recs)
	}
}

func fakeMatch(r Record, eqs []FieldEq) bool {
	for _, eq := range eqs {
		if name, ok := strings.CutPrefix(eq.Field, "metadata."); ok {
			if !fakeMetaMatch(r.Metadata, name, eq.Value) {
				return false
			}
			continue
		}
		switch eq.Field {
		case "category":
			if string(r.Category) != fmt.Sprint(eq.Value) {
				return false
			}
		case "type":
			if string(r.Type) != fmt.Sprint(eq.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func fakeMetaMatch(meta Metadata, name string, want any) bool {
	if meta == nil {
		return false
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	got, ok := m[name]
	if !ok {
		return false
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

// fakeCheckpoints is an in-memory Checkpoints implementation.
type fakeCheckpoints struct {
	mu     sync.Mutex
	vals   map[string]string
	setErr error
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{vals: map[string]string{}}
}

func (c *fakeCheckpoints) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	return v, ok
}

func (c *fakeCheckpoints) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.vals[key] = value
	return nil
}

// fakeStats returns canned snapshot/sample data.
type fakeStats struct {
	snap    ActivitySnapshot
	samples []PerformanceSample

	snapErr    error
	samplesErr error
}

func (f *fakeStats) ActivitySnapshot(ctx context.Context) (ActivitySnapshot, error) {
	_ = ctx
	return f.snap, f.snapErr
}

func (f *fakeStats) PerformanceSamples(ctx context.Context) ([]PerformanceSample, error) {
	_ = ctx
	return f.samples, f.samplesErr
}

func newTestService(st *fakeStore, cps *fakeCheckpoints, stats StatsSource, cfg Config) *Service {
	return NewService(st, cps, stats, logx.Nop(), cfg)
}
