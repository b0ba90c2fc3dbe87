package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"folionotify/internal/eventbus"
	"folionotify/internal/notify"
	"folionotify/pkg/logx"
)

// memStore is the in-process driver. It mirrors the sqlite driver's
// semantics (store-assigned monotonic CreatedAt, bus publishes on mutation)
// so tests exercise the same contract the real store provides.
type memStore struct {
	log logx.Logger
	bus eventbus.Bus

	mu     sync.Mutex
	recs   []notify.Record
	lastAt time.Time
	closed bool

	// now is swappable in tests.
	now func() time.Time
}

// NewMemory returns an empty in-memory record store.
func NewMemory(bus eventbus.Bus, log logx.Logger) notify.Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &memStore{log: log, bus: bus, now: time.Now}
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memStore) Insert(ctx context.Context, rec notify.Record) (notify.Record, error) {
	_ = ctx
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return notify.Record{}, notify.ErrStoreClosed
	}
	rec.ID = uuid.New().String()
	rec.Read = false
	rec.CreatedAt = s.nextTimestampLocked()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Type: eventbus.TopicRecordInserted, Data: rec.ID})
	return rec, nil
}

// nextTimestampLocked assigns a strictly increasing creation time even when
// inserts land within the clock's resolution.
func (s *memStore) nextTimestampLocked() time.Time {
	now := s.now()
	if !now.After(s.lastAt) {
		now = s.lastAt.Add(time.Microsecond)
	}
	s.lastAt = now
	return now
}

func (s *memStore) QueryByField(ctx context.Context, eqs ...notify.FieldEq) ([]notify.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, notify.ErrStoreClosed
	}
	var out []notify.Record
	for _, r := range s.recs {
		if matchAll(r, eqs) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) QueryRecent(ctx context.Context, limit int) ([]notify.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, notify.ErrStoreClosed
	}
	out := append([]notify.Record(nil), s.recs...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) QuerySince(ctx context.Context, cat notify.Category, since time.Time) ([]notify.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, notify.ErrStoreClosed
	}
	var out []notify.Record
	for _, r := range s.recs {
		if r.Category == cat && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) SetRead(ctx context.Context, id string, read bool) error {
	_ = ctx
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return notify.ErrStoreClosed
	}
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
		return notify.ErrNotFound
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicRecordUpdated, Data: id})
	return nil
}

func (s *memStore) SetAllRead(ctx context.Context) (int, error) {
	_ = ctx
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, notify.ErrStoreClosed
	}
	n := 0
	for i := range s.recs {
		if !s.recs[i].Read {
			s.recs[i].Read = true
			n++
		}
	}
	s.mu.Unlock()

	if n > 0 {
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicRecordUpdated})
	}
	return n, nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return notify.ErrStoreClosed
	}
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
		return notify.ErrNotFound
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicRecordDeleted, Data: id})
	return nil
}

func (s *memStore) Subscribe(limit int, fn func([]notify.Record)) (func(), error) {
	return subscribeVia(s.bus, s.log, limit, func(limit int) ([]notify.Record, error) {
		return s.QueryRecent(context.Background(), limit)
	}, fn)
}

// matchAll evaluates equality predicates against record columns and
// metadata paths.
func matchAll(r notify.Record, eqs []notify.FieldEq) bool {
	for _, eq := range eqs {
		if !matchOne(r, eq) {
			return false
		}
	}
	return true
}

func matchOne(r notify.Record, eq notify.FieldEq) bool {
	if name, ok := strings.CutPrefix(eq.Field, "metadata."); ok {
		return metaValue(r.Metadata, name, eq.Value)
	}
	switch eq.Field {
	case "category":
		return eqLoose(string(r.Category), eq.Value)
	case "type":
		return eqLoose(string(r.Type), eq.Value)
	case "title":
		return eqLoose(r.Title, eq.Value)
	case "read":
		b, ok := eq.Value.(bool)
		return ok && r.Read == b
	case "id":
		return eqLoose(r.ID, eq.Value)
	default:
		return false
	}
}

// metaValue compares one metadata field by its JSON name, numbers as
// float64, everything else as strings.
func metaValue(meta notify.Metadata, name string, want any) bool {
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
	return eqLoose(got, want)
}

func eqLoose(got, want any) bool {
	if gf, ok := asFloat(got); ok {
		if wf, ok := asFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
