package notify

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"folionotify/pkg/logx"
)

// DefaultFeedLimit bounds how many recent records the live feed carries.
const DefaultFeedLimit = 10

// Feed is the live projection of the most recent records. It stays
// subscribed to the store, keeps an unread count, and fans full top-N
// snapshots out to its own subscribers (SSE handlers, tests).
//
// Mutations go straight to the store; the refreshed list arrives back
// through the subscription, so the feed never patches its copy locally.
type Feed struct {
	store Store
	log   logx.Logger
	limit int

	mu      sync.Mutex
	records []Record
	unsub   func()

	subsMu sync.Mutex
	subs   map[uint64]chan []Record
	seq    atomic.Uint64
}

func NewFeed(store Store, log logx.Logger, limit int) *Feed {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Feed{
		store: store,
		log:   log,
		limit: limit,
		subs:  map[uint64]chan []Record{},
	}
}

// Start subscribes to the store. Safe to call once per Feed.
func (f *Feed) Start() error {
	unsub, err := f.store.Subscribe(f.limit, f.apply)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.unsub = unsub
	f.mu.Unlock()
	return nil
}

// Stop detaches from the store. Feed subscribers keep their channels open;
// they just stop receiving updates.
func (f *Feed) Stop() {
	f.mu.Lock()
	unsub := f.unsub
	f.unsub = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (f *Feed) apply(recs []Record) {
	f.mu.Lock()
	f.records = recs
	f.mu.Unlock()

	f.subsMu.Lock()
	chs := make([]chan []Record, 0, len(f.subs))
	for _, ch := range f.subs {
		chs = append(chs, ch)
	}
	f.subsMu.Unlock()

	for _, ch := range chs {
		// Each subscriber gets its own copy; drop on a full channel.
		cp := append([]Record(nil), recs...)
		select {
		case ch <- cp:
		default:
		}
	}
}

// Snapshot returns a copy of the current top-N list, newest first.
func (f *Feed) Snapshot() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Record(nil), f.records...)
}

// UnreadCount counts unread records within the current snapshot.
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if !r.Read {
			n++
		}
	}
	return n
}

// Subscribe returns a channel receiving the full top-N list after every
// change, starting with the current snapshot.
func (f *Feed) Subscribe(buffer int) (<-chan []Record, func()) {
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan []Record, buffer)
	id := f.seq.Add(1)

	f.subsMu.Lock()
	f.subs[id] = ch
	f.subsMu.Unlock()

	ch <- f.Snapshot()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			f.subsMu.Lock()
			delete(f.subs, id)
			f.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

func (f *Feed) MarkRead(ctx context.Context, id string) error {
	return f.store.SetRead(ctx, id, true)
}

func (f *Feed) MarkUnread(ctx context.Context, id string) error {
	return f.store.SetRead(ctx, id, false)
}

// MarkAllRead flips every currently unread record and reports the count.
func (f *Feed) MarkAllRead(ctx context.Context) (int, error) {
	return f.store.SetAllRead(ctx)
}

func (f *Feed) Delete(ctx context.Context, id string) error {
	return f.store.Delete(ctx, id)
}

// ---- Client-side filtering/sorting over an already-fetched list ----

// FeedFilter narrows a snapshot. Zero values match everything.
// Status is "", "read" or "unread".
type FeedFilter struct {
	Category Category
	Status   string
}

func FilterRecords(recs []Record, flt FeedFilter) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if flt.Category != "" && r.Category != flt.Category {
			continue
		}
		switch flt.Status {
		case "read":
			if !r.Read {
				continue
			}
		case "unread":
			if r.Read {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// SortRecords orders a snapshot copy by "createdAt" (default), "category" or
// "type" without touching the input slice.
func SortRecords(recs []Record, by string, desc bool) []Record {
	out := append([]Record(nil), recs...)
	less := func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) }
	switch by {
	case "category":
		less = func(i, j int) bool { return out[i].Category < out[j].Category }
	case "type":
		less = func(i, j int) bool { return out[i].Type < out[j].Type }
	}
	if desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(out, less)
	return out
}

// ---- Category click routing ----

// FeedAction tells the dashboard where a notification click should lead.
type FeedAction struct {
	// Kind is "message", "project" or "none".
	Kind     string `json:"kind"`
	TargetID string `json:"targetId,omitempty"`
}

// ActionFor maps a record's category and metadata to a navigation target.
func ActionFor(rec Record) FeedAction {
	switch rec.Category {
	case CategoryContact:
		return FeedAction{Kind: "message", TargetID: rec.ID}
	case CategoryMilestone:
		if m, ok := rec.Metadata.(MilestoneMeta); ok {
			return FeedAction{Kind: "project", TargetID: m.ProjectID}
		}
	case CategoryProject:
		if m, ok := rec.Metadata.(ProjectMeta); ok {
			return FeedAction{Kind: "project", TargetID: m.ProjectID}
		}
	}
	return FeedAction{Kind: "none"}
}
