// Package eventbus carries change signals between folionotify components:
// the store announces record mutations, the scheduler announces completed
// checks, and the feed and app layers react. Delivery is best-effort — a
// subscriber that falls behind loses events, never the publisher.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topics published by folionotify components.
const (
	TopicRecordInserted = "record.inserted"
	TopicRecordUpdated  = "record.updated"
	TopicRecordDeleted  = "record.deleted"
	TopicCheckRan       = "check.ran"
)

// Event is a point-in-time signal. Data carries a small payload (record
// IDs, check names); consumers that need full state re-query the store.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	// Publish delivers e to every current subscriber without blocking.
	Publish(e Event)
	// Subscribe returns a buffered channel of events and an idempotent
	// unsubscribe func that closes it.
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus with no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	seq  atomic.Uint64
	mu   sync.RWMutex
	subs map[uint64]chan Event
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	// Sends happen outside the lock so a full buffer never stalls Subscribe
	// or Unsubscribe callers.
	for _, ch := range targets {
		trySend(ch, e)
	}
}

// trySend attempts one non-blocking delivery. The channel may be closed by
// a concurrent unsubscribe between the snapshot and the send; that panic is
// absorbed here instead of ordering closes against publishes.
func trySend(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
