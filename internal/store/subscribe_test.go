package store

import (
	"testing"
	"time"

	"folionotify/internal/eventbus"
	"folionotify/internal/notify"
	"folionotify/pkg/logx"
)

func TestSubscribeCatchesWriteDuringSnapshot(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()

	stale := []notify.Record{{ID: "a"}}
	fresh := []notify.Record{{ID: "b"}, {ID: "a"}}

	calls := 0
	query := func(limit int) ([]notify.Record, error) {
		calls++
		if calls == 1 {
			// A write lands while the initial snapshot is being taken.
			bus.Publish(eventbus.Event{Type: eventbus.TopicRecordInserted})
			return stale, nil
		}
		return fresh, nil
	}

	got := make(chan []notify.Record, 4)
	unsub, err := subscribeVia(bus, logx.Nop(), 10, query, func(recs []notify.Record) {
		got <- recs
	})
	if err != nil {
		t.Fatalf("subscribeVia: %v", err)
	}
	defer unsub()

	first := <-got
	if len(first) != 1 || first[0].ID != "a" {
		t.Fatalf("initial snapshot = %+v, want [a]", first)
	}

	select {
	case recs := <-got:
		if len(recs) != 2 || recs[0].ID != "b" {
			t.Fatalf("redelivery = %+v, want [b a]", recs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write during the initial snapshot was never redelivered")
	}
}
