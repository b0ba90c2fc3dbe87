package store

import (
	"errors"
	"strings"
	"sync"
	"time"

	"folionotify/internal/eventbus"
	"folionotify/internal/notify"
	"folionotify/pkg/logx"
)

// Config configures the record store.
//
// Driver values:
//   - "memory": in-process store (tests, throwaway runs)
//   - "sqlite": SQLite database file
//
// Empty Driver defaults to "sqlite".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured record store. The bus carries change
// signals that drive live subscriptions; it must not be nil.
func Open(cfg Config, log logx.Logger, bus eventbus.Bus) (notify.Store, error) {
	if bus == nil {
		return nil, errors.New("store: bus is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log, bus)
	case "memory":
		return NewMemory(bus, log), nil
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}

func isRecordTopic(t string) bool {
	switch t {
	case eventbus.TopicRecordInserted, eventbus.TopicRecordUpdated, eventbus.TopicRecordDeleted:
		return true
	}
	return false
}

// subscribeVia implements notify.Store.Subscribe on top of the eventbus:
// deliver the current top-N immediately, then re-query and redeliver after
// every record mutation. The callback runs on a dedicated goroutine.
func subscribeVia(bus eventbus.Bus, log logx.Logger, limit int,
	query func(limit int) ([]notify.Record, error), fn func([]notify.Record)) (func(), error) {

	// Subscribe before taking the initial snapshot so a mutation landing
	// between the two is buffered and triggers a requery instead of being
	// lost until the next write.
	ch, unsubBus := bus.Subscribe(16)

	recs, err := query(limit)
	if err != nil {
		unsubBus()
		return nil, err
	}
	fn(recs)

	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				if !isRecordTopic(e.Type) {
					continue
				}
				recs, err := query(limit)
				if err != nil {
					log.Warn("feed requery failed", logx.Err(err))
					continue
				}
				fn(recs)
			}
		}
	}()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			close(done)
			unsubBus()
		})
	}
	return unsub, nil
}
