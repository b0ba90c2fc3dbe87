package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"folionotify/internal/eventbus"
	"folionotify/internal/notify"
	"folionotify/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	category   TEXT NOT NULL,
	metadata   TEXT,
	read       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_category ON notifications(category, created_at);
`

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
	bus eventbus.Bus

	// lastAt keeps created_at strictly increasing per process; the store,
	// not the caller, owns record timestamps.
	mu     sync.Mutex
	lastAt time.Time
	now    func() time.Time
}

func openSQLite(cfg Config, log logx.Logger, bus eventbus.Bus) (notify.Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &sqliteStore{db: db, log: log, bus: bus, now: time.Now}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !now.After(s.lastAt) {
		now = s.lastAt.Add(time.Microsecond)
	}
	s.lastAt = now
	return now
}

func (s *sqliteStore) Insert(ctx context.Context, rec notify.Record) (notify.Record, error) {
	rec.ID = uuid.New().String()
	rec.Read = false
	rec.CreatedAt = s.nextTimestamp()

	var meta any
	if rec.Metadata != nil {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return notify.Record{}, fmt.Errorf("encoding metadata: %w", err)
		}
		meta = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(id, type, title, message, category, metadata, read, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		rec.ID, string(rec.Type), rec.Title, rec.Message, string(rec.Category),
		meta, 0, rec.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return notify.Record{}, fmt.Errorf("inserting notification: %w", err)
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.TopicRecordInserted, Data: rec.ID})
	return rec, nil
}

func (s *sqliteStore) QueryByField(ctx context.Context, eqs ...notify.FieldEq) ([]notify.Record, error) {
	var conds []string
	var args []any
	for _, eq := range eqs {
		if name, ok := strings.CutPrefix(eq.Field, "metadata."); ok {
			if !validMetaField(name) {
				return nil, fmt.Errorf("invalid metadata field %q", name)
			}
			conds = append(conds, fmt.Sprintf("json_extract(metadata, '$.%s') = ?", name))
			args = append(args, eq.Value)
			continue
		}
		switch eq.Field {
		case "category", "type", "title", "id":
			conds = append(conds, eq.Field+" = ?")
			args = append(args, fmt.Sprint(eq.Value))
		case "read":
			b, _ := eq.Value.(bool)
			conds = append(conds, "read = ?")
			args = append(args, boolToInt(b))
		default:
			return nil, fmt.Errorf("invalid query field %q", eq.Field)
		}
	}

	query := "SELECT * FROM notifications"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"

	return s.queryRecords(ctx, query, args...)
}

func (s *sqliteStore) QueryRecent(ctx context.Context, limit int) ([]notify.Record, error) {
	query := "SELECT * FROM notifications ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryRecords(ctx, query)
}

func (s *sqliteStore) QuerySince(ctx context.Context, cat notify.Category, since time.Time) ([]notify.Record, error) {
	return s.queryRecords(ctx,
		`SELECT * FROM notifications WHERE category = ? AND created_at >= ? ORDER BY created_at ASC`,
		string(cat), since.UnixMicro())
}

func (s *sqliteStore) SetRead(ctx context.Context, id string, read bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = ? WHERE id = ?", boolToInt(read), id)
	if err != nil {
		return fmt.Errorf("updating read flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notify.ErrNotFound
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicRecordUpdated, Data: id})
	return nil
}

func (s *sqliteStore) SetAllRead(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE read = 0")
	if err != nil {
		return 0, fmt.Errorf("marking all read: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.bus.Publish(eventbus.Event{Type: eventbus.TopicRecordUpdated})
	}
	return int(n), nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notify.ErrNotFound
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicRecordDeleted, Data: id})
	return nil
}

func (s *sqliteStore) Subscribe(limit int, fn func([]notify.Record)) (func(), error) {
	return subscribeVia(s.bus, s.log, limit, func(limit int) ([]notify.Record, error) {
		return s.QueryRecent(context.Background(), limit)
	}, fn)
}

func (s *sqliteStore) queryRecords(ctx context.Context, query string, args ...any) ([]notify.Record, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []notify.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sqlx.Rows) (notify.Record, error) {
	var (
		rec       notify.Record
		typ       string
		category  string
		meta      sql.NullString
		readInt   int
		createdAt int64
	)
	if err := rows.Scan(&rec.ID, &typ, &rec.Title, &rec.Message, &category, &meta, &readInt, &createdAt); err != nil {
		return notify.Record{}, fmt.Errorf("scanning notification row: %w", err)
	}

	rec.Type = notify.Severity(typ)
	rec.Category = notify.Category(category)
	rec.Read = readInt != 0
	rec.CreatedAt = time.UnixMicro(createdAt)

	if meta.Valid && meta.String != "" {
		m, err := notify.UnmarshalMetadata(rec.Category, []byte(meta.String))
		if err != nil {
			return notify.Record{}, err
		}
		rec.Metadata = m
	}
	return rec, nil
}

// validMetaField keeps metadata paths to simple identifiers since they are
// interpolated into the json_extract expression.
func validMetaField(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
