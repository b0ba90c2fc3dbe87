// Package checkpoint persists small key→string markers ("when did this
// periodic check last run") across restarts. One JSON snapshot file,
// rewritten atomically on every Set.
package checkpoint

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"folionotify/pkg/logx"
)

type Store struct {
	path string
	log  logx.Logger

	mu   sync.Mutex
	vals map[string]string
}

// Open loads the snapshot at path, creating parent directories as needed.
// A missing or unreadable snapshot starts empty rather than failing: losing
// a checkpoint only means a periodic check may run once more than needed.
func Open(path string, log logx.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("checkpoint path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &Store{path: path, log: log, vals: map[string]string{}}
	if b, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(b, &s.vals); err != nil {
			log.Warn("checkpoint snapshot unreadable, starting empty", logx.Err(err))
			s.vals = map[string]string{}
		}
	}
	return s, nil
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vals[key]
	return v, ok
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = value
	return s.saveLocked()
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, key)
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	b, err := json.Marshal(s.vals)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
