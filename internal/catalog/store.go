package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/renameio/v2"
)

// Store owns the persisted catalog snapshot. Writes go through a
// write-to-temp-then-rename so concurrent readers of the file never observe a
// truncated snapshot; the in-memory copy is replaced atomically under a lock.
type Store struct {
	path string

	mu      sync.RWMutex
	current *Snapshot
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Open loads the previously persisted snapshot, if any, so a restarted
// process can serve the last known catalog before its first refresh.
func (s *Store) Open() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse catalog %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.current = &snap
	s.mu.Unlock()
	return nil
}

// Current returns the latest snapshot, or nil before the first publish/load.
// Callers must treat the snapshot as read-only.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Publish persists the snapshot atomically and makes it the current one.
func (s *Store) Publish(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	return nil
}
