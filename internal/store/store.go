// Package store persists the product registry as a single JSON snapshot on
// disk. The snapshot carries the registered products, the dashboard
// selection, and the lightly obfuscated API key, mirroring what the
// browser-local storage of earlier tooling held.
package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"resalescout/internal/model"
)

// ErrNotLoaded is returned when Save is called before Load while a snapshot
// already exists on disk. Saving without rehydrating first would silently
// wipe the registered products.
var ErrNotLoaded = errors.New("store: snapshot exists on disk, Load before Save")

// Snapshot is the full persisted state.
type Snapshot struct {
	Products    []model.Product `json:"products"`
	SelectedIDs []string        `json:"selectedIds,omitempty"`
	APIKey      string          `json:"apiKey,omitempty"` // obfuscated, see EncodeKey
	SavedAt     time.Time       `json:"savedAt"`
}

// Store reads and writes the snapshot file.
type Store struct {
	path   string
	mu     sync.Mutex
	loaded bool
}

// New creates a store for the given file path. Nothing is read until Load.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the snapshot from disk. A missing file yields an empty
// snapshot; a corrupt file is reported, not silently discarded, since the
// snapshot is the user's registry rather than a rebuildable cache.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read snapshot: %w", err)
	}
	if len(data) == 0 {
		return &Snapshot{}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: corrupt snapshot at %s: %w", s.path, err)
	}
	return &snap, nil
}

// Save writes the snapshot atomically. It refuses to run before Load when a
// snapshot file already exists, so a fresh process cannot clobber saved
// state with its empty in-memory registry.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if _, err := os.Stat(s.path); err == nil {
			return ErrNotLoaded
		}
		s.loaded = true
	}

	snap.SavedAt = time.Now()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: create snapshot dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: replace snapshot: %w", err)
	}
	return nil
}

// EncodeKey obfuscates an API key for storage. This keeps the key out of
// casual greps and backups in plain sight; it is not encryption.
func EncodeKey(key string) string {
	if key == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(key))
}

// DecodeKey reverses EncodeKey. Keys stored before obfuscation existed are
// returned as-is.
func DecodeKey(encoded string) string {
	if encoded == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return encoded
	}
	return string(raw)
}
