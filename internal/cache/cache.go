// Package cache is a JSON-file TTL cache for upstream API payloads. Every
// product lookup costs API tokens, so repeat requests inside the TTL are
// answered from disk.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one cached payload.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	TTL       time.Duration   `json:"ttl"`
}

// Cache is safe for concurrent use. The whole map is rewritten to disk on
// every Put; payload counts are small enough that this stays cheap.
type Cache struct {
	path    string
	mu      sync.RWMutex
	entries map[string]Entry
}

// New loads the cache file at path, starting fresh when it is missing or
// unreadable. A broken cache is worth discarding, not reporting.
func New(path string) (*Cache, error) {
	c := &Cache{
		path:    path,
		entries: make(map[string]Entry),
	}
	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &c.entries); err != nil {
			c.entries = make(map[string]Entry)
		}
	}
	return c, nil
}

// Get returns the cached payload for key when present and unexpired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if entry.TTL > 0 && time.Since(entry.Timestamp) > entry.TTL {
		c.mu.Lock()
		if e, exists := c.entries[key]; exists && e.TTL > 0 && time.Since(e.Timestamp) > e.TTL {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.Data, true
}

// Put stores a payload under key and persists the cache.
func (c *Cache) Put(key string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = Entry{
		Data:      json.RawMessage(payload),
		Timestamp: time.Now(),
		TTL:       ttl,
	}
	c.mu.Unlock()
	return c.save()
}

// Clear drops every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
	return c.save()
}

func (c *Cache) save() error {
	if dir := filepath.Dir(c.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cache: create dir: %w", err)
		}
	}

	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	return os.WriteFile(c.path, data, 0o644)
}

// PayloadKey names the cache slot for one product lookup.
func PayloadKey(domain int, asin string) string {
	return fmt.Sprintf("payload|%d|%s", domain, asin)
}
