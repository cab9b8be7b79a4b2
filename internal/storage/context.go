package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/shhac/httpspy/internal/domain"
)

// ContextStore is the key-value sidecar used to share non-HTTP state between
// the application and the test process. Values are arbitrary JSON documents.
type ContextStore struct {
	repo Repository[domain.ContextEntry]
	now  func() time.Time
	mu   sync.Mutex // serializes read-modify-write in SetField
}

// NewContextStore wraps repo as a sidecar store.
func NewContextStore(repo Repository[domain.ContextEntry]) *ContextStore {
	return &ContextStore{repo: repo, now: time.Now}
}

// Repository exposes the underlying collection.
func (s *ContextStore) Repository() Repository[domain.ContextEntry] {
	return s.repo
}

// Set stores value under key, replacing any previous value.
func (s *ContextStore) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal context value %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(key, raw)
}

// Get decodes key's value into dst. It reports false when the key is absent.
func (s *ContextStore) Get(key string, dst any) (bool, error) {
	raw, ok, err := s.Raw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("unmarshal context value %q: %w", key, err)
	}
	return true, nil
}

// Raw returns key's value as stored.
func (s *ContextStore) Raw(key string) (json.RawMessage, bool, error) {
	e, ok, err := s.repo.Retrieve(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return e.Value, true, nil
}

// SetField sets a nested field of key's value using a gjson-style path such
// as "user.roles.0". A missing key starts from an empty object.
func (s *ContextStore) SetField(key, path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := []byte("{}")
	e, ok, err := s.repo.Retrieve(key)
	if err != nil {
		return err
	}
	if ok && len(e.Value) > 0 {
		raw = e.Value
	}

	updated, err := sjson.SetBytes(raw, path, value)
	if err != nil {
		return fmt.Errorf("set %q on context value %q: %w", path, key, err)
	}
	return s.put(key, updated)
}

// Field reads a nested field of key's value. The bool is false when either
// the key or the path is absent.
func (s *ContextStore) Field(key, path string) (gjson.Result, bool, error) {
	raw, ok, err := s.Raw(key)
	if err != nil || !ok {
		return gjson.Result{}, false, err
	}
	res := gjson.GetBytes(raw, path)
	return res, res.Exists(), nil
}

// Delete removes key.
func (s *ContextStore) Delete(key string) error {
	return s.repo.Remove(key)
}

// Keys returns every stored key.
func (s *ContextStore) Keys() ([]string, error) {
	return s.repo.ListKeys()
}

// Clear removes every entry.
func (s *ContextStore) Clear() error {
	return s.repo.Clear()
}

func (s *ContextStore) put(key string, raw []byte) error {
	return s.repo.Store(key, domain.ContextEntry{
		Key:       key,
		Value:     json.RawMessage(raw),
		UpdatedAt: s.now().UTC(),
	})
}
