package storage

import (
	"sync"
	"time"
)

// MemoryCollection implements Repository using in-memory storage for tests.
// Records are kept by value; callers never share state with the collection.
type MemoryCollection[T any] struct {
	name    string
	records map[string]entry[T]
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryCollection creates a new in-memory collection
func NewMemoryCollection[T any](name string) *MemoryCollection[T] {
	return &MemoryCollection[T]{
		name:    name,
		records: make(map[string]entry[T]),
		now:     time.Now,
	}
}

// Name returns the collection name.
func (m *MemoryCollection[T]) Name() string {
	return m.name
}

// Initialize is a no-op; the collection always exists.
func (m *MemoryCollection[T]) Initialize() error {
	return nil
}

// Store saves a record in memory
func (m *MemoryCollection[T]) Store(key string, record T) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	created := now
	if prev, ok := m.records[key]; ok {
		created = prev.created
	}
	e := stampEntry(key, record, now)
	if _, ok := any(record).(Timestamped); !ok {
		e.created = created
	}
	m.records[key] = e
	return nil
}

// Retrieve returns a record from memory
func (m *MemoryCollection[T]) Retrieve(key string) (T, bool, error) {
	var zero T
	if err := validateKey(key); err != nil {
		return zero, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.records[key]
	if !ok {
		return zero, false, nil
	}
	return e.record, true, nil
}

// Remove deletes a record from memory
func (m *MemoryCollection[T]) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

// ListKeys returns keys of all stored records
func (m *MemoryCollection[T]) ListKeys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.records))
	for key := range m.records {
		keys = append(keys, key)
	}
	return keys, nil
}

// LoadAll returns every stored record
func (m *MemoryCollection[T]) LoadAll() ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, 0, len(m.records))
	for _, e := range m.records {
		out = append(out, e.record)
	}
	return out, nil
}

// LoadSorted returns stored records ordered per q
func (m *MemoryCollection[T]) LoadSorted(q Query) ([]T, error) {
	m.mu.RLock()
	entries := make([]entry[T], 0, len(m.records))
	for _, e := range m.records {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	return applyQuery(entries, q), nil
}

// Clear removes all records
func (m *MemoryCollection[T]) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]entry[T])
	return nil
}
