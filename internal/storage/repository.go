package storage

import (
	"cmp"
	"slices"
	"time"
)

// Repository defines persistence operations for one named collection of records.
type Repository[T any] interface {
	// Name returns the collection name.
	Name() string

	// Initialize ensures the collection exists. Safe to call repeatedly or never.
	Initialize() error

	// Store writes record under key, replacing any previous version atomically.
	Store(key string, record T) error

	// Retrieve returns the record for key. The bool is false when absent.
	Retrieve(key string) (T, bool, error)

	// Remove deletes the record for key. Removing an absent key is a no-op.
	Remove(key string) error

	// ListKeys returns all stored keys in unspecified order.
	ListKeys() ([]string, error)

	// LoadAll decodes every stored record, skipping corrupt ones.
	LoadAll() ([]T, error)

	// LoadSorted returns records ordered and filtered per q.
	LoadSorted(q Query) ([]T, error)

	// Clear deletes every record. Partial failures are logged, not returned.
	Clear() error
}

// SortKey selects the timestamp used to order records.
type SortKey int

const (
	SortByCreated SortKey = iota
	SortByModified
)

func (k SortKey) String() string {
	if k == SortByModified {
		return "modifiedAt"
	}
	return "createdAt"
}

// Query parameterizes LoadSorted.
type Query struct {
	Limit     int       // 0 means unlimited; applied after sorting
	SortKey   SortKey   // timestamp to order and filter by
	Ascending bool      // oldest first when true
	Since     time.Time // keep records at or after this instant; zero keeps all
	Strict    bool      // fail on the first corrupt record instead of skipping it
}

// Timestamped is implemented by records that carry their own ordering
// timestamps. Records that don't are ordered by file modification time.
type Timestamped interface {
	CreatedAt() time.Time
	ModifiedAt() time.Time
}

type entry[T any] struct {
	key      string
	record   T
	created  time.Time
	modified time.Time
}

func (e entry[T]) at(k SortKey) time.Time {
	if k == SortByModified {
		return e.modified
	}
	return e.created
}

// stampEntry fills entry timestamps from the record when it is Timestamped,
// otherwise from fallback.
func stampEntry[T any](key string, record T, fallback time.Time) entry[T] {
	e := entry[T]{key: key, record: record, created: fallback, modified: fallback}
	if ts, ok := any(record).(Timestamped); ok {
		e.created = ts.CreatedAt()
		e.modified = ts.ModifiedAt()
	}
	return e
}

// applyQuery filters, sorts and limits entries. Ties are broken by key so
// the result is deterministic.
func applyQuery[T any](entries []entry[T], q Query) []T {
	filtered := entries[:0]
	for _, e := range entries {
		if !q.Since.IsZero() && e.at(q.SortKey).Before(q.Since) {
			continue
		}
		filtered = append(filtered, e)
	}

	slices.SortStableFunc(filtered, func(a, b entry[T]) int {
		c := a.at(q.SortKey).Compare(b.at(q.SortKey))
		if c == 0 {
			c = cmp.Compare(a.key, b.key)
		}
		if !q.Ascending {
			c = -c
		}
		return c
	})

	if q.Limit > 0 && q.Limit < len(filtered) {
		filtered = filtered[:q.Limit]
	}

	out := make([]T, len(filtered))
	for i, e := range filtered {
		out[i] = e.record
	}
	return out
}
