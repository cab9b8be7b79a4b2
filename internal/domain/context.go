package domain

import (
	"encoding/json"
	"time"
)

// ContextEntry is one value of the shared key-value sidecar collection.
type ContextEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CreatedAt implements storage ordering; entries are ordered by last update.
func (e ContextEntry) CreatedAt() time.Time {
	return e.UpdatedAt
}

// ModifiedAt implements storage ordering.
func (e ContextEntry) ModifiedAt() time.Time {
	return e.UpdatedAt
}
