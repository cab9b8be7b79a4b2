package domain

import (
	"errors"
	"time"
)

// ErrAlreadyCompleted is returned when a completion is merged into an exchange
// that has already been completed.
var ErrAlreadyCompleted = errors.New("exchange already completed")

// Exchange represents one observed HTTP request and, once known, its outcome.
// It is created pending (no response, no error) and completed at most once.
type Exchange struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"` // Request start, UTC
	Request      RequestSnapshot   `json:"request"`
	Response     *ResponseSnapshot `json:"response,omitempty"`
	ResponseBody []byte            `json:"responseBody"`
	Error        *TransportError   `json:"error,omitempty"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

// NewExchange creates a pending exchange for a request that started at the given time.
func NewExchange(id string, req RequestSnapshot, startedAt time.Time) Exchange {
	return Exchange{
		ID:        id,
		Timestamp: startedAt.UTC(),
		Request:   req,
	}
}

// IsPending reports whether neither a response nor an error has been recorded.
func (e Exchange) IsPending() bool {
	return e.Response == nil && e.Error == nil
}

// IsFinal reports whether the final commit has been merged.
func (e Exchange) IsFinal() bool {
	return e.CompletedAt != nil
}

// RecordHeaders stores the status line and headers of a response as soon as
// they are received. The body and completion time follow with Complete.
func (e *Exchange) RecordHeaders(resp ResponseSnapshot) error {
	if e.IsFinal() {
		return ErrAlreadyCompleted
	}
	e.Response = &resp
	return nil
}

// Complete merges the final outcome of the exchange. Either resp or terr is
// normally set; a nil resp keeps any response recorded by RecordHeaders.
func (e *Exchange) Complete(resp *ResponseSnapshot, body []byte, terr *TransportError, at time.Time) error {
	if e.IsFinal() {
		return ErrAlreadyCompleted
	}
	if resp != nil {
		e.Response = resp
	}
	if body != nil {
		e.ResponseBody = body
	}
	e.Error = terr
	done := at.UTC()
	e.CompletedAt = &done
	return nil
}

// CreatedAt returns the request start time. Used for request ordering.
func (e Exchange) CreatedAt() time.Time {
	return e.Timestamp
}

// ModifiedAt returns the completion time, or the start time while pending.
// Used for response ordering.
func (e Exchange) ModifiedAt() time.Time {
	if e.CompletedAt != nil {
		return *e.CompletedAt
	}
	return e.Timestamp
}

// Duration returns the time between request start and completion, or zero
// if the exchange has not completed.
func (e Exchange) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.Timestamp)
}
