package httpspy

import (
	"context"

	"github.com/shhac/httpspy/internal/app"
)

// Watcher asserts on exchanges recorded by a Spy, possibly in another
// process sharing the same storage root.
type Watcher struct {
	reader *app.Reader
}

// NewWatcher opens the shared collections without installing capture.
func NewWatcher(opts ...Option) (*Watcher, error) {
	r, err := buildReader(opts)
	if err != nil {
		return nil, err
	}
	return &Watcher{reader: r}, nil
}

// WaitForRequest waits until a matching request exists, pending or not.
func (w *Watcher) WaitForRequest(ctx context.Context, c Criteria, opts ...WaitOption) (Exchange, error) {
	return w.reader.Waiter().WaitForRequest(ctx, c, opts...)
}

// WaitForSingleRequest waits until exactly one matching request exists.
func (w *Watcher) WaitForSingleRequest(ctx context.Context, c Criteria, opts ...WaitOption) (Exchange, error) {
	return w.reader.Waiter().WaitForSingleRequest(ctx, c, opts...)
}

// WaitForResponse waits until a matching exchange has a response or a
// transport error. The body may still be streaming.
func (w *Watcher) WaitForResponse(ctx context.Context, c Criteria, opts ...WaitOption) (Exchange, error) {
	return w.reader.Waiter().WaitForResponse(ctx, c, opts...)
}

// WaitForResponseBody waits until a matching exchange has been fully
// recorded, response body included.
func (w *Watcher) WaitForResponseBody(ctx context.Context, c Criteria, opts ...WaitOption) (Exchange, error) {
	return w.reader.Waiter().WaitForResponseBody(ctx, c, opts...)
}

// AssertNotRequested waits the full timeout and fails if a match appeared.
func (w *Watcher) AssertNotRequested(ctx context.Context, c Criteria, opts ...WaitOption) error {
	return w.reader.Waiter().AssertNotRequested(ctx, c, opts...)
}

// RequestedExactlyOnce checks the current state without waiting.
func (w *Watcher) RequestedExactlyOnce(c Criteria, opts ...WaitOption) (Exchange, error) {
	return w.reader.Waiter().RequestedExactlyOnce(c, opts...)
}

// Requests lists the matching exchanges present now, most recent first.
func (w *Watcher) Requests(c Criteria, opts ...WaitOption) ([]Exchange, error) {
	return w.reader.Waiter().Requests(c, opts...)
}

// PerformAndWaitForRequest runs action, then waits for the request it caused.
func (w *Watcher) PerformAndWaitForRequest(ctx context.Context, action func() error, c Criteria, obs Observers, opts ...WaitOption) (Exchange, error) {
	return w.reader.Waiter().PerformAndWaitForRequest(ctx, action, c, obs, opts...)
}

// PerformAndWaitForResponse runs action, then waits for the request it caused
// to complete.
func (w *Watcher) PerformAndWaitForResponse(ctx context.Context, action func() error, c Criteria, obs Observers, opts ...WaitOption) (Exchange, error) {
	return w.reader.Waiter().PerformAndWaitForResponse(ctx, action, c, obs, opts...)
}

// Exchange returns a single record by id.
func (w *Watcher) Exchange(id string) (Exchange, bool, error) {
	return w.reader.Exchanges().Retrieve(id)
}

// Clear empties the exchange and context collections.
func (w *Watcher) Clear() error {
	return w.reader.ClearAll()
}

// Context returns the key-value sidecar shared with the application.
func (w *Watcher) Context() *ContextStore {
	return w.reader.Context()
}

// Status returns the heartbeat published by a running Spy, if any.
func (w *Watcher) Status() (Status, bool, error) {
	return w.reader.Status()
}
