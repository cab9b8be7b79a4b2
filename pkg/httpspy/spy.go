package httpspy

import (
	"net/http"

	"github.com/shhac/httpspy/internal/app"
	"github.com/shhac/httpspy/internal/intercept"
)

// Spy records the outbound HTTP traffic of the current process.
type Spy struct {
	app *app.App
}

// NewSpy builds a stopped Spy.
func NewSpy(opts ...Option) (*Spy, error) {
	a, err := build(opts)
	if err != nil {
		return nil, err
	}
	return &Spy{app: a}, nil
}

// Start installs capture. It is idempotent and returns immediately.
func (s *Spy) Start() {
	s.app.Start()
}

// Stop reverts capture. It is idempotent.
func (s *Spy) Stop() {
	s.app.Stop()
}

// Ready is closed once the storage root has been prepared.
func (s *Spy) Ready() <-chan struct{} {
	return s.app.Ready()
}

// Started reports whether capture is installed.
func (s *Spy) Started() bool {
	return s.app.Interceptor().State() == intercept.StateStarted
}

// Transport returns the recording round tripper for clients built by hand.
func (s *Spy) Transport() http.RoundTripper {
	return s.app.Interceptor().Transport()
}

// Context returns the key-value sidecar shared with the test process.
func (s *Spy) Context() *ContextStore {
	return s.app.Context()
}

// StorageRoot returns the resolved shared directory.
func (s *Spy) StorageRoot() string {
	return s.app.Root().Path
}
