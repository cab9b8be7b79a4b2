package intercept

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shhac/httpspy/internal/domain"
	"github.com/shhac/httpspy/internal/storage"
)

// State is the installation state of an Interceptor.
type State int

const (
	StateStopped State = iota
	StateStarted
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarted:
		return "started"
	default:
		return "unknown"
	}
}

// RefreshFunc republishes auxiliary shared state while the interceptor runs.
type RefreshFunc func(ctx context.Context) error

// Interceptor owns the process-wide capture installation. Start and Stop are
// idempotent; only one started Interceptor per process is meaningful.
type Interceptor struct {
	mu    sync.Mutex
	state State

	store     storage.Repository[domain.Exchange]
	transport *Transport
	hook      Hook
	logger    *slog.Logger

	initOnce sync.Once
	ready    chan struct{}

	refreshEvery time.Duration
	refresh      RefreshFunc
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	transportOpts []TransportOption
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithHook overrides the installation point. Defaults to DefaultHook.
func WithHook(h Hook) Option {
	return func(i *Interceptor) { i.hook = h }
}

// WithRefresher runs fn every interval while started. Failures are logged.
func WithRefresher(interval time.Duration, fn RefreshFunc) Option {
	return func(i *Interceptor) {
		i.refreshEvery = interval
		i.refresh = fn
	}
}

// WithTransportOptions passes options through to NewTransport.
func WithTransportOptions(opts ...TransportOption) Option {
	return func(i *Interceptor) { i.transportOpts = append(i.transportOpts, opts...) }
}

// New creates a stopped interceptor recording into store.
func New(store storage.Repository[domain.Exchange], logger *slog.Logger, opts ...Option) *Interceptor {
	i := &Interceptor{
		store:  store,
		logger: logger,
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.hook == nil {
		i.hook = &DefaultHook{}
	}
	i.transport = NewTransport(store, logger, i.transportOpts...)
	return i
}

// Start installs the hook and begins storage initialization in the
// background. It returns immediately; wait on Ready for initialization.
func (i *Interceptor) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == StateStarted {
		return
	}

	i.initOnce.Do(func() {
		go func() {
			defer close(i.ready)
			// Failure is logged by the store; readers treat a missing
			// collection as empty.
			_ = i.store.Initialize()
		}()
	})

	i.hook.Install(i.transport)

	if i.refresh != nil && i.refreshEvery > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		i.cancel = cancel
		i.wg.Add(1)
		go i.runRefresher(ctx)
	}

	i.state = StateStarted
	i.logger.Info("interception started", slog.String("collection", i.store.Name()))
}

// Stop reverts the hook and cancels the refresher.
func (i *Interceptor) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == StateStopped {
		return
	}

	i.hook.Uninstall()
	if i.cancel != nil {
		i.cancel()
		i.wg.Wait()
		i.cancel = nil
	}

	i.state = StateStopped
	i.logger.Info("interception stopped")
}

// Ready is closed once storage initialization has finished.
func (i *Interceptor) Ready() <-chan struct{} {
	return i.ready
}

// State returns the current installation state.
func (i *Interceptor) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Transport returns the recording round tripper, for clients that do not use
// the default configuration.
func (i *Interceptor) Transport() *Transport {
	return i.transport
}

func (i *Interceptor) runRefresher(ctx context.Context) {
	defer i.wg.Done()

	ticker := time.NewTicker(i.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := i.refresh(ctx); err != nil && ctx.Err() == nil {
				i.logger.Warn("refresh failed", slog.Any("error", err))
			}
		}
	}
}
