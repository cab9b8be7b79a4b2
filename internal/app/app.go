package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shhac/httpspy/internal/intercept"
	"github.com/shhac/httpspy/internal/logging"
)

// StatusKey is the context entry the running interceptor republishes so a
// test process can tell that capture is live.
const StatusKey = "httpspy.status"

// Status is the payload stored under StatusKey.
type Status struct {
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"startedAt"`
	RefreshedAt  time.Time `json:"refreshedAt"`
	AllowedHosts []string  `json:"allowedHosts,omitempty"`
	SharedRoot   bool      `json:"sharedRoot"`
}

// App is the main application coordinator, responsible for wiring
// together all components and managing their lifecycle.
type App struct {
	*Reader

	registry    *prometheus.Registry
	interceptor *intercept.Interceptor

	// mu orders status writes against Stop. running is the source of truth
	// for publishing; the interceptor's own state is not consulted under mu
	// because its Stop waits for the refresher, which takes mu.
	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

type options struct {
	logger *slog.Logger
	hook   intercept.Hook
}

// Option customizes New and NewReader.
type Option func(*options)

// WithLogger uses logger instead of initializing one from the config.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHook installs the interceptor somewhere other than the default client.
// NewReader ignores it.
func WithHook(h intercept.Hook) Option {
	return func(o *options) { o.hook = h }
}

func collectOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates a new App instance with the given configuration.
// This performs all dependency injection and wiring; nothing is started.
func New(cfg *Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := collectOptions(opts)

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.InitLogger("httpspy", logging.Options{Debug: cfg.Debug, File: cfg.Log.File})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	r, err := newReader(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("initializing httpspy",
		slog.Bool("debug", cfg.Debug),
		slog.String("storage_root", r.root.Path),
	)

	a := &App{
		Reader:   r,
		registry: prometheus.NewRegistry(),
	}

	interceptOpts := []intercept.Option{
		intercept.WithTransportOptions(
			intercept.WithHostFilter(intercept.NewHostFilter(cfg.Intercept.AllowedHosts, logger)),
			intercept.WithMetrics(intercept.NewMetrics(a.registry)),
			intercept.WithTrustServerCertificates(cfg.Intercept.TrustServerCertificates),
		),
		intercept.WithRefresher(cfg.Intercept.RefreshInterval, func(ctx context.Context) error {
			return a.publishStatus()
		}),
	}
	if o.hook != nil {
		interceptOpts = append(interceptOpts, intercept.WithHook(o.hook))
	}
	a.interceptor = intercept.New(a.exchanges, logger, interceptOpts...)

	logger.Info("application initialized successfully")
	return a, nil
}

// Start begins capturing. It returns immediately; see Ready.
func (a *App) Start() {
	a.mu.Lock()
	if !a.running {
		a.startedAt = time.Now().UTC()
		a.running = true
	}
	a.mu.Unlock()

	a.interceptor.Start()
	go func() {
		<-a.interceptor.Ready()
		if err := a.context.Repository().Initialize(); err != nil {
			a.logger.Warn("context collection unavailable", slog.Any("error", err))
			return
		}
		if err := a.publishStatus(); err != nil {
			a.logger.Warn("failed to publish status", slog.Any("error", err))
		}
	}()
}

// Stop withdraws the published status and reverts interception. No status
// is written after Stop returns unless Start is called again.
func (a *App) Stop() {
	a.mu.Lock()
	a.running = false
	if err := a.context.Delete(StatusKey); err != nil {
		a.logger.Debug("failed to withdraw status", slog.Any("error", err))
	}
	a.mu.Unlock()

	a.interceptor.Stop()
}

// Ready is closed once storage initialization has finished.
func (a *App) Ready() <-chan struct{} {
	return a.interceptor.Ready()
}

// publishStatus writes the heartbeat while running and is a no-op otherwise.
func (a *App) publishStatus() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	return a.context.Set(StatusKey, Status{
		PID:          os.Getpid(),
		StartedAt:    a.startedAt,
		RefreshedAt:  time.Now().UTC(),
		AllowedHosts: a.config.Intercept.AllowedHosts,
		SharedRoot:   a.root.Shared,
	})
}

// Registry returns the metrics registry the interceptor reports to.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Interceptor returns the capture lifecycle.
func (a *App) Interceptor() *intercept.Interceptor {
	return a.interceptor
}
