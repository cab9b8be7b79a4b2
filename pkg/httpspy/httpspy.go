// Package httpspy captures outbound HTTP exchanges of one process into a
// shared directory and lets another process assert on them.
//
// The application under test starts a Spy; the test process opens a Watcher
// over the same storage root (HTTPSPY_SHARED_DIR) and waits for the requests
// it expects:
//
//	spy, _ := httpspy.NewSpy()
//	spy.Start()
//	defer spy.Stop()
//
//	w, _ := httpspy.NewWatcher()
//	ex, err := w.WaitForResponse(ctx, httpspy.Criteria{Method: "GET", Path: "/api/items"})
package httpspy

import (
	"log/slog"
	"net/http"

	"github.com/shhac/httpspy/internal/app"
	"github.com/shhac/httpspy/internal/domain"
	"github.com/shhac/httpspy/internal/intercept"
	"github.com/shhac/httpspy/internal/match"
	"github.com/shhac/httpspy/internal/storage"
	"github.com/shhac/httpspy/internal/wait"
)

type (
	Config           = app.Config
	Status           = app.Status
	Exchange         = domain.Exchange
	RequestSnapshot  = domain.RequestSnapshot
	ResponseSnapshot = domain.ResponseSnapshot
	TransportError   = domain.TransportError
	Criteria         = match.Criteria
	ContextStore     = storage.ContextStore
	Observers        = wait.Observers
	WaitOption       = wait.WaitOption
)

var (
	// Since restricts a wait to exchanges started at or after the given time.
	Since = wait.Since
	// Timeout overrides the budget of a single wait.
	Timeout = wait.Timeout
	// LoadConfig reads httpspy.yaml and HTTPSPY_* overrides.
	LoadConfig = app.LoadConfig
	// DefaultConfig returns the built-in defaults.
	DefaultConfig = app.DefaultConfig
)

type options struct {
	config     *Config
	configFile string
	root       string
	hosts      []string
	logger     *slog.Logger
	client     *http.Client
}

// Option configures NewSpy and NewWatcher.
type Option func(*options)

// WithConfig uses cfg instead of loading one.
func WithConfig(cfg *Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithConfigFile loads configuration from path.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithStorageRoot overrides the shared directory.
func WithStorageRoot(path string) Option {
	return func(o *options) { o.root = path }
}

// WithAllowedHosts limits capture to the given host specs ("api.test",
// "*.example.com").
func WithAllowedHosts(hosts ...string) Option {
	return func(o *options) { o.hosts = hosts }
}

// WithLogger replaces the default logger: a rotating file for a Spy, stderr
// warnings for a Watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClient captures traffic of client instead of the process defaults.
// NewWatcher ignores it.
func WithClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

func resolve(opts []Option) (*Config, options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.config
	if cfg == nil {
		var err error
		if cfg, err = app.LoadConfig(o.configFile); err != nil {
			return nil, o, err
		}
	}
	if o.root != "" {
		cfg.Storage.Root = o.root
	}
	if o.hosts != nil {
		cfg.Intercept.AllowedHosts = o.hosts
	}
	return cfg, o, nil
}

func build(opts []Option) (*app.App, error) {
	cfg, o, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	var appOpts []app.Option
	if o.logger != nil {
		appOpts = append(appOpts, app.WithLogger(o.logger))
	}
	if o.client != nil {
		appOpts = append(appOpts, app.WithHook(&intercept.ClientHook{Client: o.client}))
	}
	return app.New(cfg, appOpts...)
}

func buildReader(opts []Option) (*app.Reader, error) {
	cfg, o, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	var readerOpts []app.Option
	if o.logger != nil {
		readerOpts = append(readerOpts, app.WithLogger(o.logger))
	}
	return app.NewReader(cfg, readerOpts...)
}
