package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shhac/httpspy/internal/domain"
	"github.com/shhac/httpspy/internal/logging"
	"github.com/shhac/httpspy/internal/storage"
	"github.com/shhac/httpspy/internal/wait"
)

// Reader is the observing side: the shared collections and the waiter over
// them. It never installs capture, so a test process can open one cheaply.
type Reader struct {
	config    *Config
	logger    *slog.Logger
	root      storage.Root
	exchanges *storage.Collection[domain.Exchange]
	context   *storage.ContextStore
	waiter    *wait.Waiter
}

// NewReader opens the collections under the configured root. Without
// WithLogger it logs warnings to stderr, or to cfg.Log.File when set.
func NewReader(cfg *Config, opts ...Option) (*Reader, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := collectOptions(opts)

	logger := o.logger
	if logger == nil {
		if cfg.Log.File != "" {
			var err error
			logger, err = logging.InitLogger("httpspy", logging.Options{Debug: cfg.Debug, File: cfg.Log.File})
			if err != nil {
				return nil, fmt.Errorf("failed to initialize logger: %w", err)
			}
		} else {
			logger = logging.NewConsoleLogger(os.Stderr, cfg.Debug)
		}
	}
	return newReader(cfg, logger)
}

func newReader(cfg *Config, logger *slog.Logger) (*Reader, error) {
	root, err := storage.ResolveRoot(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to determine storage path: %w", err)
	}
	if !root.Shared {
		logger.Warn("no shared storage root configured; cross-process visibility is not guaranteed",
			slog.String("path", root.Path),
			slog.String("env", storage.SharedDirEnv))
	}

	exchanges := storage.NewCollection[domain.Exchange](root.Path, storage.RequestsCollection, logger)
	return &Reader{
		config:    cfg,
		logger:    logger,
		root:      root,
		exchanges: exchanges,
		context: storage.NewContextStore(
			storage.NewCollection[domain.ContextEntry](root.Path, storage.ContextCollection, logger)),
		waiter: wait.New(exchanges, logger,
			wait.WithInterval(cfg.Wait.PollInterval),
			wait.WithTimeout(cfg.Wait.Timeout),
			wait.WithSinceWindow(cfg.Wait.SinceWindow),
		),
	}, nil
}

// ClearAll empties both collections.
func (r *Reader) ClearAll() error {
	if err := r.exchanges.Clear(); err != nil {
		return fmt.Errorf("clear %s: %w", storage.RequestsCollection, err)
	}
	if err := r.context.Clear(); err != nil {
		return fmt.Errorf("clear %s: %w", storage.ContextCollection, err)
	}
	return nil
}

// Status returns the heartbeat published by a running App, if any.
func (r *Reader) Status() (Status, bool, error) {
	var st Status
	ok, err := r.context.Get(StatusKey, &st)
	return st, ok, err
}

// Config returns the configuration the reader was built with.
func (r *Reader) Config() *Config {
	return r.config
}

// Logger returns the application logger.
func (r *Reader) Logger() *slog.Logger {
	return r.logger
}

// Root returns the resolved storage root.
func (r *Reader) Root() storage.Root {
	return r.root
}

// Exchanges returns the captured exchange collection.
func (r *Reader) Exchanges() storage.Repository[domain.Exchange] {
	return r.exchanges
}

// Context returns the key-value sidecar.
func (r *Reader) Context() *storage.ContextStore {
	return r.context
}

// Waiter returns the poll-wait engine over the exchange collection.
func (r *Reader) Waiter() *wait.Waiter {
	return r.waiter
}
