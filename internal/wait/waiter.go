// Package wait turns eventually-consistent, cross-process capture state into
// bounded-time pass/fail results by polling the exchange store.
package wait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/shhac/httpspy/internal/domain"
	apperrors "github.com/shhac/httpspy/internal/errors"
	"github.com/shhac/httpspy/internal/match"
	"github.com/shhac/httpspy/internal/storage"
)

const (
	DefaultInterval    = 100 * time.Millisecond
	DefaultTimeout     = 5 * time.Second
	DefaultSinceWindow = 30 * time.Second
)

// Predicate names used in diagnostics.
const (
	PredicateExists       = "exists"
	PredicateExactlyOne   = "exactly one"
	PredicateCompleted    = "completed"
	PredicateBodyComplete = "body complete"
	PredicateAbsent       = "absent"
)

var errNotYet = errors.New("predicate not yet satisfied")

// Waiter polls an exchange store. Every poll is a fresh read; nothing is
// cached between polls.
type Waiter struct {
	store       storage.Repository[domain.Exchange]
	logger      *slog.Logger
	interval    time.Duration
	timeout     time.Duration
	sinceWindow time.Duration
	now         func() time.Time
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithInterval sets the polling cadence.
func WithInterval(d time.Duration) Option {
	return func(w *Waiter) { w.interval = d }
}

// WithTimeout sets the default wait budget.
func WithTimeout(d time.Duration) Option {
	return func(w *Waiter) { w.timeout = d }
}

// WithSinceWindow sets how far back waits look when no explicit Since is given.
func WithSinceWindow(d time.Duration) Option {
	return func(w *Waiter) { w.sinceWindow = d }
}

// New creates a Waiter over store.
func New(store storage.Repository[domain.Exchange], logger *slog.Logger, opts ...Option) *Waiter {
	w := &Waiter{
		store:       store,
		logger:      logger,
		interval:    DefaultInterval,
		timeout:     DefaultTimeout,
		sinceWindow: DefaultSinceWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.interval <= 0 {
		w.interval = DefaultInterval
	}
	return w
}

type params struct {
	since   time.Time
	timeout time.Duration
}

// WaitOption adjusts a single wait.
type WaitOption func(*params)

// Since restricts the wait to exchanges started at or after t.
func Since(t time.Time) WaitOption {
	return func(p *params) { p.since = t }
}

// Timeout overrides the wait budget.
func Timeout(d time.Duration) WaitOption {
	return func(p *params) { p.timeout = d }
}

func (w *Waiter) params(opts []WaitOption) params {
	p := params{timeout: w.timeout}
	for _, opt := range opts {
		opt(&p)
	}
	if p.since.IsZero() && w.sinceWindow > 0 {
		p.since = w.now().Add(-w.sinceWindow)
	}
	return p
}

// check inspects the matching exchanges of one poll. done ends the wait
// successfully; a non-nil error ends it with failure.
type check func(matched []domain.Exchange) (done bool, err error)

// WaitForRequest waits until at least one matching exchange exists, pending
// or not, and returns the most recent one.
func (w *Waiter) WaitForRequest(ctx context.Context, c match.Criteria, opts ...WaitOption) (domain.Exchange, error) {
	matched, err := w.poll(ctx, PredicateExists, c, w.params(opts), func(m []domain.Exchange) (bool, error) {
		return len(m) > 0, nil
	})
	if err != nil {
		return domain.Exchange{}, err
	}
	return matched[0], nil
}

// WaitForSingleRequest waits until exactly one matching exchange exists. More
// than one match fails immediately.
func (w *Waiter) WaitForSingleRequest(ctx context.Context, c match.Criteria, opts ...WaitOption) (domain.Exchange, error) {
	p := w.params(opts)
	matched, err := w.poll(ctx, PredicateExactlyOne, c, p, func(m []domain.Exchange) (bool, error) {
		if len(m) > 1 {
			return false, &apperrors.WaitTimeoutError{
				Predicate: PredicateExactlyOne,
				Criteria:  c.String(),
				Timeout:   p.timeout,
				Observed:  len(m),
			}
		}
		return len(m) == 1, nil
	})
	if err != nil {
		return domain.Exchange{}, err
	}
	return matched[0], nil
}

// WaitForResponse waits until a matching exchange carries a response or a
// transport error, and returns the most recent one. The response body may
// still be streaming; see WaitForResponseBody.
func (w *Waiter) WaitForResponse(ctx context.Context, c match.Criteria, opts ...WaitOption) (domain.Exchange, error) {
	return w.waitForOutcome(ctx, PredicateCompleted, c, opts, hasOutcome)
}

// WaitForResponseBody is WaitForResponse that also waits for the response
// body to be fully recorded.
func (w *Waiter) WaitForResponseBody(ctx context.Context, c match.Criteria, opts ...WaitOption) (domain.Exchange, error) {
	return w.waitForOutcome(ctx, PredicateBodyComplete, c, opts, domain.Exchange.IsFinal)
}

func hasOutcome(ex domain.Exchange) bool {
	return !ex.IsPending()
}

func (w *Waiter) waitForOutcome(ctx context.Context, predicate string, c match.Criteria, opts []WaitOption, done func(domain.Exchange) bool) (domain.Exchange, error) {
	var found domain.Exchange
	_, err := w.poll(ctx, predicate, c, w.params(opts), func(m []domain.Exchange) (bool, error) {
		for _, ex := range m {
			if done(ex) {
				found = ex
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return domain.Exchange{}, err
	}
	return found, nil
}

// AssertNotRequested waits the entire budget, then checks once that no
// matching exchange exists. It never returns early with success.
func (w *Waiter) AssertNotRequested(ctx context.Context, c match.Criteria, opts ...WaitOption) error {
	m, err := c.Compile()
	if err != nil {
		return err
	}
	p := w.params(opts)

	w.logger.Debug("asserting absence",
		slog.String("criteria", c.String()),
		slog.Duration("timeout", p.timeout))

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return &apperrors.WaitTimeoutError{
			Predicate: PredicateAbsent,
			Criteria:  c.String(),
			Timeout:   p.timeout,
			Err:       fmt.Errorf("wait abandoned: %w", ctx.Err()),
		}
	}

	list, err := w.load(p.since, true)
	if err != nil {
		return &apperrors.WaitTimeoutError{Predicate: PredicateAbsent, Criteria: c.String(), Timeout: p.timeout, Err: err}
	}
	if n := m.Count(list); n > 0 {
		return &apperrors.WaitTimeoutError{Predicate: PredicateAbsent, Criteria: c.String(), Timeout: p.timeout, Observed: n}
	}
	return nil
}

// Requests returns the matching exchanges present right now, most recent first.
func (w *Waiter) Requests(c match.Criteria, opts ...WaitOption) ([]domain.Exchange, error) {
	m, err := c.Compile()
	if err != nil {
		return nil, err
	}
	list, err := w.load(w.params(opts).since, false)
	if err != nil {
		return nil, err
	}
	return m.Filter(list), nil
}

// RequestedExactlyOnce checks, without waiting, that exactly one matching
// exchange is present. Calling it again re-reads the store.
func (w *Waiter) RequestedExactlyOnce(c match.Criteria, opts ...WaitOption) (domain.Exchange, error) {
	matched, err := w.Requests(c, opts...)
	if err != nil {
		return domain.Exchange{}, err
	}
	if len(matched) != 1 {
		return domain.Exchange{}, &apperrors.WaitTimeoutError{
			Predicate: PredicateExactlyOne,
			Criteria:  c.String(),
			Observed:  len(matched),
		}
	}
	return matched[0], nil
}

// poll re-queries the store every interval until chk succeeds, fails, or the
// budget elapses. After the budget a final strict read runs, so corrupt data
// surfaces as a hard failure instead of a silent miss.
func (w *Waiter) poll(ctx context.Context, predicate string, c match.Criteria, p params, chk check) ([]domain.Exchange, error) {
	m, err := c.Compile()
	if err != nil {
		return nil, err
	}

	w.logger.Debug("waiting for request",
		slog.String("predicate", predicate),
		slog.String("criteria", c.String()),
		slog.Duration("timeout", p.timeout))

	waitCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		matched  []domain.Exchange
		done     bool
		terminal error
	)
	r := retry.New(
		retry.Context(waitCtx),
		retry.Attempts(0),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return w.interval
		}),
	)
	_ = r.Do(func() error {
		// Absent and undecodable look the same mid-wait: nothing usable yet.
		list, err := w.load(p.since, false)
		if err != nil {
			return err
		}
		matched = m.Filter(list)
		ok, err := chk(matched)
		switch {
		case err != nil:
			terminal = err
			return nil
		case ok:
			done = true
			return nil
		}
		return errNotYet
	})

	if terminal != nil {
		return nil, terminal
	}
	if done {
		return matched, nil
	}

	if ctx.Err() != nil {
		return nil, &apperrors.WaitTimeoutError{
			Predicate: predicate,
			Criteria:  c.String(),
			Timeout:   p.timeout,
			Observed:  len(matched),
			Err:       fmt.Errorf("wait abandoned: %w", ctx.Err()),
		}
	}

	list, loadErr := w.load(p.since, true)
	if loadErr == nil {
		matched = m.Filter(list)
		if ok, err := chk(matched); err != nil {
			return nil, err
		} else if ok {
			return matched, nil
		}
	}

	w.logger.Debug("wait timed out",
		slog.String("predicate", predicate),
		slog.String("criteria", c.String()),
		slog.Int("observed", len(matched)))

	return nil, &apperrors.WaitTimeoutError{
		Predicate: predicate,
		Criteria:  c.String(),
		Timeout:   p.timeout,
		Observed:  len(matched),
		Err:       loadErr,
	}
}

// load reads exchanges started at or after since, most recent first.
func (w *Waiter) load(since time.Time, strict bool) ([]domain.Exchange, error) {
	return w.store.LoadSorted(storage.Query{
		SortKey: storage.SortByCreated,
		Since:   since,
		Strict:  strict,
	})
}
