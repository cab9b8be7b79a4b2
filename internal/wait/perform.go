package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/shhac/httpspy/internal/domain"
	apperrors "github.com/shhac/httpspy/internal/errors"
	"github.com/shhac/httpspy/internal/match"
)

// Observers are invoked with the matched exchange as each stage of a
// composed wait succeeds. Either may be nil.
type Observers struct {
	OnRequested func(domain.Exchange)
	OnResponded func(domain.Exchange)
}

// PerformAndWaitForRequest runs action, then waits for a matching request
// that started no earlier than the action.
func (w *Waiter) PerformAndWaitForRequest(ctx context.Context, action func() error, c match.Criteria, obs Observers, opts ...WaitOption) (domain.Exchange, error) {
	p, err := w.perform(action, opts)
	if err != nil {
		return domain.Exchange{}, err
	}

	ex, err := w.WaitForRequest(ctx, c, Since(p.since), Timeout(p.timeout))
	if err != nil {
		return domain.Exchange{}, err
	}
	if obs.OnRequested != nil {
		obs.OnRequested(ex)
	}
	return ex, nil
}

// PerformAndWaitForResponse runs action, waits up to half the budget for a
// matching request, then spends the remainder waiting for that exchange to
// complete.
func (w *Waiter) PerformAndWaitForResponse(ctx context.Context, action func() error, c match.Criteria, obs Observers, opts ...WaitOption) (domain.Exchange, error) {
	p, err := w.perform(action, opts)
	if err != nil {
		return domain.Exchange{}, err
	}
	deadline := time.Now().Add(p.timeout)

	ex, err := w.WaitForRequest(ctx, c, Since(p.since), Timeout(p.timeout/2))
	if err != nil {
		return domain.Exchange{}, err
	}
	if obs.OnRequested != nil {
		obs.OnRequested(ex)
	}

	done, err := w.waitForCompletion(ctx, ex.ID, c, time.Until(deadline))
	if err != nil {
		return domain.Exchange{}, err
	}
	if obs.OnResponded != nil {
		obs.OnResponded(done)
	}
	return done, nil
}

func (w *Waiter) perform(action func() error, opts []WaitOption) (params, error) {
	p := params{timeout: w.timeout}
	for _, opt := range opts {
		opt(&p)
	}
	if p.since.IsZero() {
		p.since = w.now()
	}
	if action != nil {
		if err := action(); err != nil {
			return p, fmt.Errorf("action failed: %w", err)
		}
	}
	return p, nil
}

// waitForCompletion polls a single exchange by key until it carries a
// response or an error.
func (w *Waiter) waitForCompletion(ctx context.Context, id string, c match.Criteria, timeout time.Duration) (domain.Exchange, error) {
	if timeout < 0 {
		timeout = 0
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var done domain.Exchange
	r := retry.New(
		retry.Context(waitCtx),
		retry.Attempts(0),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return w.interval
		}),
	)
	err := r.Do(func() error {
		ex, ok, err := w.store.Retrieve(id)
		if err != nil {
			return err
		}
		if !ok || !hasOutcome(ex) {
			return errNotYet
		}
		done = ex
		return nil
	})
	if err == nil && hasOutcome(done) {
		return done, nil
	}

	// Decode failures on the last read surface with the timeout.
	ex, ok, err := w.store.Retrieve(id)
	if err == nil && ok && hasOutcome(ex) {
		return ex, nil
	}
	if ctx.Err() != nil {
		err = fmt.Errorf("wait abandoned: %w", ctx.Err())
	}
	return domain.Exchange{}, &apperrors.WaitTimeoutError{
		Predicate: PredicateCompleted,
		Criteria:  c.String(),
		Timeout:   timeout,
		Observed:  1,
		Err:       err,
	}
}
