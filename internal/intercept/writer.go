package intercept

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/shhac/httpspy/internal/domain"
	"github.com/shhac/httpspy/internal/storage"
)

const (
	opBegin    = "begin"
	opHeaders  = "headers"
	opComplete = "complete"
)

// recorder persists exchanges on the logging path. Failures are logged and
// swallowed; after repeated failures the breaker opens and writes are
// skipped until it half-opens again.
type recorder struct {
	store   storage.Repository[domain.Exchange]
	cb      *gobreaker.CircuitBreaker
	warn    rate.Sometimes
	metrics *Metrics
	logger  *slog.Logger
}

func newRecorder(store storage.Repository[domain.Exchange], metrics *Metrics, logger *slog.Logger) *recorder {
	r := &recorder{
		store:   store,
		warn:    rate.Sometimes{First: 1, Interval: 10 * time.Second},
		metrics: metrics,
		logger:  logger,
	}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "httpspy-storage",
		MaxRequests: 1,
		Timeout:     5 * time.Second, // time open before a half-open trial
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.BreakerOpen.Set(open)
			logger.Info("storage breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return r
}

// persist stores ex and reports whether the write landed.
func (r *recorder) persist(op string, ex domain.Exchange) bool {
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.store.Store(ex.ID, ex)
	})
	if err == nil {
		return true
	}

	r.metrics.StorageErrors.WithLabelValues(op).Inc()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		r.logger.Debug("skipping exchange write, breaker open",
			slog.String("op", op),
			slog.String("id", ex.ID))
		return false
	}
	r.warn.Do(func() {
		r.logger.Warn("failed to persist exchange",
			slog.String("op", op),
			slog.String("id", ex.ID),
			slog.Any("error", err))
	})
	return false
}

// exchangeWriter sequences every write for a single exchange id. Writers for
// different ids never share a lock.
type exchangeWriter struct {
	mu  sync.Mutex
	rec *recorder
	ex  domain.Exchange // last state this process produced
}

func newExchangeWriter(rec *recorder, ex domain.Exchange) *exchangeWriter {
	return &exchangeWriter{rec: rec, ex: ex}
}

// begin persists the pending exchange.
func (w *exchangeWriter) begin() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rec.metrics.ExchangesStarted.Inc()
	w.rec.persist(opBegin, w.ex)
}

// headers merges the response status line and headers.
func (w *exchangeWriter) headers(resp domain.ResponseSnapshot) {
	w.update(opHeaders, func(ex *domain.Exchange) error {
		return ex.RecordHeaders(resp)
	})
}

// complete merges the final outcome. Only the first call has an effect.
func (w *exchangeWriter) complete(resp *domain.ResponseSnapshot, body []byte, terr *domain.TransportError, at time.Time) {
	w.update(opComplete, func(ex *domain.Exchange) error {
		if err := ex.Complete(resp, body, terr, at); err != nil {
			return err
		}
		outcome := "response"
		if terr != nil {
			outcome = "error"
		}
		w.rec.metrics.ExchangesCompleted.WithLabelValues(outcome).Inc()
		w.rec.metrics.ExchangeDuration.Observe(ex.Duration().Seconds())
		return nil
	})
}

// update re-reads the persisted record, applies fn and rewrites it. When the
// record cannot be read back the in-memory copy is used, so a completion is
// never lost because an earlier write was.
func (w *exchangeWriter) update(op string, fn func(*domain.Exchange) error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := w.ex
	stored, ok, err := w.rec.store.Retrieve(w.ex.ID)
	switch {
	case err != nil:
		w.rec.logger.Debug("re-read of exchange failed, using local copy",
			slog.String("id", w.ex.ID),
			slog.Any("error", err))
	case ok && (stored.Response != nil || current.Response == nil):
		current = stored
	}

	if err := fn(&current); err != nil {
		w.rec.logger.Debug("dropping exchange update",
			slog.String("op", op),
			slog.String("id", w.ex.ID),
			slog.Any("error", err))
		return
	}

	w.ex = current
	w.rec.persist(op, current)
}
