package intercept

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks capture activity.
type Metrics struct {
	// Traffic: exchanges accepted for recording
	ExchangesStarted prometheus.Counter

	// Outcomes: response or error
	ExchangesCompleted *prometheus.CounterVec

	// Latency: request start to final commit
	ExchangeDuration prometheus.Histogram

	// Errors: failed persistence by operation (begin, headers, complete)
	StorageErrors *prometheus.CounterVec

	// Saturation: storage breaker state (0 closed, 1 open)
	BreakerOpen prometheus.Gauge
}

// NewMetrics registers capture metrics with reg. A nil reg uses a private
// registry that is never exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		ExchangesStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "httpspy_exchanges_started_total",
			Help: "Total number of intercepted requests.",
		}),

		ExchangesCompleted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "httpspy_exchanges_completed_total",
			Help: "Total number of completed exchanges by outcome.",
		}, []string{"outcome"}), // response, error

		ExchangeDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "httpspy_exchange_duration_seconds",
			Help:    "Histogram of exchange durations.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		StorageErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "httpspy_storage_errors_total",
			Help: "Total number of failed exchange writes by operation.",
		}, []string{"op"}),

		BreakerOpen: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "httpspy_storage_breaker_open",
			Help: "Current state of the storage circuit breaker (0=closed, 1=open).",
		}),
	}
}
