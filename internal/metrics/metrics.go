// Package metrics exposes Prometheus collectors for load runs, exchanges and the
// connection pool.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sockbench"

var (
	// RequestsTotal counts logical load-test requests by result ("success", "failure").
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Logical requests completed by the load runner.",
	}, []string{"result"})

	// RequestDuration observes the full wall time of a logical request, retries included.
	RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Wall time of a logical request including retries.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	})

	// ExchangeAttempts counts single exchange attempts by result.
	ExchangeAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exchange_attempts_total",
		Help:      "Exchange attempts (connect-if-needed, write, read) by result.",
	}, []string{"result"})

	// Inflight tracks requests dispatched but not yet recorded.
	Inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inflight_requests",
		Help:      "Requests currently in flight.",
	})

	// PoolHandles tracks pooled connection handles by state ("idle", "in_use").
	PoolHandles = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_handles",
		Help:      "Connection handles owned by the pool.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(RequestsTotal, RequestDuration, ExchangeAttempts, Inflight, PoolHandles)
}

// Result maps a success flag to the label value used by the counters.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
