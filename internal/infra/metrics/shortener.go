package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		shortenerAttemptsTotal,
		shortenerResultsTotal,
		shortenerLatencyMs,
		shortenerBreakerState,
	)
}

var (
	shortenerAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_attempts_total",
			Help: "HTTP attempts against the shortener API by outcome.",
		},
		[]string{"outcome"}, // 'ok', 'transient', 'permanent'
	)

	shortenerResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_results_total",
			Help: "Final shorten results after retries.",
		},
		[]string{"success"},
	)

	shortenerLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shortener_latency_ms",
			Help:    "Shorten call latency including retries, in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3200, 6400, 12800},
		},
	)

	shortenerBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shortener_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		},
	)
)

func IncShortenerAttempt(outcome string) {
	shortenerAttemptsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveShorten(success bool, elapsed time.Duration) {
	shortenerResultsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
	shortenerLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func SetBreakerState(state int) {
	shortenerBreakerState.Set(float64(state))
}
