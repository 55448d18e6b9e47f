package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "republish"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	discoveryEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "events_total",
			Help:      "Discovery events by kind and reconcile decision.",
		},
		[]string{"kind", "decision"},
	)
	updateTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "transactions_total",
			Help:      "Zone update transactions applied, by result.",
		},
		[]string{"result"},
	)
	updateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "duration_seconds",
			Help:      "Zone update channel invocation time, excluding the settle pause.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	toleranceRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "failure_tolerance_remaining",
			Help:      "Update failures the process will still absorb.",
		},
	)
	verificationResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "results_total",
			Help:      "Candidate re-resolution results by outcome and verdict.",
		},
		[]string{"outcome", "verdict"},
	)
	pendingRounds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "rounds_pending",
			Help:      "Verification rounds awaiting resolution results.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			discoveryEvents,
			updateTransactions,
			updateDuration,
			toleranceRemaining,
			verificationResults,
			pendingRounds,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordDiscoveryEvent(kind, decision string) {
	RegisterMetrics()
	discoveryEvents.WithLabelValues(kind, decision).Inc()
}

func RecordUpdate(success bool, duration time.Duration) {
	RegisterMetrics()
	result := "failure"
	if success {
		result = "success"
	}
	updateTransactions.WithLabelValues(result).Inc()
	updateDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func SetToleranceRemaining(n int) {
	RegisterMetrics()
	toleranceRemaining.Set(float64(n))
}

func RecordVerification(outcome string, drop bool) {
	RegisterMetrics()
	verdict := "keep"
	if drop {
		verdict = "drop"
	}
	verificationResults.WithLabelValues(outcome, verdict).Inc()
}

func SetPendingRounds(n int) {
	RegisterMetrics()
	pendingRounds.Set(float64(n))
}
