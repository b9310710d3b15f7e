// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	OperationsTotal   *prometheus.CounterVec
	TokensCreated     prometheus.Counter
	TokensRegistered  prometheus.Gauge
	TransfersTotal    prometheus.Counter
	TransferredAmount prometheus.Counter

	// Journal metrics
	JournalQueueSize     prometheus.Gauge
	JournalDropped       prometheus.Counter
	JournalWritten       *prometheus.CounterVec
	JournalWriteErrors   *prometheus.CounterVec
	JournalFlushDuration *prometheus.HistogramVec
	JournalBreakerState  *prometheus.GaugeVec
	JournalConflicts     *prometheus.CounterVec

	// Feed metrics
	FeedSubscribers prometheus.Gauge
	FeedDropped     prometheus.Counter

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCRateLimited prometheus.Counter
	RPCReplayed    prometheus.Counter

	// Health metrics
	StartTime prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_ledger"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ledger metrics
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by method and result",
		}, []string{"method", "result"}),
		TokensCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_created_total",
			Help:      "Total number of tokens created",
		}),
		TokensRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens",
			Help:      "Current number of registered tokens",
		}),
		TransfersTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transfers_total",
			Help:      "Total number of committed transfers",
		}),
		TransferredAmount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transferred_amount_total",
			Help:      "Sum of committed transfer amounts across all tokens",
		}),

		// Journal metrics
		JournalQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "queue_size",
			Help:      "Current number of records waiting to be written",
		}),
		JournalDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "dropped_total",
			Help:      "Total number of records dropped by a full queue, a backlog overflow or a conflict",
		}),
		JournalWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "written_total",
			Help:      "Total number of records written by target and kind",
		}, []string{"target", "kind"}),
		JournalWriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_errors_total",
			Help:      "Total number of failed writes by target",
		}, []string{"target"}),
		JournalFlushDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "flush_duration_seconds",
			Help:      "Duration of a batch flush in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		JournalBreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "breaker_state",
			Help:      "Circuit breaker state by target (0 closed, 1 half-open, 2 open)",
		}, []string{"target"}),
		JournalConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "conflicts_total",
			Help:      "Total number of entries whose (symbol, seq) is already stored with another id",
		}, []string{"target"}),

		// Feed metrics
		FeedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of websocket subscribers",
		}),
		FeedDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dropped_total",
			Help:      "Total number of messages dropped for slow subscribers",
		}),

		// RPC metrics
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}),
		RPCReplayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "replayed_total",
			Help:      "Total number of signed mutations rejected as replays",
		}),

		// Health metrics
		StartTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "start_time_seconds",
			Help:      "Unix timestamp of process start",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordOperation increments the operation counter for method.
func (m *Metrics) RecordOperation(method, result string) {
	m.OperationsTotal.WithLabelValues(method, result).Inc()
}

// RecordRPCLatency records the latency of a JSON-RPC call.
func (m *Metrics) RecordRPCLatency(method string, duration time.Duration) {
	m.RPCCallLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordJournalFlush records a batch write to target.
func (m *Metrics) RecordJournalFlush(target, kind string, n int, duration time.Duration, err error) {
	m.JournalFlushDuration.WithLabelValues(target).Observe(duration.Seconds())
	if err != nil {
		m.JournalWriteErrors.WithLabelValues(target).Inc()
		return
	}
	m.JournalWritten.WithLabelValues(target, kind).Add(float64(n))
}

// SetBreakerState publishes the circuit breaker state of target.
func (m *Metrics) SetBreakerState(target string, state int) {
	m.JournalBreakerState.WithLabelValues(target).Set(float64(state))
}

// RecordStart sets the process start timestamp.
func (m *Metrics) RecordStart(t time.Time) {
	m.StartTime.Set(float64(t.Unix()))
}
