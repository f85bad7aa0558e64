package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/resilience"
)

// BatchMetrics observes batch runs. It satisfies ports.BatchObserver.
type BatchMetrics struct {
	service string

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	runsInFlight   prometheus.Gauge
	itemsTotal     *prometheus.CounterVec
	verifyDuration *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec
	requestsTotal  *prometheus.CounterVec
}

func NewBatchMetrics(registry *prometheus.Registry, service string) *BatchMetrics {
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Finished batch runs by kind and completion.",
		},
		[]string{"service", "kind", "completion"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a batch run, pacing included.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "kind"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_in_flight",
			Help:      "Batch runs currently executing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "items_verified_total",
			Help:      "Verification attempts by resulting status.",
		},
		[]string{"service", "status"},
	)
	verifyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "verify_duration_seconds",
			Help:      "Duration of one two-phase verification by resulting status.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30, 45},
		},
		[]string{"service", "status"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "authority",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is open or half-open.",
		},
		[]string{"service", "operation"},
	)
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_requests_total",
			Help:      "Queued batch requests handled by the worker, by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(runsTotal, runDuration, runsInFlight, itemsTotal, verifyDuration, breakerState, requestsTotal)

	return &BatchMetrics{
		service:        service,
		runsTotal:      runsTotal,
		runDuration:    runDuration,
		runsInFlight:   runsInFlight,
		itemsTotal:     itemsTotal,
		verifyDuration: verifyDuration,
		breakerState:   breakerState,
		requestsTotal:  requestsTotal,
	}
}

func (m *BatchMetrics) StartRun(domain.RunKind) {
	m.runsInFlight.Inc()
}

func (m *BatchMetrics) ObserveItem(status domain.ItemStatus, duration time.Duration) {
	m.itemsTotal.WithLabelValues(m.service, string(status)).Inc()
	m.verifyDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
}

func (m *BatchMetrics) FinishRun(result domain.RunResult, duration time.Duration) {
	m.runsInFlight.Dec()
	completion := "complete"
	if result.Interrupted {
		completion = "interrupted"
	}
	m.runsTotal.WithLabelValues(m.service, string(result.Kind), completion).Inc()
	m.runDuration.WithLabelValues(m.service, string(result.Kind)).Observe(duration.Seconds())
}

// ObserveBreaker is a resilience.StateObserver.
func (m *BatchMetrics) ObserveBreaker(operation string, state resilience.BreakerState) {
	value := 0.0
	if state != resilience.StateClosed {
		value = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

func (m *BatchMetrics) RecordRequest(result string) {
	if result == "" {
		result = "unknown"
	}
	m.requestsTotal.WithLabelValues(m.service, result).Inc()
}
