package metrics

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prn"

// NewRegistry is the private registry one binary exposes on /metrics.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

type HTTPServerMetrics struct {
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
}

func NewHTTPServerMetrics(registry *prometheus.Registry, service string) *HTTPServerMetrics {
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "path", "method", "code"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "path", "method"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(requestTotal, requestDuration, requestInFlight)

	return &HTTPServerMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
	}
}

// Middleware instruments next with one promhttp chain per route, built on
// first use.
func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	var chains sync.Map
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeLabel(r.URL.Path)
		chain, ok := chains.Load(route)
		if !ok {
			labels := prometheus.Labels{"service": service, "path": route}
			chain, _ = chains.LoadOrStore(route, promhttp.InstrumentHandlerInFlight(m.requestInFlight,
				promhttp.InstrumentHandlerDuration(m.requestDuration.MustCurryWith(labels),
					promhttp.InstrumentHandlerCounter(m.requestTotal.MustCurryWith(labels), next),
				),
			))
		}
		chain.(http.Handler).ServeHTTP(w, r)
	})
}

var knownRoutes = map[string]struct{}{
	"/healthz":                   {},
	"/v1/batch":                  {},
	"/v1/batch/items":            {},
	"/v1/batch/run":              {},
	"/v1/batch/reset":            {},
	"/v1/batch/report":           {},
	"/v1/batch/report.xlsx":      {},
	"/v1/batch/documents/export": {},
}

// routeLabel keeps item indexes and unknown paths out of label values.
func routeLabel(path string) string {
	const itemsPrefix = "/v1/batch/items/"
	if rest, ok := strings.CutPrefix(path, itemsPrefix); ok && rest != "" {
		if strings.HasSuffix(rest, "/document") {
			return itemsPrefix + "{index}/document"
		}
		return itemsPrefix + "{index}"
	}
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "unmatched"
}
