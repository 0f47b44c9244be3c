package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the hub's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	proxyInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "demohub",
			Subsystem: "proxy",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight proxied requests.",
		},
	)

	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "demohub",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of requests handled by the proxy.",
		},
		[]string{"app", "method", "status"},
	)

	proxyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "demohub",
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Duration of proxied requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"app", "method"},
	)

	appRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "demohub",
			Subsystem: "apps",
			Name:      "restarts_total",
			Help:      "Total number of app process restarts.",
		},
		[]string{"app"},
	)
)

func init() {
	Registry.MustRegister(
		proxyInFlight,
		proxyRequests,
		proxyDuration,
		appRestarts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ProxyInFlightInc marks one proxied request as started.
func ProxyInFlightInc() { proxyInFlight.Inc() }

// ProxyInFlightDec marks one proxied request as finished.
func ProxyInFlightDec() { proxyInFlight.Dec() }

// RecordProxyRequest records the outcome of one proxied request. The app
// label is the routed app name, or a fixed value like "none" for
// requests that never matched an app.
func RecordProxyRequest(app, method, status string, seconds float64) {
	proxyRequests.WithLabelValues(app, method, status).Inc()
	proxyDuration.WithLabelValues(app, method).Observe(seconds)
}

// RecordAppRestart counts one restart of a managed app process.
func RecordAppRestart(app string) {
	appRestarts.WithLabelValues(app).Inc()
}
