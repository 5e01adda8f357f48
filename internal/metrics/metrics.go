// Package metrics exposes Prometheus collectors for the sync runtime.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/api"
	"github.com/alexjbarnes/chat-sync/internal/connection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_sync"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	syncPasses        *prometheus.CounterVec
	syncPassDuration  prometheus.Histogram
	queueResults      *prometheus.CounterVec
	tokenRefreshes    *prometheus.CounterVec
	connectionStatus  *prometheus.GaugeVec
	apiRequests       *prometheus.CounterVec
	eventsApplied     *prometheus.CounterVec
	statusTransitions prometheus.Counter
}

// New creates the collectors and registers them with Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Reconnection sync passes by result",
		}, []string{"result"}),
		syncPassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_pass_duration_seconds",
			Help:      "Duration of reconnection sync passes",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		queueResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_queue_results_total",
			Help:      "Offline queue outcomes by request kind",
		}, []string{"kind", "outcome"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Token acquisitions by result",
		}, []string{"result"}),
		connectionStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current connection status, 0 otherwise",
		}, []string{"status"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "REST requests by endpoint kind and result",
		}, []string{"kind", "result"}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Real-time events received by type",
		}, []string{"type"}),
		statusTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_status_changes_total",
			Help:      "Connection status transitions",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncPasses,
		m.syncPassDuration,
		m.queueResults,
		m.tokenRefreshes,
		m.connectionStatus,
		m.apiRequests,
		m.eventsApplied,
		m.statusTransitions,
	)

	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// SyncPass records a finished sync pass.
func (m *Metrics) SyncPass(d time.Duration, err error) {
	if m == nil {
		return
	}

	m.syncPasses.WithLabelValues(result(err)).Inc()
	m.syncPassDuration.Observe(d.Seconds())
}

// QueueResult records what happened to a queued request.
func (m *Metrics) QueueResult(kind api.Kind, outcome string) {
	if m == nil {
		return
	}

	m.queueResults.WithLabelValues(string(kind), outcome).Inc()
}

// TokenRefresh records a token acquisition.
func (m *Metrics) TokenRefresh(err error) {
	if m == nil {
		return
	}

	m.tokenRefreshes.WithLabelValues(result(err)).Inc()
}

var statusKinds = []connection.StatusKind{
	connection.StatusInitialized,
	connection.StatusConnecting,
	connection.StatusConnected,
	connection.StatusDisconnecting,
	connection.StatusDisconnected,
}

// ConnectionStatus sets the status gauge so exactly one label is 1.
func (m *Metrics) ConnectionStatus(s connection.Status) {
	if m == nil {
		return
	}

	m.statusTransitions.Inc()

	for _, k := range statusKinds {
		v := 0.0
		if k == s.Kind {
			v = 1
		}

		m.connectionStatus.WithLabelValues(k.String()).Set(v)
	}
}

// APIRequest records one REST attempt.
func (m *Metrics) APIRequest(kind api.Kind, err error) {
	if m == nil {
		return
	}

	m.apiRequests.WithLabelValues(string(kind), result(err)).Inc()
}

// Event records a received real-time event.
func (m *Metrics) Event(eventType string) {
	if m == nil {
		return
	}

	m.eventsApplied.WithLabelValues(eventType).Inc()
}
