package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters of the chat core.
// A nil *Metrics is valid and records nothing, so components can run without it.
type Metrics struct {
	registry       *prometheus.Registry
	actions        *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	onlineCount    prometheus.Gauge
	queueLength    *prometheus.GaugeVec
	workerRestarts prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_chat",
			Name:      "actions_total",
			Help:      "Chat actions handled, by action and outcome code.",
		}, []string{"action", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_chat",
			Name:      "deliveries_total",
			Help:      "Events pushed to connections, by event kind and result.",
		}, []string{"kind", "result"}),
		onlineCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "campus_chat",
			Name:      "online_connections",
			Help:      "Connections that announced themselves.",
		}),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "campus_chat",
			Name:      "queue_length",
			Help:      "Events waiting in a dispatcher queue, sampled.",
		}, []string{"queue"}),
		workerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus_chat",
			Name:      "worker_restarts_total",
			Help:      "Workers restarted after a crash.",
		}),
	}
	registry.MustRegister(
		m.actions, m.deliveries, m.onlineCount, m.queueLength, m.workerRestarts,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveAction(action, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveDelivery(kind string, delivered bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "skipped"
	}
	m.deliveries.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SetOnline(count int) {
	if m == nil {
		return
	}
	m.onlineCount.Set(float64(count))
}

func (m *Metrics) SetQueueLength(queue string, length int) {
	if m == nil {
		return
	}
	m.queueLength.WithLabelValues(queue).Set(float64(length))
}

func (m *Metrics) IncrWorkerRestarts() {
	if m == nil {
		return
	}
	m.workerRestarts.Inc()
}

// Handler exposes the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
