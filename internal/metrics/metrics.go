// metrics описывает Prometheus-метрики сервиса: исходы auth-операций
// и HTTP-запросы. Экспорт: через promhttp на /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "auth"

// Metrics: набор коллекторов сервиса. Nil-указатель допустим: все методы no-op.
type Metrics struct {
	ops         *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	httpReqs    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New создаёт коллекторы и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Auth operations by outcome.",
		}, []string{"op", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Auth operation latency, including password hashing.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(m.ops, m.opDuration, m.httpReqs, m.httpLatency)

	return m
}

// ObserveOp фиксирует исход auth-операции.
func (m *Metrics) ObserveOp(op, result string, dur time.Duration) {
	if m == nil {
		return
	}

	m.ops.WithLabelValues(op, result).Inc()
	m.opDuration.WithLabelValues(op).Observe(dur.Seconds())
}

// ObserveHTTP фиксирует HTTP-запрос. route: шаблон маршрута, а не сырой путь.
func (m *Metrics) ObserveHTTP(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}

	m.httpReqs.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}
