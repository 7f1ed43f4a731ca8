package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	requestsTotal            *prometheus.CounterVec
	requestLatencySeconds    *prometheus.HistogramVec
	requestErrorsTotal       *prometheus.CounterVec
	realtimeConnections      prometheus.Gauge
	messagesSentTotal        *prometheus.CounterVec
	fanoutDroppedTotal       prometheus.Counter
	supportTransitionsTotal  *prometheus.CounterVec
	notificationsPushedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		requestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		realtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of websocket connections currently registered.",
		})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_messages_sent_total",
			Help: "Messages persisted and fanned out, by channel and type.",
		}, []string{"channel", "type"})

		fanoutDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_fanout_dropped_total",
			Help: "Events dropped because a recipient send buffer was full.",
		})

		supportTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_transitions_total",
			Help: "Support chat status transitions, by target status.",
		}, []string{"status"})

		notificationsPushedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_pushed_total",
			Help: "Notifications persisted and pushed, by type.",
		}, []string{"type"})

		prometheus.MustRegister(
			requestsTotal,
			requestLatencySeconds,
			requestErrorsTotal,
			realtimeConnections,
			messagesSentTotal,
			fanoutDroppedTotal,
			supportTransitionsTotal,
			notificationsPushedTotal,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return requestErrorsTotal
}

// RealtimeConnections exposes the active websocket connection gauge.
func RealtimeConnections() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnections
}

// MessagesSent exposes the fan-out message counter.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// FanoutDropped exposes the dropped event counter.
func FanoutDropped() prometheus.Counter {
	RegisterMetrics()
	return fanoutDroppedTotal
}

// SupportTransitions exposes the support status transition counter.
func SupportTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return supportTransitionsTotal
}

// NotificationsPushed exposes the notification push counter.
func NotificationsPushed() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPushedTotal
}
