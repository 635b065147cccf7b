package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	chatMessagesTotal    *prometheus.CounterVec
	chatOperationsTotal  *prometheus.CounterVec
	chatConnectionsTotal prometheus.Counter
	chatConnectionsOpen  prometheus.Gauge

	notificationsPublishedTotal *prometheus.CounterVec
	sseClientsActive            prometheus.Gauge

	studyGuideRequestsTotal  *prometheus.CounterVec
	studyGuideLatencySeconds prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		chatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat messages created or relayed, by message type.",
		}, []string{"type"})

		chatOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_operations_total",
			Help: "Chat membership and message lifecycle operations by outcome.",
		}, []string{"operation", "outcome"})

		chatConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_ws_connections_total",
			Help: "Total websocket chat connections accepted.",
		})

		chatConnectionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_connections_open",
			Help: "Currently open websocket chat connections.",
		})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications published, by type.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notifications_sse_clients_active",
			Help: "Currently connected notification stream clients.",
		})

		studyGuideRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_guide_requests_total",
			Help: "Study guide generation requests, by result (hit, generated, error).",
		}, []string{"result"})

		studyGuideLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "study_guide_generation_seconds",
			Help:    "Latency of AI study guide generation.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			chatMessagesTotal, chatOperationsTotal, chatConnectionsTotal, chatConnectionsOpen,
			notificationsPublishedTotal, sseClientsActive,
			studyGuideRequestsTotal, studyGuideLatencySeconds,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ChatMessages counts chat messages by type.
func ChatMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesTotal
}

// ChatOperations counts chat operations by name and outcome.
func ChatOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return chatOperationsTotal
}

// ChatConnectionsTotal counts accepted websocket connections.
func ChatConnectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return chatConnectionsTotal
}

// ChatConnectionsOpen tracks open websocket connections.
func ChatConnectionsOpen() prometheus.Gauge {
	RegisterMetrics()
	return chatConnectionsOpen
}

// NotificationsPublishedTotal counts published notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

// SSEClientsActive tracks connected notification streams.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// StudyGuideRequests counts study guide requests by result.
func StudyGuideRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return studyGuideRequestsTotal
}

// StudyGuideLatency observes AI generation latency.
func StudyGuideLatency() prometheus.Histogram {
	RegisterMetrics()
	return studyGuideLatencySeconds
}
