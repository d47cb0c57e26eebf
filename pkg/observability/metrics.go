package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "travelintel"

var (
	// Telemetry metrics
	actionsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_recorded_total",
			Help:      "Total number of user actions recorded",
		},
		[]string{"type"},
	)

	actionsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_dropped_total",
			Help:      "Total number of user actions dropped before buffering",
		},
		[]string{"reason"},
	)

	bufferSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_buffer_size",
			Help:      "Number of actions waiting in the event buffer",
		},
	)

	flushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Total number of buffer flushes that dispatched a batch",
		},
		[]string{"trigger"},
	)

	batchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_batch_size",
			Help:      "Number of actions per dispatched batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	telemetrySendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_sends_total",
			Help:      "Total number of telemetry batch sends",
		},
		[]string{"status"},
	)

	telemetrySendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "telemetry_send_duration_seconds",
			Help:      "Telemetry batch send duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// Personalization metrics
	personalizationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "personalization_requests_total",
			Help:      "Total number of personalization requests",
		},
		[]string{"operation", "status"},
	)

	personalizationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "personalization_request_duration_seconds",
			Help:      "Personalization request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Auth metrics
	authOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Total number of auth lifecycle operations",
		},
		[]string{"operation", "status"},
	)

	// Outbox metrics
	outboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending_batches",
			Help:      "Number of undelivered batches in the outbox",
		},
	)

	outboxDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_deliveries_total",
			Help:      "Total number of outbox relay delivery attempts",
		},
		[]string{"status"},
	)

	initOnce sync.Once
)

// Status label values shared by the outcome counters.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusFallback = "fallback"
)

// InitMetrics registers the travelintel collectors with the default registry.
// Collectors update regardless; registration only controls exposure.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			actionsRecordedTotal,
			actionsDroppedTotal,
			bufferSize,
			flushesTotal,
			batchSize,
			telemetrySendsTotal,
			telemetrySendDuration,
			personalizationRequestsTotal,
			personalizationRequestDuration,
			authOperationsTotal,
			outboxPending,
			outboxDeliveriesTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAction counts a buffered action
func RecordAction(actionType string) {
	actionsRecordedTotal.WithLabelValues(actionType).Inc()
}

// RecordDroppedAction counts an action rejected before buffering
func RecordDroppedAction(reason string) {
	actionsDroppedTotal.WithLabelValues(reason).Inc()
}

// SetBufferSize sets the event buffer gauge
func SetBufferSize(n int) {
	bufferSize.Set(float64(n))
}

// RecordFlush records a flush that dispatched size actions
func RecordFlush(trigger string, size int) {
	flushesTotal.WithLabelValues(trigger).Inc()
	batchSize.Observe(float64(size))
}

// RecordTelemetrySend records a telemetry batch delivery outcome
func RecordTelemetrySend(status string, duration time.Duration) {
	telemetrySendsTotal.WithLabelValues(status).Inc()
	telemetrySendDuration.Observe(duration.Seconds())
}

// RecordPersonalizationRequest records a personalization operation outcome
func RecordPersonalizationRequest(operation, status string, duration time.Duration) {
	personalizationRequestsTotal.WithLabelValues(operation, status).Inc()
	personalizationRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuthOperation records an auth lifecycle operation outcome
func RecordAuthOperation(operation, status string) {
	authOperationsTotal.WithLabelValues(operation, status).Inc()
}

// SetOutboxPending sets the outbox pending gauge
func SetOutboxPending(n int) {
	outboxPending.Set(float64(n))
}

// RecordOutboxDelivery records an outbox relay delivery outcome
func RecordOutboxDelivery(status string) {
	outboxDeliveriesTotal.WithLabelValues(status).Inc()
}
