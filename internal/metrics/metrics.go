// Package metrics provides Prometheus metrics collection for the bot.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Session end reasons.
const (
	EndReasonExit     = "exit"
	EndReasonTimeout  = "timeout"
	EndReasonFeedback = "feedback"
	EndReasonDeclined = "declined"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Webhook intake
	WebhooksReceivedTotal *prometheus.CounterVec
	InboundEventsTotal    *prometheus.CounterVec
	EventsDroppedTotal    *prometheus.CounterVec

	// Conversation metrics
	SessionsActive      prometheus.Gauge
	SessionEndsTotal    *prometheus.CounterVec
	QuotationsCompleted prometheus.Counter
	FeedbackTotal       *prometheus.CounterVec
	HandlerPanicsTotal  prometheus.Counter

	// Outbound collaborators
	OutboundMessagesTotal *prometheus.CounterVec
	AssistantCallsTotal   *prometheus.CounterVec
	AssistantCallDuration prometheus.Histogram
	RowAppendsTotal       *prometheus.CounterVec
	CircuitBreakerState   *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance registered on the default registry.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ferrabot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ferrabot_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		WebhooksReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_webhooks_received_total",
				Help: "Webhook deliveries by outcome",
			},
			[]string{"status"}, // "accepted", "invalid", "bad_signature", "verified", "verify_failed"
		),
		InboundEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_inbound_events_total",
				Help: "Inbound user events extracted from webhooks by type",
			},
			[]string{"type"}, // "text", "button"
		),
		EventsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_events_dropped_total",
				Help: "Inbound events dropped before reaching the engine",
			},
			[]string{"reason"}, // "duplicate", "bot_echo", "mailbox_full", "unsupported"
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ferrabot_sessions_active",
				Help: "Number of users with live conversation state",
			},
		),
		SessionEndsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_session_ends_total",
				Help: "Conversation sessions ended by reason",
			},
			[]string{"reason"},
		),
		QuotationsCompleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ferrabot_quotations_completed_total",
				Help: "Quotation wizards completed",
			},
		),
		FeedbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_feedback_total",
				Help: "Satisfaction feedback received by sentiment",
			},
			[]string{"sentiment"},
		),
		HandlerPanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ferrabot_handler_panics_total",
				Help: "Panics recovered while handling an inbound event",
			},
		),

		OutboundMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_outbound_messages_total",
				Help: "Messages sent through the Cloud API by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		AssistantCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_assistant_calls_total",
				Help: "Assistant completion requests by outcome",
			},
			[]string{"outcome"}, // "success", "failure", "circuit_open"
		),
		AssistantCallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ferrabot_assistant_call_duration_seconds",
				Help:    "Assistant completion latency in seconds",
				Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
			},
		),
		RowAppendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_row_appends_total",
				Help: "Spreadsheet row appends by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ferrabot_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ferrabot_db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		DBQueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrabot_db_query_errors_total",
				Help: "Database query errors by operation",
			},
			[]string{"operation"},
		),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts, latency and in-flight requests.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// normalizePath keeps the path label bounded; unknown paths collapse to "other".
func normalizePath(path string) string {
	switch path {
	case "/webhook", "/health", "/ready", "/live", "/metrics", "/admin/log-level", "/admin/breakers":
		return path
	}
	return "other"
}

// RecordWebhook records a webhook delivery outcome.
func (m *Metrics) RecordWebhook(status string) {
	m.WebhooksReceivedTotal.WithLabelValues(status).Inc()
}

// RecordInboundEvent records an event extracted from a webhook.
func (m *Metrics) RecordInboundEvent(eventType string) {
	m.InboundEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordEventDropped records an event that never reached the engine.
func (m *Metrics) RecordEventDropped(reason string) {
	m.EventsDroppedTotal.WithLabelValues(reason).Inc()
}

// SetActiveSessions sets the number of live sessions.
func (m *Metrics) SetActiveSessions(count int) {
	m.SessionsActive.Set(float64(count))
}

// RecordSessionEnd records a session termination.
func (m *Metrics) RecordSessionEnd(reason string) {
	m.SessionEndsTotal.WithLabelValues(reason).Inc()
}

// RecordQuotationCompleted records a finished quotation wizard.
func (m *Metrics) RecordQuotationCompleted() {
	m.QuotationsCompleted.Inc()
}

// RecordFeedback records a satisfaction reply.
func (m *Metrics) RecordFeedback(sentiment string) {
	m.FeedbackTotal.WithLabelValues(sentiment).Inc()
}

// RecordHandlerPanic records a recovered panic.
func (m *Metrics) RecordHandlerPanic() {
	m.HandlerPanicsTotal.Inc()
}

// RecordOutbound records a Cloud API send.
func (m *Metrics) RecordOutbound(kind string, err error) {
	m.OutboundMessagesTotal.WithLabelValues(kind, outcome(err)).Inc()
}

// RecordAssistantCall records an assistant request.
func (m *Metrics) RecordAssistantCall(success bool, duration time.Duration) {
	status := outcomeFailure
	if success {
		status = outcomeSuccess
	}
	m.AssistantCallsTotal.WithLabelValues(status).Inc()
	m.AssistantCallDuration.Observe(duration.Seconds())
}

// RecordAssistantRejected records a request refused by an open breaker.
func (m *Metrics) RecordAssistantRejected() {
	m.AssistantCallsTotal.WithLabelValues("circuit_open").Inc()
}

// RecordRowAppend records a spreadsheet append.
func (m *Metrics) RecordRowAppend(backend string, err error) {
	m.RowAppendsTotal.WithLabelValues(backend, outcome(err)).Inc()
}

// SetCircuitBreakerState sets the breaker state for a service.
// State: 0=closed, 1=open, 2=half-open
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordDBQuery records a database query.
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}
