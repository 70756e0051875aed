package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

func TestNewMetrics(t *testing.T) {
	m := newTestMetrics()

	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal not initialized")
	}
	if m.SessionEndsTotal == nil {
		t.Error("SessionEndsTotal not initialized")
	}
	if m.RowAppendsTotal == nil {
		t.Error("RowAppendsTotal not initialized")
	}
}

func TestMetrics_ConversationCounters(t *testing.T) {
	m := newTestMetrics()

	m.RecordSessionEnd(EndReasonExit)
	m.RecordSessionEnd(EndReasonTimeout)
	m.RecordSessionEnd(EndReasonTimeout)
	m.RecordQuotationCompleted()
	m.RecordFeedback("positive")
	m.SetActiveSessions(7)
	m.RecordHandlerPanic()

	if got := testutil.ToFloat64(m.SessionEndsTotal.WithLabelValues(EndReasonTimeout)); got != 2 {
		t.Errorf("timeout ends = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QuotationsCompleted); got != 1 {
		t.Errorf("quotations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FeedbackTotal.WithLabelValues("positive")); got != 1 {
		t.Errorf("feedback = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 7 {
		t.Errorf("active sessions = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.HandlerPanicsTotal); got != 1 {
		t.Errorf("panics = %v, want 1", got)
	}
}

func TestMetrics_OutboundAndUpstreams(t *testing.T) {
	m := newTestMetrics()
	boom := errors.New("boom")

	m.RecordOutbound("text", nil)
	m.RecordOutbound("text", boom)
	m.RecordAssistantCall(true, 200*time.Millisecond)
	m.RecordAssistantCall(false, time.Second)
	m.RecordAssistantRejected()
	m.RecordRowAppend("google", nil)
	m.RecordRowAppend("google", boom)
	m.SetCircuitBreakerState("assistant", 1)

	if got := testutil.ToFloat64(m.OutboundMessagesTotal.WithLabelValues("text", "failure")); got != 1 {
		t.Errorf("failed text sends = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AssistantCallsTotal.WithLabelValues("circuit_open")); got != 1 {
		t.Errorf("rejected assistant calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RowAppendsTotal.WithLabelValues("google", "success")); got != 1 {
		t.Errorf("row appends = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("assistant")); got != 1 {
		t.Errorf("breaker state = %v, want 1", got)
	}
}

func TestMetrics_WebhookIntake(t *testing.T) {
	m := newTestMetrics()

	m.RecordWebhook("accepted")
	m.RecordInboundEvent("text")
	m.RecordInboundEvent("button")
	m.RecordEventDropped("duplicate")

	if got := testutil.ToFloat64(m.WebhooksReceivedTotal.WithLabelValues("accepted")); got != 1 {
		t.Errorf("accepted webhooks = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.InboundEventsTotal); got != 2 {
		t.Errorf("inbound event series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.EventsDroppedTotal.WithLabelValues("duplicate")); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m := newTestMetrics()

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/random/path/123", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/webhook", "202")); got != 1 {
		t.Errorf("webhook requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "other", "202")); got != 1 {
		t.Errorf("other requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := newTestMetrics()
	m.RecordQuotationCompleted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ferrabot_quotations_completed_total 1") {
		t.Error("expected quotation counter in exposition output")
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/webhook":         "/webhook",
		"/metrics":         "/metrics",
		"/admin/log-level": "/admin/log-level",
		"/wp-login.php":    "other",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
