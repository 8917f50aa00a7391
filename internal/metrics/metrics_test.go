package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/drive-control/dcc/internal/metrics"
	"github.com/drive-control/dcc/internal/testutil"
)

func constSampler(v float64) func() float64 {
	return func() float64 { return v }
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(constSampler(0), constSampler(5), constSampler(10))
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	return rec.Body.String()
}

func TestNewRegistersAllCollectors(t *testing.T) {
	m := newTestMetrics()

	body := scrape(t, m)
	for _, want := range []string{
		"dcc_queue_depth 0",
		`dcc_ratelimit_tokens{limiter="ingress"} 5`,
		`dcc_ratelimit_tokens{limiter="execution"} 10`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestTokenGaugesShareOneMetricFamily(t *testing.T) {
	m := newTestMetrics()

	body := scrape(t, m)
	testutil.AssertEqual(t, strings.Count(body, "# HELP dcc_ratelimit_tokens"), 1)
	testutil.AssertEqual(t, strings.Count(body, "# TYPE dcc_ratelimit_tokens"), 1)
}

func TestCountersAppearAfterObservation(t *testing.T) {
	m := newTestMetrics()
	m.ObserveRequest(http.MethodPost, "/drive/differential", http.StatusAccepted)
	m.LimiterAllowed("ingress")
	m.LimiterDenied("execution")
	m.CommandExecuted()

	body := scrape(t, m)
	for _, want := range []string{
		`dcc_requests_total{code="202",method="POST",path="/drive/differential"} 1`,
		`dcc_ratelimit_allowed_total{limiter="ingress"} 1`,
		`dcc_ratelimit_denied_total{limiter="execution"} 1`,
		"dcc_commands_executed_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestNilMetricsIsInert(t *testing.T) {
	var m *metrics.Metrics

	m.ObserveRequest(http.MethodGet, "/telemetry", http.StatusOK)
	m.LimiterAllowed("ingress")
	m.LimiterDenied("ingress")
	m.CommandExecuted()

	h := m.Handler()
	if h == nil {
		t.Fatal("nil metrics should still return a handler")
	}
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	testutil.AssertEqual(t, rec.Code, http.StatusNotFound)
}
