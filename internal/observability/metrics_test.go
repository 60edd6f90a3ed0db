package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return InitMetrics(reg), reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)

	// Vec metrics only appear once a label set is used.
	m.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)
	m.RecordTrigger("wf", "started")
	m.RecordDecision("wf", "approve")
	m.RecordStepDuration("wf", "review", time.Minute)
	m.RecordCompletion("wf", "approved", time.Hour)
	m.RecordSLAExceeded("wf", "review")
	m.RecordEscalation("wf", "review")
	m.RecordNotificationFailure("step_assigned")
	m.RecordDefinitionReload("success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range []string{
		"signoff_http_requests_total",
		"signoff_http_request_duration_seconds",
		"signoff_workflow_triggers_total",
		"signoff_workflow_decisions_total",
		"signoff_workflow_completions_total",
		"signoff_workflow_active_instances",
		"signoff_workflow_step_duration_seconds",
		"signoff_workflow_duration_seconds",
		"signoff_sla_exceeded_total",
		"signoff_escalations_total",
		"signoff_notification_failures_total",
		"signoff_directory_cache_hits_total",
		"signoff_directory_cache_misses_total",
		"signoff_definition_reload_total",
		"signoff_definitions_loaded",
	} {
		if !names[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestRecordWorkflowLifecycle(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTrigger("contract", "started")
	m.RecordTrigger("contract", "started")
	m.RecordTrigger("contract", "already_active")

	if v := testutil.ToFloat64(m.WorkflowActiveInstances.WithLabelValues("contract")); v != 2 {
		t.Errorf("active after two starts = %v, want 2", v)
	}

	m.RecordCompletion("contract", "rejected", 90*time.Minute)
	if v := testutil.ToFloat64(m.WorkflowActiveInstances.WithLabelValues("contract")); v != 1 {
		t.Errorf("active after completion = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.WorkflowCompletionsTotal.WithLabelValues("contract", "rejected")); v != 1 {
		t.Errorf("completions = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.WorkflowTriggersTotal.WithLabelValues("contract", "already_active")); v != 1 {
		t.Errorf("already_active triggers = %v, want 1", v)
	}
}

func TestObserveDirectoryCache(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveDirectoryCache(true)
	m.ObserveDirectoryCache(true)
	m.ObserveDirectoryCache(false)

	if v := testutil.ToFloat64(m.DirectoryCacheHitsTotal); v != 2 {
		t.Errorf("hits = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.DirectoryCacheMissesTotal); v != 1 {
		t.Errorf("misses = %v, want 1", v)
	}
}

func TestSetDefinitionsLoaded(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.SetDefinitionsLoaded(4)
	if v := testutil.ToFloat64(m.DefinitionsLoaded); v != 4 {
		t.Errorf("definitions loaded = %v, want 4", v)
	}
}

func TestMetricsMiddleware_usesRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/api/workflows/status/{documentId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/workflows/status/doc-42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/workflows/status/{documentId}", "404"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))

	if v := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/plain", "200")); v != 1 {
		t.Errorf("requests total = %v, want 1", v)
	}
}

func TestHandlerFor_servesMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordDecision("contract", "approve")

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `signoff_workflow_decisions_total{action="approve",workflow_id="contract"} 1`) {
		t.Error("decision counter missing from exposition")
	}
}
