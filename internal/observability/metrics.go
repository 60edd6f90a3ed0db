package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// Approval steps run from minutes to days.
	stepDurationBuckets = []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 3 * 24 * 3600, 7 * 24 * 3600}
)

// Metrics holds all Prometheus metric instruments for signoff. It satisfies
// the workflow engine's Recorder interface.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	WorkflowTriggersTotal    *prometheus.CounterVec
	WorkflowDecisionsTotal   *prometheus.CounterVec
	WorkflowCompletionsTotal *prometheus.CounterVec
	WorkflowActiveInstances  *prometheus.GaugeVec
	WorkflowStepDuration     *prometheus.HistogramVec
	WorkflowDuration         *prometheus.HistogramVec
	SLAExceededTotal         *prometheus.CounterVec
	EscalationsTotal         *prometheus.CounterVec
	NotificationFailures     *prometheus.CounterVec

	// Directory cache
	DirectoryCacheHitsTotal   prometheus.Counter
	DirectoryCacheMissesTotal prometheus.Counter

	// Definitions
	DefinitionReloadTotal *prometheus.CounterVec
	DefinitionsLoaded     prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signoff_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		WorkflowTriggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_workflow_triggers_total",
			Help: "Trigger requests by result (started, already_active, no_workflow).",
		}, []string{"workflow_id", "result"}),
		WorkflowDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_workflow_decisions_total",
			Help: "Recorded decisions by action.",
		}, []string{"workflow_id", "action"}),
		WorkflowCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_workflow_completions_total",
			Help: "Completed workflows by outcome.",
		}, []string{"workflow_id", "outcome"}),
		WorkflowActiveInstances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signoff_workflow_active_instances",
			Help: "Workflow instances started minus completed by this process.",
		}, []string{"workflow_id"}),
		WorkflowStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signoff_workflow_step_duration_seconds",
			Help:    "Time from step start to step completion.",
			Buckets: stepDurationBuckets,
		}, []string{"workflow_id", "step_id"}),
		WorkflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signoff_workflow_duration_seconds",
			Help:    "Time from workflow start to completion.",
			Buckets: stepDurationBuckets,
		}, []string{"workflow_id", "outcome"}),
		SLAExceededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_sla_exceeded_total",
			Help: "Steps that ran past their SLA.",
		}, []string{"workflow_id", "step_id"}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_escalations_total",
			Help: "SLA escalations sent.",
		}, []string{"workflow_id", "step_id"}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_notification_failures_total",
			Help: "Notifications that could not be delivered.",
		}, []string{"kind"}),

		DirectoryCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signoff_directory_cache_hits_total",
			Help: "Total user directory cache hits.",
		}),
		DirectoryCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signoff_directory_cache_misses_total",
			Help: "Total user directory cache misses.",
		}),

		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signoff_definitions_loaded",
			Help: "Number of loaded workflow definitions.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WorkflowTriggersTotal,
		m.WorkflowDecisionsTotal,
		m.WorkflowCompletionsTotal,
		m.WorkflowActiveInstances,
		m.WorkflowStepDuration,
		m.WorkflowDuration,
		m.SLAExceededTotal,
		m.EscalationsTotal,
		m.NotificationFailures,
		m.DirectoryCacheHitsTotal,
		m.DirectoryCacheMissesTotal,
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordTrigger records a trigger request. A started workflow also raises
// the active gauge.
func (m *Metrics) RecordTrigger(workflowID, result string) {
	m.WorkflowTriggersTotal.WithLabelValues(workflowID, result).Inc()
	if result == "started" {
		m.WorkflowActiveInstances.WithLabelValues(workflowID).Inc()
	}
}

func (m *Metrics) RecordDecision(workflowID, action string) {
	m.WorkflowDecisionsTotal.WithLabelValues(workflowID, action).Inc()
}

func (m *Metrics) RecordStepDuration(workflowID, stepID string, d time.Duration) {
	m.WorkflowStepDuration.WithLabelValues(workflowID, stepID).Observe(d.Seconds())
}

// RecordCompletion records a finished workflow and lowers the active gauge.
func (m *Metrics) RecordCompletion(workflowID, outcome string, d time.Duration) {
	m.WorkflowCompletionsTotal.WithLabelValues(workflowID, outcome).Inc()
	m.WorkflowDuration.WithLabelValues(workflowID, outcome).Observe(d.Seconds())
	m.WorkflowActiveInstances.WithLabelValues(workflowID).Dec()
}

func (m *Metrics) RecordSLAExceeded(workflowID, stepID string) {
	m.SLAExceededTotal.WithLabelValues(workflowID, stepID).Inc()
}

func (m *Metrics) RecordEscalation(workflowID, stepID string) {
	m.EscalationsTotal.WithLabelValues(workflowID, stepID).Inc()
}

func (m *Metrics) RecordNotificationFailure(kind string) {
	m.NotificationFailures.WithLabelValues(kind).Inc()
}

// ObserveDirectoryCache records a directory cache lookup. Its signature
// matches the observer taken by directory.NewCachedDirectory.
func (m *Metrics) ObserveDirectoryCache(hit bool) {
	if hit {
		m.DirectoryCacheHitsTotal.Inc()
		return
	}
	m.DirectoryCacheMissesTotal.Inc()
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded definitions.
func (m *Metrics) SetDefinitionsLoaded(count int) {
	m.DefinitionsLoaded.Set(float64(count))
}

// --- HTTP Middleware ---

// MetricsMiddleware records request metrics labelled by chi's route pattern
// rather than the raw path, keeping label cardinality bounded.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving the given registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.TrimSuffix(strings.Join(rctx.RoutePatterns, ""), "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}
