package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/signoff/internal/config"
	"github.com/pitabwire/signoff/internal/observability"
	"github.com/pitabwire/signoff/internal/openapi"
	"github.com/pitabwire/signoff/internal/workflow"
	"github.com/pitabwire/signoff/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Engine    *workflow.Engine
	Documents model.DocumentStore
	Spec      *openapi.Spec
	Logger    *zap.Logger

	// Authenticate verifies callers. Nil leaves the API open and the acting
	// user is taken from the request body.
	Authenticate func(http.Handler) http.Handler

	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics and the API description
// bypass authentication.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		if deps.Gatherer != nil {
			r.Handle(path, observability.HandlerFor(deps.Gatherer))
		} else {
			r.Handle(path, observability.Handler())
		}
	}
	if deps.Spec != nil {
		r.Get("/openapi.json", deps.Spec.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(MaxBodyBytes(deps.Config.Server.MaxBodyBytes))
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.RolesClaim))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Post("/api/workflows/trigger", handleTrigger(deps.Engine, deps.Spec))
		r.Get("/api/workflows/status/{documentId}", handleStatus(deps.Engine))
		r.Post("/api/workflows/action", handleAction(deps.Engine, deps.Spec))
		r.Post("/api/workflows/cancel", handleCancel(deps.Engine, deps.Spec))
		r.Get("/api/workflows", handleList(deps.Engine))
		r.Get("/api/workflows/audit/{documentId}", handleAuditTrail(deps.Engine))
		r.Post("/api/documents/{collection}/{documentId}/events",
			handleDocumentEvent(deps.Engine, deps.Documents, deps.Spec, logger))
	})

	return r
}
