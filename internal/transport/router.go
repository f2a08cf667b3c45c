package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/internal/config"
	"github.com/pitabwire/govconsole/internal/dedupe"
	"github.com/pitabwire/govconsole/internal/observability"
	"github.com/pitabwire/govconsole/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Dashboards         *Dashboards
	Guard              dedupe.Guard
	Readiness          observability.ReadinessChecks

	// Metrics and Gatherer are optional; without them no metrics are
	// recorded or served.
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer

	Logger *zap.Logger
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if cfg.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes bypass authentication.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	if cfg.Observability.Metrics.Enabled && deps.Gatherer != nil {
		r.Handle(cfg.Observability.Metrics.Path, observability.Handler(deps.Gatherer))
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	var onLimited, onDuplicate func()
	if deps.Metrics != nil {
		onLimited = deps.Metrics.RecordRateLimited
		onDuplicate = deps.Metrics.RecordDedupeRejection
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(cfg.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		if cfg.RateLimit.Enabled {
			r.Use(NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).Middleware(onLimited))
		}
		r.Use(HandlerTimeout(cfg.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		if deps.Dashboards != nil {
			r.Method(http.MethodPost, "/interactions", &InteractionHandler{
				Dashboards:   deps.Dashboards,
				Guard:        deps.Guard,
				OnDuplicate:  onDuplicate,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
				Logger:       logger,
			})
		}
	})

	return r
}
