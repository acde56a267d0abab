package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/griffin-monitoring/griffin/internal/config"
	"github.com/griffin-monitoring/griffin/internal/metrics"
	"github.com/griffin-monitoring/griffin/internal/queue"
	"github.com/griffin-monitoring/griffin/internal/repository"
	"github.com/griffin-monitoring/griffin/internal/version"
)

// NewRouter builds Griffin's HTTP API: the chi middleware stack the
// teacher's own server wires (RequestID, RealIP, Logger, Recoverer,
// per-route timeout, CORS, request size limit, per-IP rate limit), a
// documented public health endpoint, hidden Kubernetes probes, and the
// plan/run CRUD routes behind bearer auth.
func NewRouter(cfg config.HTTPConfig, plans repository.PlanRepository, runs repository.RunRepository, q queue.Queue, db DBPinger, logger *slog.Logger) (http.Handler, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(Timeout(TimeoutConfig{
		Default:          cfg.RequestTimeout,
		Extended:         cfg.ExtendedTimeout,
		ExtendedPatterns: cfg.ExtendedPatterns,
	}))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.RequestSize(1 * 1024 * 1024))
	router.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))

	v := version.Get()

	humaConfig := huma.DefaultConfig("Griffin API", v.Version)
	humaConfig.Info.Description = "Synthetic monitoring API for scheduling and triggering HTTP test plans."
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:        "http",
			Scheme:      "bearer",
			Description: "API key or JWT bearer auth. Include it as `Bearer <token>`.",
		},
	}
	api := humachi.New(router, humaConfig)

	hiddenConfig := huma.DefaultConfig("Griffin API", v.Version)
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)

	huma.Get(api, "/api/v1/health", HealthCheck(v.Version))
	huma.Get(hiddenAPI, "/healthz", Livez)
	readyz := NewReadyzHandler(db)
	huma.Get(hiddenAPI, "/readyz", readyz.Readyz)

	router.Handle("/metrics", metrics.Handler())

	schema, err := compilePlanSchema()
	if err != nil {
		return nil, err
	}

	auth := NewAuthenticator(cfg.APIKeyHash, cfg.JWKSURL)
	planHandler := NewPlanHandler(plans)
	runHandler := NewRunHandler(runs, plans, q)

	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Use(ValidatePlanBody(schema))

		protectedConfig := huma.DefaultConfig("Griffin API", v.Version)
		protectedConfig.DocsPath = ""
		protectedConfig.OpenAPIPath = ""
		protectedConfig.SchemasPath = ""
		protectedAPI := humachi.New(r, protectedConfig)

		huma.Post(protectedAPI, "/plans", planHandler.Create)
		huma.Get(protectedAPI, "/plans", planHandler.List)
		huma.Put(protectedAPI, "/plans/{id}", planHandler.Update)
		huma.Delete(protectedAPI, "/plans/{id}", planHandler.Delete)
		huma.Get(protectedAPI, "/plans/by-name", planHandler.GetByName)

		huma.Post(protectedAPI, "/runs/trigger/{planId}", runHandler.Trigger)
		huma.Get(protectedAPI, "/runs", runHandler.List)
		huma.Get(protectedAPI, "/runs/{id}", runHandler.Get)
		huma.Patch(protectedAPI, "/runs/{id}", runHandler.Patch)
	})

	logger.Info("http api routes registered", "addr", cfg.Addr)
	return router, nil
}
