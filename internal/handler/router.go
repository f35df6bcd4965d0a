package handler

import (
	"net/http"

	"github.com/carvision/defect-api/internal/infra/observability"
	"github.com/carvision/defect-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Deps bundles everything the router needs.
type Deps struct {
	Identity *service.IdentityService
	Predict  *service.PredictionService
	Metrics  *observability.Metrics
	Logger   *zap.Logger

	// StaticDir is served under /static for annotated image retrieval.
	StaticDir string

	// Ready reports readiness of downstream dependencies.
	Ready func() error
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(d.Logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyzHandler(d.Ready))
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, d.Metrics.GetDetectionSnapshot())
	})

	// --- Public API ---
	r.Post("/live-predict", livePredictHandler(d.Predict, d.Metrics, d.Logger))

	// --- Authenticated API ---
	r.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(d.Identity, d.Logger))

		r.Get("/users/me", meHandler(d.Logger))
		r.Post("/users/onboard", onboardHandler(d.Identity, d.Logger))
		r.Post("/predict", predictHandler(d.Predict, d.Metrics, d.Logger))
		r.Get("/user/detections", userDetectionsHandler(d.Predict, d.Logger))
		r.Get("/company/users", companyUsersHandler(d.Predict, d.Logger))
		r.Delete("/detections/{detectionID}", deleteDetectionHandler(d.Predict, d.Logger))
	})

	// --- Static files (annotated images) ---
	if d.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(d.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}

func readyzHandler(ready func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
