package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"kiri/internal/gateway/handler"
	"kiri/internal/gateway/middleware"
	"kiri/internal/telemetry"
)

type Handlers struct {
	Projects *handler.ProjectHandler
	Preview  *handler.PreviewHandler
	Watch    *handler.WatchHandler
	Health   *handler.HealthHandler
	Metrics  http.Handler

	// RequestsPerMinute limits each client IP on /v1; zero disables it.
	RequestsPerMinute int
}

func NewMux(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(telemetry.Middleware("kiri-gateway"))
		if h.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(h.RequestsPerMinute, time.Minute))
		}
		r.Post("/preview", h.Preview.Preview)
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.Projects.List)
			r.Post("/", h.Projects.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Projects.Get)
				r.Delete("/", h.Projects.Delete)
				r.Post("/classify", h.Projects.Classify)
				r.Get("/watch", h.Watch.Watch)
			})
		})
	})
	return r
}
