package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aiakap/travel-planner-v1/internal/http/handlers"
	"github.com/aiakap/travel-planner-v1/internal/middleware"
)

type Options struct {
	Logger          zerolog.Logger
	RateLimitPerMin int
	// StaticDir serves filesystem-stored images under /static; empty disables it.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)
	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Handle("/static/*", fs)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Route("/v1/trips", func(r chi.Router) {
			r.Post("/", app.CreateTrip)
			r.Get("/{id}", app.GetTrip)
			r.Put("/{id}", app.UpdateTrip)
			r.Post("/{id}/segments", app.CreateSegment)
		})
		r.Route("/v1/segments", func(r chi.Router) {
			r.Get("/{id}", app.GetSegment)
			r.Put("/{id}", app.UpdateSegment)
			r.Post("/{id}/reservations", app.CreateReservation)
		})
		r.Route("/v1/reservations", func(r chi.Router) {
			r.Get("/{id}", app.GetReservation)
			r.Put("/{id}", app.UpdateReservation)
		})

		r.Route("/v1/images/{entity_type}/{id}", func(r chi.Router) {
			r.Post("/regenerate", app.RegenerateImage)
			r.Post("/reset", app.ResetImage)
		})
		r.Route("/v1/image-jobs", func(r chi.Router) {
			r.Get("/", app.ListJobs)
			r.Get("/stats", app.JobStats)
			r.Get("/{job_id}", app.GetJob)
		})
		r.Get("/v1/image-prompts", app.ListPrompts)
	})

	return r
}
