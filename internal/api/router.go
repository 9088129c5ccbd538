package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxConcurrentRequests = 1000

func NewRouter(handler *Handler, health *HealthHandler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health checks and scrapes stay outside the rate limiter.
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		rl := NewRateLimiter(maxConcurrentRequests, logger)
		r.Use(rl.Middleware)
		r.Use(MetricsMiddleware)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/messages", handler.Message)
			r.Post("/conversation/reset", handler.Reset)

			r.Get("/places/{fsqID}", handler.Place)
			r.Post("/places/{fsqID}/select", handler.SelectPlace)
			r.Get("/places/{fsqID}/related", handler.Related)
			r.Get("/results/{id}", handler.Result)

			r.Get("/categories", handler.Categories)
			r.Get("/tastes", handler.Tastes)

			r.Get("/locations", handler.SearchLocations)
			r.Post("/locations", handler.SaveLocation)
			r.Get("/locations/{name}", handler.Location)

			r.Route("/cache", func(r chi.Router) {
				r.Get("/", handler.CacheStatus)
				r.Delete("/", handler.ClearCache)
				r.Post("/refresh", handler.RefreshCache)
				r.Post("/records", handler.AppendRecord)
				r.Delete("/records/{group}/{identity}", handler.RemoveRecord)
				r.Post("/recommendations", handler.AppendRecommendation)
			})
		})
	})

	return r
}
