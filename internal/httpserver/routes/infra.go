package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trafficdeck/trafficdeck/internal/httpserver/deps"
	"github.com/trafficdeck/trafficdeck/internal/httpserver/handlers"
)

func init() { Register(registerInfra) }

func registerInfra(r chi.Router, d deps.Deps) {
	r.Get("/api/healthz", handlers.Healthz(d))
	r.Get("/api/readyz", handlers.Readyz(d))
	r.Post("/api/refresh", handlers.Refresh(d))
	r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
}
