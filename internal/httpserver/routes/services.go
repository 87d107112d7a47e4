package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/trafficdeck/trafficdeck/internal/httpserver/deps"
	"github.com/trafficdeck/trafficdeck/internal/httpserver/handlers"
)

func init() { Register(registerServices) }

func registerServices(r chi.Router, d deps.Deps) {
	r.Get("/api/services", handlers.ListServices(d))
	r.Get("/api/services/{service}", handlers.GetService(d))
	r.Post("/api/services/{service}/traffic", handlers.UpdateTraffic(d))
}
