package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/trafficdeck/trafficdeck/internal/httpserver/deps"
)

// Registrar mounts one group of routes on the router.
type Registrar func(r chi.Router, d deps.Deps)

// registrars is populated by the init() of each route file in this package,
// so adding a route group never touches server wiring.
var registrars []Registrar

func Register(reg Registrar) {
	registrars = append(registrars, reg)
}

// RegisterAll mounts every registered group. Called once from server.New().
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, reg := range registrars {
		reg(r, d)
	}
}
