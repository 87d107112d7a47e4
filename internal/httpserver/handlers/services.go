package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trafficdeck/trafficdeck/internal/domain"
	"github.com/trafficdeck/trafficdeck/internal/httpserver/deps"
)

type servicesResponse struct {
	Connected bool                   `json:"connected"`
	Services  []domain.ServiceRecord `json:"services"`
}

// ListServices serves the registry snapshot plus channel connectivity for
// the table view.
func ListServices(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, servicesResponse{
			Connected: d.Stream.Connected(),
			Services:  d.Registry.Snapshot(),
		})
	}
}

// GetService serves a single service record.
func GetService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "service")
		rec, ok := d.Registry.Get(name)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown service "+name)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}
