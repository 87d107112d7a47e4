package handlers

import (
	"net/http"

	"github.com/trafficdeck/trafficdeck/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready bool `json:"ready"`
}

// Readyz reports ready once the dashboard has something to show: either
// the realtime channel is up, or at least one snapshot has been applied.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := d.Stream.Connected() || !d.Registry.LastApplied().IsZero()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readyzResponse{Ready: ready})
	}
}
