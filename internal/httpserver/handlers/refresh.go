package handlers

import (
	"net/http"

	"github.com/trafficdeck/trafficdeck/internal/httpserver/deps"
	"github.com/trafficdeck/trafficdeck/internal/logger"
)

// Refresh triggers a manual snapshot fetch from the control server.
func Refresh(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.RefreshTrigger <- struct{}{}:
			d.Logger.Info("manual refresh triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh triggered"})
		default:
			d.Logger.Warn("refresh already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			writeError(w, http.StatusTooManyRequests, "refresh already in progress")
		}
	}
}
