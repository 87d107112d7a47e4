package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trafficdeck/trafficdeck/internal/editor"
	"github.com/trafficdeck/trafficdeck/internal/httpserver/deps"
	"github.com/trafficdeck/trafficdeck/internal/logger"
)

type trafficRequest struct {
	Backends []backendPatch `json:"backends"`
}

type backendPatch struct {
	ID string `json:"id"`
	// Ratio is a pointer so "ratio missing" is distinguishable from
	// "ratio: 0"; a missing ratio is refused before any write-back.
	Ratio *int `json:"ratio"`
}

// UpdateTraffic drives one editing session end to end: open a working copy,
// apply the requested ratios, submit. Validation failures come back as 422
// with no upstream call; write-back failures come back as 502 carrying the
// server's message.
func UpdateTraffic(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "service")

		var req trafficRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if len(req.Backends) == 0 {
			writeError(w, http.StatusBadRequest, "no backends in request")
			return
		}

		sess, err := d.Editor.Open(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		for _, patch := range req.Backends {
			if patch.Ratio == nil {
				sess.Cancel()
				writeError(w, http.StatusUnprocessableEntity,
					fmt.Sprintf("backend %q has no ratio", patch.ID))
				return
			}
			if err := sess.SetRatio(patch.ID, *patch.Ratio); err != nil {
				sess.Cancel()
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
		}

		if err := sess.Submit(r.Context()); err != nil {
			var vErr *editor.ValidationError
			if errors.As(err, &vErr) {
				writeError(w, http.StatusUnprocessableEntity, vErr.Error())
				return
			}
			d.Logger.Warn("traffic update failed",
				logger.String("service", name),
				logger.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		// The registry stays as-is until the server echoes the change back
		// on the realtime channel.
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
	}
}
