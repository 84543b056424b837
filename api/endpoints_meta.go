package api

import (
	"net/http"

	"github.com/ainotebook/notebase/info"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/metrics"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.notes.Ping(r.Context()); err != nil {
		log.Warningf("api: health check failed: %s", err)
		respond(w, r, http.StatusInternalServerError, body{
			"status":   "error",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}
	respond(w, r, http.StatusOK, body{
		"status":   "ok",
		"database": "connected",
	})
}

func handleInfo(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, body{
		"success": true,
		"info":    info.GetInfo(),
	})
}

func handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WriteMetrics(w, true)
}
