package api

import (
	"net/http"
)

func (s *Server) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		jsonError(w, "usage stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":    s.cfg.Provider,
		"model":       s.cfg.Model,
		"mode":        s.cfg.Mode,
		"queue_depth": s.orchestrator.QueueDepth(),
		"usage":       s.usage.Snapshot(),
	})
}
