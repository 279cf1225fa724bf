package api

import (
	"net/http"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/types"
)

type healthResponse struct {
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
	Stats  types.Stats `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Stats: s.deps.Stats()}
	if err := s.deps.Ping(r.Context()); err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
