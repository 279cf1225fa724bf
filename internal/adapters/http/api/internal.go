package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
)

type purgeBody struct {
	EventID       string   `json:"event_id"`
	Gamespace     string   `json:"gamespace"`
	Accounts      []string `json:"accounts"`
	GamespaceOnly bool     `json:"gamespace_only"`
}

type purgeResponse struct {
	EventID string `json:"event_id"`
}

// handleInternalTop pages a leaderboard for another service. No account is
// involved, so a clustered leaderboard reads as unranked.
func (s *Server) handleInternalTop(w http.ResponseWriter, r *http.Request) {
	s.top(w, r, "api.internal_top", "")
}

// handleDeleteLeaderboard drops a leaderboard with all its entries and
// placements. Deleting a missing leaderboard succeeds.
func (s *Server) handleDeleteLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_leaderboard"
	ref, err := s.ref(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if err := s.deps.DeleteLeaderboardByName(r.Context(), ref); err != nil {
		s.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAccountsPurged accepts an account deletion event for asynchronous
// processing.
func (s *Server) handleAccountsPurged(w http.ResponseWriter, r *http.Request) {
	const op = "api.accounts_purged"
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if err := validate(purgeLoader, body); err != nil {
		s.fail(w, r, op, err)
		return
	}
	var in purgeBody
	if err := json.Unmarshal(body, &in); err != nil {
		s.fail(w, r, op, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	id, err := s.deps.EnqueuePurge(r.Context(), model.PurgeEvent{
		EventID:       in.EventID,
		Gamespace:     in.Gamespace,
		Accounts:      in.Accounts,
		GamespaceOnly: in.GamespaceOnly,
	})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, purgeResponse{EventID: id})
}
