package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/types"
)

const maxBodyBytes = 1 << 20

type submissionBody struct {
	Score       float64        `json:"score"`
	DisplayName string         `json:"display_name"`
	ExpireIn    int64          `json:"expire_in"`
	Profile     map[string]any `json:"profile"`
}

type upsertResponse struct {
	Inserted bool `json:"inserted"`
}

type clusterView struct {
	Entries int            `json:"entries"`
	Data    []model.Ranked `json:"data"`
	Error   string         `json:"error,omitempty"`
}

type clustersResponse struct {
	Clusters map[string]clusterView `json:"clusters"`
	Failed   []int64                `json:"failed"`
}

// ref builds the leaderboard address from the path and the gamespace header.
func (s *Server) ref(r *http.Request) (model.Ref, error) {
	order, err := model.ParseSortOrder(chi.URLParam(r, "order"))
	if err != nil {
		return model.Ref{}, err
	}
	gamespace := strings.TrimSpace(r.Header.Get(HeaderGamespace))
	if gamespace == "" {
		return model.Ref{}, NewKind("missing "+HeaderGamespace+" header", ErrBadRequest)
	}
	ref := s.deps.Ref(gamespace, chi.URLParam(r, "name"), order)
	if err := ref.Validate(); err != nil {
		return model.Ref{}, err
	}
	return ref, nil
}

func account(r *http.Request) (string, error) {
	acc := strings.TrimSpace(r.Header.Get(HeaderAccount))
	if acc == "" {
		return "", NewKind("missing "+HeaderAccount+" header", ErrBadRequest)
	}
	return acc, nil
}

// page reads offset and limit. A missing limit takes the default and a
// larger one is capped.
func (s *Server) page(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	offset, err = intParam(q.Get("offset"), 0)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: offset: %w", ErrBadRequest, err)
	}
	limit, err = intParam(q.Get("limit"), s.defaultLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: limit: %w", ErrBadRequest, err)
	}
	if offset < 0 || limit < 0 {
		return 0, 0, fmt.Errorf("%w: offset and limit must not be negative", ErrBadRequest)
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return offset, limit, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	s.top(w, r, "api.top", strings.TrimSpace(r.Header.Get(HeaderAccount)))
}

func (s *Server) top(w http.ResponseWriter, r *http.Request, op, account string) {
	ref, err := s.ref(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	offset, limit, err := s.page(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	page, err := s.deps.Top(r.Context(), ref, account, offset, limit)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleAroundMe(w http.ResponseWriter, r *http.Request) {
	s.accountQuery(w, r, "api.around_me", s.deps.AroundMe)
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	s.accountQuery(w, r, "api.friends", s.deps.Friends)
}

type accountQueryFunc func(ctx context.Context, ref model.Ref, account string, offset, limit int) (model.Page, error)

func (s *Server) accountQuery(w http.ResponseWriter, r *http.Request, op string, query accountQueryFunc) {
	ref, err := s.ref(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	acc, err := account(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	offset, limit, err := s.page(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	page, err := query(r.Context(), ref, acc, offset, limit)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	const op = "api.clusters"
	ref, err := s.ref(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	_, limit, err := s.page(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	agg, err := s.deps.ListAllClusters(r.Context(), ref, limit)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	resp := clustersResponse{Clusters: make(map[string]clusterView, len(agg.Clusters)), Failed: agg.Failed()}
	if resp.Failed == nil {
		resp.Failed = []int64{}
	}
	for id, slot := range agg.Clusters {
		view := clusterView{Entries: slot.Page.Entries, Data: slot.Page.Data}
		if view.Data == nil {
			view.Data = []model.Ranked{}
		}
		if slot.Err != nil {
			view.Error = slot.Err.Error()
		}
		resp.Clusters[strconv.FormatInt(id, 10)] = view
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert"
	ref, err := s.ref(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	acc, err := account(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if err := validate(submissionLoader, body); err != nil {
		s.fail(w, r, op, err)
		return
	}
	var in submissionBody
	if err := json.Unmarshal(body, &in); err != nil {
		s.fail(w, r, op, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	inserted, err := s.deps.Upsert(r.Context(), types.Submission{
		Gamespace:   ref.Gamespace,
		Name:        ref.Name,
		Order:       ref.Order,
		Account:     acc,
		Score:       in.Score,
		DisplayName: in.DisplayName,
		Profile:     in.Profile,
		ExpireIn:    time.Duration(in.ExpireIn) * time.Second,
	})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, upsertResponse{Inserted: inserted})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_entry"
	ref, err := s.ref(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	acc, err := account(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if err := s.deps.DeleteEntry(r.Context(), ref, acc); err != nil {
		s.fail(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body too large", ErrBadRequest)
	}
	return body, nil
}
