// Package api exposes the leaderboard service over HTTP.
//
// The caller's gamespace and account come from the X-Gamespace and X-Account
// headers, set by the gateway in front of this service after it has checked
// the access token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/mq/queue"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/ranking"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/types"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
	"github.com/anthill-platform/anthill-leaderboard/pkg/metrics"
)

// Identity headers.
const (
	HeaderGamespace = "X-Gamespace"
	HeaderAccount   = "X-Account"
)

const (
	defaultLimit = 1000
	maxLimit     = 1000
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Ref(gamespace, name string, order model.SortOrder) model.Ref

	Upsert(ctx context.Context, req types.Submission) (bool, error)
	DeleteEntry(ctx context.Context, ref model.Ref, account string) error
	DeleteLeaderboardByName(ctx context.Context, ref model.Ref) error
	EnqueuePurge(ctx context.Context, e model.PurgeEvent) (string, error)

	Top(ctx context.Context, ref model.Ref, account string, offset, limit int) (model.Page, error)
	AroundMe(ctx context.Context, ref model.Ref, account string, offset, limit int) (model.Page, error)
	Friends(ctx context.Context, ref model.Ref, account string, offset, limit int) (model.Page, error)
	ListAllClusters(ctx context.Context, ref model.Ref, limit int) (ranking.Aggregate, error)

	Ping(ctx context.Context) error
	Stats() types.Stats
}

// Server wires HTTP routes for the leaderboard API.
type Server struct {
	deps         Dependencies
	defaultLimit int
	maxLimit     int
	logger       logger.Logger
	router       chi.Router
}

// NewServer creates the API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:         deps,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	s.router = s.routes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metricsMiddleware)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Route("/leaderboard/{order}/{name}", func(r chi.Router) {
		r.Get("/", s.handleTop)
		r.Post("/", s.handleUpsert)
		r.Get("/around", s.handleAroundMe)
		r.Get("/friends", s.handleFriends)
		r.Get("/clusters", s.handleClusters)
		r.Delete("/entry", s.handleDeleteEntry)
	})
	r.Route("/internal", func(r chi.Router) {
		r.Get("/leaderboard/{order}/{name}", s.handleInternalTop)
		r.Delete("/leaderboard/{order}/{name}", s.handleDeleteLeaderboard)
		r.Post("/accounts/purged", s.handleAccountsPurged)
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// noRankResponse is the page returned to an account without a cluster.
type noRankResponse struct {
	model.Page
	NoRank bool `json:"no_rank"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps a service error onto a response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, model.ErrLeaderboardNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, model.ErrNoClusterPlacement):
		writeJSON(w, http.StatusOK, noRankResponse{Page: model.EmptyPage(), NoRank: true})
	case errors.Is(err, model.ErrInvalidArgument), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, queue.ErrClosed), model.IsRetryable(err):
		s.logger.Warn(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		s.logger.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
