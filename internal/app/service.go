// Package service composes the leaderboard directory, cluster router and
// ranking engine into the operations the HTTP API exposes, and runs the
// background expiry sweeper and account-purge workers.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/mq/queue"
	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/mq/worker"
	"github.com/anthill-platform/anthill-leaderboard/internal/config"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/dedupe"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/ranking"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/types"
	"github.com/anthill-platform/anthill-leaderboard/internal/observability"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
	"github.com/anthill-platform/anthill-leaderboard/pkg/metrics"
)

// ErrStopped is returned by Start once the service has been stopped.
var ErrStopped = errors.New("service stopped")

// Friends lists an account's friends. An empty list is not an error.
type Friends interface {
	ListFriends(ctx context.Context, gamespace, account string) ([]string, error)
}

// Store is the entry store the service writes through.
type Store interface {
	ranking.Leaderboards
	ranking.Entries

	UpsertEntry(ctx context.Context, e model.Entry) (bool, error)
	DeleteEntry(ctx context.Context, gamespace string, leaderboardID int64, account string) (int64, error)
	DeleteEntries(ctx context.Context, gamespace string, leaderboardID int64) (int64, error)
	PurgeAccounts(ctx context.Context, gamespace string, accounts []string, gamespaceOnly bool) (int64, error)
	PurgeExpired(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Now() time.Time
}

type noFriends struct{}

func (noFriends) ListFriends(context.Context, string, string) ([]string, error) { return nil, nil }

// UpsertRequest is one account's score submission.
type UpsertRequest = types.Submission

// Stats is a snapshot of the background machinery.
type Stats = types.Stats

// Service implements the leaderboard operations.
type Service struct {
	cfg       config.Config
	store     Store
	placement ranking.Placement
	friends   Friends

	directory *ranking.Directory
	router    *ranking.Router
	engine    *ranking.Engine

	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool

	tracer trace.Tracer
	logger logger.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	sweeper chan struct{}
}

// New constructs a Service over store and placement.
func New(store Store, placement ranking.Placement, opts ...Option) *Service {
	s := &Service{
		cfg:       *config.New(),
		store:     store,
		placement: placement,
		friends:   noFriends{},
		tracer:    observability.Tracer(),
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	rcfg := ranking.Config{
		ClusterSize:          s.cfg.ClusterSize,
		QueryTimeout:         s.cfg.QueryTimeout(),
		AggregateConcurrency: s.cfg.AggregateConcurrency,
	}
	s.directory = ranking.NewDirectory(store, ranking.WithLogger(s.logger.Named("directory")))
	s.router = ranking.NewRouter(placement, rcfg)
	s.engine = ranking.NewEngine(store, s.router, rcfg, ranking.WithLogger(s.logger.Named("engine")))

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.PurgeQueueSize))
	s.pool = worker.NewPool(s.cfg.PurgeWorkerCount, s.queue, s,
		worker.WithLogger(s.logger),
		worker.WithFailureHook(s.purgeFailed))
	return s
}

// Ref addresses a leaderboard. Names starting with the cluster marker are
// clustered when created.
func (s *Service) Ref(gamespace, name string, order model.SortOrder) model.Ref {
	return model.Ref{
		Gamespace: gamespace,
		Name:      name,
		Order:     order,
		Clustered: strings.HasPrefix(name, s.cfg.ClusterMarker),
	}
}

// Start launches the purge workers and the expiry sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stopped:
		return ErrStopped
	case s.started:
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)
	if interval := s.cfg.ExpirySweepInterval(); interval > 0 {
		s.sweeper = make(chan struct{})
		go s.sweep(runCtx, interval, s.sweeper)
	}
	s.started = true

	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("purge_workers", s.pool.Size()),
		logger.Int("purge_queue_size", s.cfg.PurgeQueueSize),
		logger.Duration("expiry_sweep_interval", s.cfg.ExpirySweepInterval()))
	return nil
}

// Stop drains the purge queue and stops the sweeper. A stopped service
// cannot be started again.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.stopped = true
		return s.queue.Close()
	}

	err := s.pool.Shutdown(ctx)
	s.cancel()
	if s.sweeper != nil {
		select {
		case <-s.sweeper:
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		}
	}
	s.started = false
	s.stopped = true

	s.logger.Info(ctx, "leaderboard service stopped")
	return err
}

func (s *Service) sweep(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn(ctx, "expiry sweep failed", logger.Error(err))
			}
		}
	}
}

// SweepExpired physically removes entries whose expiry has passed.
func (s *Service) SweepExpired(ctx context.Context) (n int64, err error) {
	const op = "service.sweep_expired"
	ctx, span := s.tracer.Start(ctx, "leaderboard.sweep_expired")
	defer func() { finish(span, err) }()

	n, err = s.store.PurgeExpired(ctx)
	if err != nil {
		return 0, model.NewEngineError(op, model.CodeDB, err)
	}
	metrics.RecordExpiredSwept(n)
	if n > 0 {
		s.logger.Info(ctx, "expired entries removed", logger.Int64("rows", n))
	}
	return n, nil
}

// Upsert writes the account's entry, creating the leaderboard and the
// cluster placement on first use. It reports whether a new entry was
// inserted.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (inserted bool, err error) {
	const op = "service.upsert"
	ref := s.Ref(req.Gamespace, req.Name, req.Order)
	ctx, span := s.start(ctx, "leaderboard.upsert", ref, attribute.String("account", req.Account))
	defer func() { finish(span, err) }()

	if err := validateUpsert(req); err != nil {
		return false, err
	}
	lb, err := s.directory.ResolveOrCreate(ctx, ref)
	if err != nil {
		return false, err
	}
	cluster, err := s.router.RouteForWrite(ctx, lb, req.Account)
	if err != nil {
		return false, err
	}

	inserted, err = s.store.UpsertEntry(ctx, model.Entry{
		Gamespace:     lb.Gamespace,
		LeaderboardID: lb.ID,
		AccountID:     req.Account,
		ClusterID:     cluster,
		Score:         req.Score,
		DisplayName:   req.DisplayName,
		Profile:       req.Profile,
		ExpiresAt:     req.ExpiresAt(s.store.Now()),
	})
	if err != nil {
		return false, model.NewEngineError(op, model.CodeDB, err)
	}
	metrics.RecordUpsert(inserted)
	s.logger.Debug(ctx, "entry upserted",
		logger.Int64("leaderboard_id", lb.ID),
		logger.String("account", req.Account),
		logger.Int64("cluster_id", cluster),
		logger.Bool("inserted", inserted))
	return inserted, nil
}

func validateUpsert(req UpsertRequest) error {
	switch {
	case strings.TrimSpace(req.Account) == "":
		return fmt.Errorf("%w: missing account", model.ErrInvalidArgument)
	case math.IsNaN(req.Score) || math.IsInf(req.Score, 0):
		return fmt.Errorf("%w: score must be finite", model.ErrInvalidArgument)
	case req.ExpireIn <= 0:
		return fmt.Errorf("%w: expire_in must be positive", model.ErrInvalidArgument)
	}
	return nil
}

// DeleteEntry removes the account's entry and, for a clustered leaderboard,
// its placement. A placement that could not be removed is reported.
func (s *Service) DeleteEntry(ctx context.Context, ref model.Ref, account string) (err error) {
	const op = "service.delete_entry"
	ctx, span := s.start(ctx, "leaderboard.delete_entry", ref, attribute.String("account", account))
	defer func() { finish(span, err) }()

	lb, err := s.directory.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteEntry(ctx, lb.Gamespace, lb.ID, account); err != nil {
		return model.NewEngineError(op, model.CodeDB, err)
	}
	metrics.RecordDelete("entry")

	if err := s.router.Leave(ctx, lb, account); err != nil {
		s.logger.Error(ctx, "entry deleted but placement kept",
			logger.Int64("leaderboard_id", lb.ID),
			logger.String("account", account),
			logger.Error(err))
		return err
	}
	return nil
}

// DeleteLeaderboard removes the entries, then the placements, then the
// leaderboard itself.
func (s *Service) DeleteLeaderboard(ctx context.Context, gamespace string, leaderboardID int64) (err error) {
	const op = "service.delete_leaderboard"
	ctx, span := s.tracer.Start(ctx, "leaderboard.delete",
		trace.WithAttributes(attribute.String("gamespace", gamespace), attribute.Int64("leaderboard_id", leaderboardID)))
	defer func() { finish(span, err) }()

	rows, err := s.store.DeleteEntries(ctx, gamespace, leaderboardID)
	if err != nil {
		return model.NewEngineError(op, model.CodeDB, err)
	}
	if err := s.placement.DeleteClusters(ctx, gamespace, leaderboardID); err != nil {
		return model.NewEngineError(op, model.CodePlacement, err)
	}
	if err := s.directory.Delete(ctx, gamespace, leaderboardID); err != nil {
		return err
	}
	metrics.RecordDelete("leaderboard")
	s.logger.Info(ctx, "leaderboard deleted",
		logger.String("gamespace", gamespace),
		logger.Int64("leaderboard_id", leaderboardID),
		logger.Int64("entries", rows))
	return nil
}

// DeleteLeaderboardByName deletes the named leaderboard; a missing one is not
// an error.
func (s *Service) DeleteLeaderboardByName(ctx context.Context, ref model.Ref) error {
	lb, err := s.directory.Resolve(ctx, ref)
	if errors.Is(err, model.ErrLeaderboardNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.DeleteLeaderboard(ctx, lb.Gamespace, lb.ID)
}

// AccountsPurged removes every entry and placement of accounts, in gamespace
// only or everywhere.
func (s *Service) AccountsPurged(ctx context.Context, gamespace string, accounts []string, gamespaceOnly bool) (err error) {
	const op = "service.accounts_purged"
	ctx, span := s.tracer.Start(ctx, "leaderboard.accounts_purged",
		trace.WithAttributes(
			attribute.String("gamespace", gamespace),
			attribute.Int("accounts", len(accounts)),
			attribute.Bool("gamespace_only", gamespaceOnly)))
	defer func() { finish(span, err) }()

	if len(accounts) == 0 {
		return nil
	}
	if gamespaceOnly && strings.TrimSpace(gamespace) == "" {
		return fmt.Errorf("%w: missing gamespace", model.ErrInvalidArgument)
	}

	rows, err := s.store.PurgeAccounts(ctx, gamespace, accounts, gamespaceOnly)
	if err != nil {
		return model.NewEngineError(op, model.CodeDB, err)
	}
	if err := s.router.Purge(ctx, gamespace, accounts, gamespaceOnly); err != nil {
		return err
	}
	metrics.RecordAccountsPurged(len(accounts))
	s.logger.Info(ctx, "accounts purged",
		logger.String("gamespace", gamespace),
		logger.Int("accounts", len(accounts)),
		logger.Bool("gamespace_only", gamespaceOnly),
		logger.Int64("entries", rows))
	return nil
}

// EnqueuePurge hands a purge event to the workers and returns its id. An id
// already seen is accepted and dropped.
func (s *Service) EnqueuePurge(ctx context.Context, e model.PurgeEvent) (string, error) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	switch {
	case len(e.Accounts) == 0:
		return e.EventID, fmt.Errorf("%w: no accounts", model.ErrInvalidArgument)
	case e.GamespaceOnly && strings.TrimSpace(e.Gamespace) == "":
		return e.EventID, fmt.Errorf("%w: missing gamespace", model.ErrInvalidArgument)
	}

	if s.deduper.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordPurgeDuplicate()
		s.logger.Debug(ctx, "duplicate purge event", logger.String("event_id", e.EventID))
		return e.EventID, nil
	}
	if err := s.queue.Enqueue(ctx, e); err != nil {
		s.deduper.Unrecord(ctx, e.EventID)
		return e.EventID, err
	}
	return e.EventID, nil
}

func (s *Service) purgeFailed(ctx context.Context, e model.PurgeEvent, _ error) {
	s.deduper.Unrecord(ctx, e.EventID)
}

// Top returns a page of the leaderboard. A clustered leaderboard shows the
// cluster of account.
func (s *Service) Top(ctx context.Context, ref model.Ref, account string, offset, limit int) (page model.Page, err error) {
	ctx, span := s.start(ctx, "leaderboard.top", ref)
	defer func() { finish(span, err) }()

	lb, err := s.directory.Resolve(ctx, ref)
	if err != nil {
		return model.Page{}, err
	}
	if lb.Clustered {
		return s.engine.ByAccount(ctx, lb, account, offset, limit)
	}
	return s.engine.Top(ctx, lb, model.NoCluster, offset, limit)
}

// AroundMe returns the window around account inside its cluster.
func (s *Service) AroundMe(ctx context.Context, ref model.Ref, account string, offset, limit int) (page model.Page, err error) {
	ctx, span := s.start(ctx, "leaderboard.around_me", ref, attribute.String("account", account))
	defer func() { finish(span, err) }()

	lb, err := s.directory.Resolve(ctx, ref)
	if err != nil {
		return model.Page{}, err
	}
	cluster, err := s.router.RouteForRead(ctx, lb, account)
	if err != nil {
		return model.Page{}, err
	}
	return s.engine.AroundMe(ctx, lb, cluster, account, offset, limit)
}

// Friends ranks the friends of account inside account's cluster. No friends
// means an empty page, whether or not the leaderboard exists.
func (s *Service) Friends(ctx context.Context, ref model.Ref, account string, offset, limit int) (page model.Page, err error) {
	const op = "service.friends"
	ctx, span := s.start(ctx, "leaderboard.friends", ref, attribute.String("account", account))
	defer func() { finish(span, err) }()

	friends, err := s.friends.ListFriends(ctx, ref.Gamespace, account)
	if err != nil {
		return model.Page{}, model.NewEngineError(op, model.CodeFriends, err)
	}
	if len(friends) == 0 {
		return model.EmptyPage(), nil
	}

	lb, err := s.directory.Resolve(ctx, ref)
	if err != nil {
		return model.Page{}, err
	}
	cluster, err := s.router.RouteForRead(ctx, lb, account)
	if err != nil {
		return model.Page{}, err
	}
	return s.engine.Friends(ctx, lb, cluster, friends, offset, limit)
}

// ListAllClusters returns the top of every live cluster.
func (s *Service) ListAllClusters(ctx context.Context, ref model.Ref, limit int) (agg ranking.Aggregate, err error) {
	ctx, span := s.start(ctx, "leaderboard.list_all_clusters", ref)
	defer func() { finish(span, err) }()

	lb, err := s.directory.Resolve(ctx, ref)
	if err != nil {
		return ranking.Aggregate{}, err
	}
	agg, err = s.engine.ListAllClusters(ctx, lb, limit)
	if err == nil {
		span.SetAttributes(attribute.Int("clusters", len(agg.Clusters)), attribute.Int("failed", len(agg.Failed())))
	}
	return agg, err
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Stats returns a snapshot of the background machinery.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return Stats{
		Started:            started,
		PurgeQueueLength:   s.queue.Len(),
		PurgeWorkers:       s.pool.Size(),
		RememberedPurgeIDs: s.deduper.Size(),
	}
}

func (s *Service) start(ctx context.Context, name string, ref model.Ref, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("gamespace", ref.Gamespace),
		attribute.String("leaderboard", ref.Name),
		attribute.String("order", string(ref.Order)))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil && !errors.Is(err, model.ErrNoClusterPlacement) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
