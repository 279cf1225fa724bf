package ranking

import (
	"context"
	"errors"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
	"github.com/anthill-platform/anthill-leaderboard/pkg/metrics"
)

// Directory maps (gamespace, name, order) to leaderboards.
type Directory struct {
	store Leaderboards
	log   logger.Logger
}

// NewDirectory returns a Directory over store.
func NewDirectory(store Leaderboards, opts ...Option) *Directory {
	o := applyOptions(opts)
	return &Directory{store: store, log: o.log}
}

// Resolve looks the leaderboard up; it never creates one.
func (d *Directory) Resolve(ctx context.Context, ref model.Ref) (model.Leaderboard, error) {
	const op = "ranking.resolve"
	if err := ref.Validate(); err != nil {
		return model.Leaderboard{}, err
	}
	lb, err := d.store.FindLeaderboard(ctx, ref.Gamespace, ref.Name, ref.Order)
	if err != nil {
		return model.Leaderboard{}, wrap(op, model.CodeDB, err)
	}
	return lb, nil
}

// ResolveOrCreate returns the leaderboard, creating it with ref.Clustered
// when absent. A create that loses a race is answered by one more lookup, so
// concurrent first writers observe the same id.
func (d *Directory) ResolveOrCreate(ctx context.Context, ref model.Ref) (model.Leaderboard, error) {
	const op = "ranking.resolve_or_create"
	lb, err := d.Resolve(ctx, ref)
	if !errors.Is(err, model.ErrLeaderboardNotFound) {
		return lb, err
	}

	lb, err = d.store.CreateLeaderboard(ctx, ref)
	switch {
	case err == nil:
		metrics.RecordLeaderboardCreated()
		d.log.Info(ctx, "leaderboard created",
			logger.String("gamespace", ref.Gamespace),
			logger.String("name", ref.Name),
			logger.String("order", string(ref.Order)),
			logger.Bool("clustered", ref.Clustered),
			logger.Int64("leaderboard_id", lb.ID))
		return lb, nil
	case errors.Is(err, model.ErrConflict):
		return d.Resolve(ctx, ref)
	default:
		return model.Leaderboard{}, wrap(op, model.CodeDB, err)
	}
}

// Delete removes the leaderboard row. Entries and placements must be removed
// first.
func (d *Directory) Delete(ctx context.Context, gamespace string, leaderboardID int64) error {
	const op = "ranking.delete_leaderboard"
	return wrap(op, model.CodeDB, d.store.DeleteLeaderboard(ctx, gamespace, leaderboardID))
}

// wrap passes domain sentinels through and turns anything else into an
// engine error.
func wrap(op, code string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrLeaderboardNotFound),
		errors.Is(err, model.ErrNoClusterPlacement),
		errors.Is(err, model.ErrEntryNotFound),
		errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrConflict):
		return err
	}
	return model.NewEngineError(op, code, err)
}
