package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
)

// FindLeaderboard looks a leaderboard up by its identity triple.
func (s *Store) FindLeaderboard(ctx context.Context, gamespace, name string, order model.SortOrder) (model.Leaderboard, error) {
	const op = "repository.find_leaderboard"
	lb := model.Leaderboard{Gamespace: gamespace, Name: name, Order: order}
	var clustered int
	err := s.Conn().QueryRow(ctx,
		`SELECT leaderboard_id, clustered FROM leaderboards
		 WHERE gamespace_id = ? AND leaderboard_name = ? AND sort_order = ?`,
		gamespace, name, string(order)).Scan(&lb.ID, &clustered)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Leaderboard{}, model.ErrLeaderboardNotFound
	}
	if err != nil {
		return model.Leaderboard{}, Classify(op, err)
	}
	lb.Clustered = clustered != 0
	return lb, nil
}

// CreateLeaderboard inserts a leaderboard row. A concurrent insert of the
// same identity fails with model.ErrConflict.
func (s *Store) CreateLeaderboard(ctx context.Context, ref model.Ref) (model.Leaderboard, error) {
	const op = "repository.create_leaderboard"
	if err := ref.Validate(); err != nil {
		return model.Leaderboard{}, err
	}
	lb := model.Leaderboard{Gamespace: ref.Gamespace, Name: ref.Name, Order: ref.Order, Clustered: ref.Clustered}
	err := s.Conn().QueryRow(ctx,
		`INSERT INTO leaderboards (gamespace_id, leaderboard_name, sort_order, clustered, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING leaderboard_id`,
		ref.Gamespace, ref.Name, string(ref.Order), BoolInt(ref.Clustered), millis(s.now())).Scan(&lb.ID)
	if err != nil {
		return model.Leaderboard{}, Classify(op, err)
	}
	return lb, nil
}

// DeleteLeaderboard removes the leaderboard row only.
func (s *Store) DeleteLeaderboard(ctx context.Context, gamespace string, leaderboardID int64) error {
	const op = "repository.delete_leaderboard"
	res, err := s.Conn().Exec(ctx,
		`DELETE FROM leaderboards WHERE gamespace_id = ? AND leaderboard_id = ?`, gamespace, leaderboardID)
	if err != nil {
		return Classify(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, model.ErrLeaderboardNotFound)
	}
	return nil
}
