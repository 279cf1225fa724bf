// Package placement assigns accounts of clustered leaderboards to fixed-size
// clusters.
package placement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/repository"
	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

// SQL keeps placements in the clusters and cluster_accounts tables of the
// entry store.
type SQL struct {
	store *repository.Store
	log   logger.Logger
}

// NewSQL returns a placement backed by store. The schema is created by
// store.Migrate.
func NewSQL(store *repository.Store, l logger.Logger) *SQL {
	if l == nil {
		l = logger.Discard()
	}
	return &SQL{store: store, log: l}
}

// GetCluster returns the account's cluster. Without a placement it joins the
// lowest-numbered cluster with room, opening a new one when all are full, or
// fails with model.ErrNoClusterPlacement when autoCreate is false.
func (p *SQL) GetCluster(ctx context.Context, gamespace string, leaderboardID int64, account string, clusterSize int, autoCreate bool) (int64, error) {
	const op = "placement.get_cluster"
	if clusterSize <= 0 {
		return 0, fmt.Errorf("%s: %w: cluster size %d", op, model.ErrInvalidArgument, clusterSize)
	}

	id, err := p.lookup(ctx, p.store.Conn(), gamespace, leaderboardID, account)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, model.ErrNoClusterPlacement) || !autoCreate {
		return 0, err
	}

	id, err = p.place(ctx, gamespace, leaderboardID, account, clusterSize)
	if errors.Is(err, model.ErrConflict) {
		// Lost a race: either the account was placed concurrently or the
		// chosen cluster filled up.
		if id, lerr := p.lookup(ctx, p.store.Conn(), gamespace, leaderboardID, account); lerr == nil {
			return id, nil
		}
		id, err = p.place(ctx, gamespace, leaderboardID, account, clusterSize)
	}
	if err != nil {
		return 0, err
	}
	p.log.Debug(ctx, "account placed",
		logger.String("gamespace", gamespace),
		logger.Int64("leaderboard_id", leaderboardID),
		logger.String("account", account),
		logger.Int64("cluster_id", id))
	return id, nil
}

func (p *SQL) lookup(ctx context.Context, c repository.Conn, gamespace string, leaderboardID int64, account string) (int64, error) {
	const op = "placement.lookup"
	var id int64
	err := c.QueryRow(ctx,
		`SELECT cluster_id FROM cluster_accounts WHERE gamespace_id = ? AND leaderboard_id = ? AND account_id = ?`,
		gamespace, leaderboardID, account).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrNoClusterPlacement
	}
	if err != nil {
		return 0, repository.Classify(op, err)
	}
	return id, nil
}

func (p *SQL) place(ctx context.Context, gamespace string, leaderboardID int64, account string, clusterSize int) (int64, error) {
	const op = "placement.place"
	var id int64
	err := p.store.WithTx(ctx, func(c repository.Conn) error {
		err := c.QueryRow(ctx,
			`SELECT cluster_id FROM clusters
			 WHERE gamespace_id = ? AND leaderboard_id = ? AND members < ?
			 ORDER BY cluster_id LIMIT 1`,
			gamespace, leaderboardID, clusterSize).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if err := c.QueryRow(ctx,
				`INSERT INTO clusters (gamespace_id, leaderboard_id, members) VALUES (?, ?, 0) RETURNING cluster_id`,
				gamespace, leaderboardID).Scan(&id); err != nil {
				return repository.Classify(op, err)
			}
		case err != nil:
			return repository.Classify(op, err)
		}

		res, err := c.Exec(ctx,
			`UPDATE clusters SET members = members + 1 WHERE cluster_id = ? AND members < ?`, id, clusterSize)
		if err != nil {
			return repository.Classify(op, err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return fmt.Errorf("%s: %w: cluster %d is full", op, model.ErrConflict, id)
		}

		_, err = c.Exec(ctx,
			`INSERT INTO cluster_accounts (gamespace_id, leaderboard_id, account_id, cluster_id) VALUES (?, ?, ?, ?)`,
			gamespace, leaderboardID, account, id)
		return repository.Classify(op, err)
	})
	return id, err
}

// ListClusters returns the clusters of a leaderboard that have members.
func (p *SQL) ListClusters(ctx context.Context, gamespace string, leaderboardID int64) ([]int64, error) {
	const op = "placement.list_clusters"
	rows, err := p.store.Conn().Query(ctx,
		`SELECT cluster_id FROM clusters WHERE gamespace_id = ? AND leaderboard_id = ? AND members > 0 ORDER BY cluster_id`,
		gamespace, leaderboardID)
	if err != nil {
		return nil, repository.Classify(op, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, repository.Classify(op, err)
		}
		ids = append(ids, id)
	}
	return ids, repository.Classify(op, rows.Err())
}

// LeaveCluster removes the account's placement. Unplaced accounts are a no-op.
func (p *SQL) LeaveCluster(ctx context.Context, gamespace string, leaderboardID int64, account string) error {
	const op = "placement.leave_cluster"
	return p.store.WithTx(ctx, func(c repository.Conn) error {
		id, err := p.lookup(ctx, c, gamespace, leaderboardID, account)
		if errors.Is(err, model.ErrNoClusterPlacement) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := c.Exec(ctx,
			`DELETE FROM cluster_accounts WHERE gamespace_id = ? AND leaderboard_id = ? AND account_id = ?`,
			gamespace, leaderboardID, account); err != nil {
			return repository.Classify(op, err)
		}
		_, err = c.Exec(ctx, `UPDATE clusters SET members = members - 1 WHERE cluster_id = ? AND members > 0`, id)
		return repository.Classify(op, err)
	})
}

// DeleteClusters removes every cluster and placement of a leaderboard.
func (p *SQL) DeleteClusters(ctx context.Context, gamespace string, leaderboardID int64) error {
	const op = "placement.delete_clusters"
	return p.store.WithTx(ctx, func(c repository.Conn) error {
		if _, err := c.Exec(ctx,
			`DELETE FROM cluster_accounts WHERE gamespace_id = ? AND leaderboard_id = ?`, gamespace, leaderboardID); err != nil {
			return repository.Classify(op, err)
		}
		_, err := c.Exec(ctx,
			`DELETE FROM clusters WHERE gamespace_id = ? AND leaderboard_id = ?`, gamespace, leaderboardID)
		return repository.Classify(op, err)
	})
}

// PurgeAccounts removes the accounts' placements in gamespace, or everywhere
// when gamespaceOnly is false, and recounts the affected clusters.
func (p *SQL) PurgeAccounts(ctx context.Context, gamespace string, accounts []string, gamespaceOnly bool) error {
	const op = "placement.purge_accounts"
	if len(accounts) == 0 {
		return nil
	}
	args := make([]any, 0, len(accounts)+1)
	for _, a := range accounts {
		args = append(args, a)
	}
	where := `account_id IN (` + repository.Placeholders(len(accounts)) + `)`
	if gamespaceOnly {
		where += ` AND gamespace_id = ?`
		args = append(args, gamespace)
	}

	return p.store.WithTx(ctx, func(c repository.Conn) error {
		if _, err := c.Exec(ctx,
			`UPDATE clusters SET members = members - (
			     SELECT COUNT(*) FROM cluster_accounts ca
			     WHERE ca.cluster_id = clusters.cluster_id AND `+where+`)
			 WHERE cluster_id IN (SELECT cluster_id FROM cluster_accounts WHERE `+where+`)`,
			append(append([]any{}, args...), args...)...); err != nil {
			return repository.Classify(op, err)
		}
		_, err := c.Exec(ctx, `DELETE FROM cluster_accounts WHERE `+where, args...)
		return repository.Classify(op, err)
	})
}
