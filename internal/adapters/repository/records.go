package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

const recordColumns = `account_id, score, display_name, profile`

// UpsertEntry inserts e when its key is absent and otherwise replaces score,
// display name, profile and expiry, in one transaction. It reports whether a
// new row was inserted.
func (s *Store) UpsertEntry(ctx context.Context, e model.Entry) (inserted bool, err error) {
	const op = "repository.upsert_entry"
	profile, err := encodeProfile(e.Profile)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	now := millis(s.now())

	err = s.WithTx(ctx, func(c Conn) error {
		var one int
		err := c.QueryRow(ctx,
			`SELECT 1 FROM records
			 WHERE gamespace_id = ? AND leaderboard_id = ? AND account_id = ? AND cluster_id = ?`,
			e.Gamespace, e.LeaderboardID, e.AccountID, e.ClusterID).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			inserted = true
		case err != nil:
			return Classify(op, err)
		}

		// ON CONFLICT keeps a racing first insert last-write-wins.
		_, err = c.Exec(ctx,
			`INSERT INTO records (gamespace_id, leaderboard_id, account_id, cluster_id,
			     score, display_name, profile, published_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (gamespace_id, leaderboard_id, account_id, cluster_id) DO UPDATE SET
			     score = excluded.score,
			     display_name = excluded.display_name,
			     profile = excluded.profile,
			     published_at = excluded.published_at,
			     expires_at = excluded.expires_at`,
			e.Gamespace, e.LeaderboardID, e.AccountID, e.ClusterID,
			e.Score, e.DisplayName, profile, now, millis(e.ExpiresAt))
		return Classify(op, err)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Score returns the live score of account in p.
func (s *Store) Score(ctx context.Context, p model.Partition, account string) (float64, error) {
	const op = "repository.score"
	var score float64
	err := s.Conn().QueryRow(ctx,
		`SELECT score FROM records
		 WHERE gamespace_id = ? AND leaderboard_id = ? AND cluster_id = ? AND account_id = ? AND expires_at > ?`,
		p.Gamespace, p.LeaderboardID, p.ClusterID, account, millis(s.now())).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrEntryNotFound
	}
	if err != nil {
		return 0, Classify(op, err)
	}
	return score, nil
}

// Top returns live records of p in order, ties by account id ascending.
func (s *Store) Top(ctx context.Context, p model.Partition, order model.SortOrder, offset, limit int) ([]model.Record, error) {
	const op = "repository.top"
	return s.scan(ctx, op,
		`SELECT `+recordColumns+` FROM records
		 WHERE gamespace_id = ? AND leaderboard_id = ? AND cluster_id = ? AND expires_at > ?
		 ORDER BY score `+order.SQL()+`, account_id ASC
		 LIMIT ? OFFSET ?`,
		p.Gamespace, p.LeaderboardID, p.ClusterID, millis(s.now()), limit, offset)
}

// Neighbours returns up to limit live records of p nearest to score, nearest
// first. With better set it returns records strictly ahead of score under
// order; otherwise records equal to or behind it, with account first among
// those tied on score.
func (s *Store) Neighbours(ctx context.Context, p model.Partition, order model.SortOrder, account string, score float64, better bool, limit int) ([]model.Record, error) {
	const op = "repository.neighbours"
	now := millis(s.now())
	if better {
		cmp := ">"
		if order == model.Ascending {
			cmp = "<"
		}
		return s.scan(ctx, op,
			`SELECT `+recordColumns+` FROM records
			 WHERE gamespace_id = ? AND leaderboard_id = ? AND cluster_id = ? AND expires_at > ? AND score `+cmp+` ?
			 ORDER BY score `+order.Reverse().SQL()+`, account_id DESC
			 LIMIT ?`,
			p.Gamespace, p.LeaderboardID, p.ClusterID, now, score, limit)
	}
	cmp := "<="
	if order == model.Ascending {
		cmp = ">="
	}
	return s.scan(ctx, op,
		`SELECT `+recordColumns+` FROM records
		 WHERE gamespace_id = ? AND leaderboard_id = ? AND cluster_id = ? AND expires_at > ? AND score `+cmp+` ?
		 ORDER BY score `+order.SQL()+`, CASE WHEN account_id = ? THEN 0 ELSE 1 END, account_id ASC
		 LIMIT ?`,
		p.Gamespace, p.LeaderboardID, p.ClusterID, now, score, account, limit)
}

// Subset returns live records of p whose account is in accounts, ordered and
// paginated like Top.
func (s *Store) Subset(ctx context.Context, p model.Partition, order model.SortOrder, accounts []string, offset, limit int) ([]model.Record, error) {
	const op = "repository.subset"
	if len(accounts) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(accounts)+6)
	args = append(args, p.Gamespace, p.LeaderboardID, p.ClusterID, millis(s.now()))
	for _, a := range accounts {
		args = append(args, a)
	}
	args = append(args, limit, offset)
	return s.scan(ctx, op,
		`SELECT `+recordColumns+` FROM records
		 WHERE gamespace_id = ? AND leaderboard_id = ? AND cluster_id = ? AND expires_at > ?
		   AND account_id IN (`+Placeholders(len(accounts))+`)
		 ORDER BY score `+order.SQL()+`, account_id ASC
		 LIMIT ? OFFSET ?`,
		args...)
}

// DeleteEntry removes every row of account in the leaderboard, whatever its
// cluster, and returns how many were removed.
func (s *Store) DeleteEntry(ctx context.Context, gamespace string, leaderboardID int64, account string) (int64, error) {
	const op = "repository.delete_entry"
	return s.exec(ctx, op,
		`DELETE FROM records WHERE gamespace_id = ? AND leaderboard_id = ? AND account_id = ?`,
		gamespace, leaderboardID, account)
}

// DeleteEntries removes every row of the leaderboard.
func (s *Store) DeleteEntries(ctx context.Context, gamespace string, leaderboardID int64) (int64, error) {
	const op = "repository.delete_entries"
	return s.exec(ctx, op,
		`DELETE FROM records WHERE gamespace_id = ? AND leaderboard_id = ?`,
		gamespace, leaderboardID)
}

// PurgeAccounts removes the accounts' rows from every leaderboard of
// gamespace, or of all gamespaces when gamespaceOnly is false.
func (s *Store) PurgeAccounts(ctx context.Context, gamespace string, accounts []string, gamespaceOnly bool) (int64, error) {
	const op = "repository.purge_accounts"
	if len(accounts) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(accounts)+1)
	query := `DELETE FROM records WHERE account_id IN (` + Placeholders(len(accounts)) + `)`
	for _, a := range accounts {
		args = append(args, a)
	}
	if gamespaceOnly {
		query += ` AND gamespace_id = ?`
		args = append(args, gamespace)
	}
	return s.exec(ctx, op, query, args...)
}

// PurgeExpired physically removes rows whose expiry has passed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	const op = "repository.purge_expired"
	return s.exec(ctx, op, `DELETE FROM records WHERE expires_at <= ?`, millis(s.now()))
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.Conn().Exec(ctx, query, args...)
	if err != nil {
		return 0, Classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, Classify(op, err)
	}
	return n, nil
}

func (s *Store) scan(ctx context.Context, op, query string, args ...any) ([]model.Record, error) {
	rows, err := s.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, Classify(op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Record
	for rows.Next() {
		var (
			r       model.Record
			profile string
		)
		if err := rows.Scan(&r.AccountID, &r.Score, &r.DisplayName, &profile); err != nil {
			return nil, Classify(op, err)
		}
		r.Profile = s.decodeProfile(ctx, r.AccountID, profile)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(op, err)
	}
	return out, nil
}

func encodeProfile(p map[string]any) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("%w: profile: %v", model.ErrInvalidArgument, err)
	}
	return string(b), nil
}

// decodeProfile never fails a scan; a corrupt profile reads as empty.
func (s *Store) decodeProfile(ctx context.Context, account, raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.log.Warn(ctx, "corrupt profile", logger.String("account", account), logger.Error(err))
		return map[string]any{}
	}
	return out
}
