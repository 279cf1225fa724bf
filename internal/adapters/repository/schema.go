package repository

import (
	"context"
	"fmt"
	"strings"
)

// Column types that differ between the dialects.
type dialectTypes struct {
	serial string
	double string
}

var dialects = map[string]dialectTypes{
	DriverSQLite:   {serial: "INTEGER PRIMARY KEY AUTOINCREMENT", double: "REAL"},
	DriverPostgres: {serial: "BIGSERIAL PRIMARY KEY", double: "DOUBLE PRECISION"},
}

// Times are unix milliseconds.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS leaderboards (
    leaderboard_id {{serial}},
    gamespace_id TEXT NOT NULL,
    leaderboard_name TEXT NOT NULL,
    sort_order TEXT NOT NULL CHECK (sort_order IN ('asc', 'desc')),
    clustered SMALLINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    UNIQUE (gamespace_id, leaderboard_name, sort_order)
);

CREATE TABLE IF NOT EXISTS records (
    gamespace_id TEXT NOT NULL,
    leaderboard_id BIGINT NOT NULL,
    account_id TEXT NOT NULL,
    cluster_id BIGINT NOT NULL DEFAULT 0,
    score {{double}} NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    profile TEXT NOT NULL DEFAULT '{}',
    published_at BIGINT NOT NULL,
    expires_at BIGINT NOT NULL,
    PRIMARY KEY (gamespace_id, leaderboard_id, account_id, cluster_id)
);

CREATE INDEX IF NOT EXISTS idx_records_partition_score ON records (leaderboard_id, cluster_id, score);
CREATE INDEX IF NOT EXISTS idx_records_expires_at ON records (expires_at);
CREATE INDEX IF NOT EXISTS idx_records_account ON records (account_id);

CREATE TABLE IF NOT EXISTS clusters (
    cluster_id {{serial}},
    gamespace_id TEXT NOT NULL,
    leaderboard_id BIGINT NOT NULL,
    members INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_clusters_leaderboard ON clusters (gamespace_id, leaderboard_id, members);

CREATE TABLE IF NOT EXISTS cluster_accounts (
    gamespace_id TEXT NOT NULL,
    leaderboard_id BIGINT NOT NULL,
    account_id TEXT NOT NULL,
    cluster_id BIGINT NOT NULL,
    PRIMARY KEY (gamespace_id, leaderboard_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_cluster_accounts_account ON cluster_accounts (account_id);
`

// Schema returns the DDL for driver.
func Schema(driver string) (string, error) {
	t, ok := dialects[driver]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	return strings.NewReplacer("{{serial}}", t.serial, "{{double}}", t.double).Replace(schemaTemplate), nil
}

// Migrate creates all tables and indexes. Safe to call multiple times.
func (s *Store) Migrate(ctx context.Context) error {
	const op = "repository.migrate"
	ddl, err := Schema(s.driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	s.log.Info(ctx, "schema migrated")
	return nil
}
