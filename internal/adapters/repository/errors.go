package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrClosed        = errors.New("store closed")
)

// PostgreSQL SQLSTATE codes treated as contention.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// Classify maps a driver error onto the domain kinds: unique violations
// become model.ErrConflict, busy/locked storage a retryable engine error and
// everything else a non-retryable one. sql.ErrNoRows passes through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, model.ErrConflict) {
		return err
	}
	var ee *model.EngineError
	if errors.As(err, &ee) {
		return err
	}
	switch {
	case isConstraintError(err):
		return fmt.Errorf("%s: %w: %v", op, model.ErrConflict, err)
	case isBusyError(err):
		return model.NewEngineError(op, model.CodeBusy, err)
	}
	return model.NewEngineError(op, model.CodeDB, err)
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return true
		}
	}
	return false
}
