// Package repository is the relational Entry Store: leaderboards, records and
// the cluster placement tables, on SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

// Supported drivers, as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultMaxOpenConns = 16

// Store owns the shared connection pool.
type Store struct {
	db           *sql.DB
	driver       string
	now          func() time.Time
	log          logger.Logger
	maxOpenConns int
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	const op = "repository.open"
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%s: %w: %q", op, ErrUnknownDriver, driver)
	}

	s := &Store{
		driver:       driver,
		now:          time.Now,
		log:          logger.Discard(),
		maxOpenConns: defaultMaxOpenConns,
	}
	for _, opt := range opts {
		opt(s)
	}

	if driver == DriverSQLite && !isMemoryDSN(dsn) {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if driver == DriverSQLite && isMemoryDSN(dsn) {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	s.db = db

	s.log.Info(ctx, "database opened", logger.String("driver", driver))
	return s, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// sqliteDSN makes every transaction take the write lock at BEGIN and wait on
// a held lock. A deferred transaction that reads and then writes fails with
// SQLITE_BUSY without waiting when another connection is writing.
func sqliteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string { return s.driver }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.now() }

// Conn returns a connection handle outside of any transaction.
func (s *Store) Conn() Conn {
	return Conn{q: s.db, driver: s.driver}
}

// WithTx runs fn in one transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, exactly once on every path.
func (s *Store) WithTx(ctx context.Context, fn func(c Conn) error) (err error) {
	const op = "repository.tx"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Classify(op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Warn(ctx, "rollback failed", logger.Error(rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = Classify(op, cErr)
		}
	}()

	return fn(Conn{q: tx, driver: s.driver})
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn executes queries written with "?" placeholders against the pool or a
// transaction, rebinding them for the driver.
type Conn struct {
	q      queryer
	driver string
}

// Exec runs a statement.
func (c Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

// Query runs a query returning rows.
func (c Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

// QueryRow runs a query returning at most one row.
func (c Conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

func (c Conn) rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	return Rebind(query)
}

// Rebind rewrites "?" placeholders to PostgreSQL's "$n".
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Placeholders returns "?, ?, ..." for n arguments.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// BoolInt encodes a flag for the SMALLINT columns both dialects share.
func BoolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// millis is the persisted time representation.
func millis(t time.Time) int64 { return t.UnixMilli() }
