package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dbDirMode is applied when the data directory has to be created.
	dbDirMode = 0750

	// dbFileMode keeps the commissioning store readable by the service
	// account only.
	dbFileMode = 0600

	// openPingTimeout bounds the connectivity probe inside Open.
	openPingTimeout = 5 * time.Second

	// idleConnMax is how long an idle connection may linger before the
	// pool recycles it.
	idleConnMax = 30 * time.Minute
)

// DB is the handle to the commissioning store. It embeds *sql.DB, so
// callers that only need query access can take the embedded field
// directly; the wrapper adds lifecycle, health and migration support.
type DB struct {
	*sql.DB
	path string
}

// Config mirrors the database section of config.yaml.
type Config struct {
	// Path of the SQLite file. Missing parent directories are created.
	Path string

	// WALMode turns on write-ahead logging, letting readers proceed
	// while a write is in flight.
	WALMode bool

	// BusyTimeout is how many seconds a contended connection waits for
	// the lock before giving up with SQLITE_BUSY.
	BusyTimeout int
}

// Open connects to the SQLite file named in cfg, creating it (and its
// directory) on first run. The pool is pinned to a single connection:
// SQLite allows one writer at a time, and a pool of one turns lock
// contention into queueing instead of SQLITE_BUSY churn. The
// connection is verified with a ping before the handle is returned.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dbDirMode); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(idleConnMax)

	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file may not exist until the first write; tighten it when it
	// does and ignore the miss before then.
	_ = os.Chmod(cfg.Path, dbFileMode)

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// dsn assembles the go-sqlite3 connection string. Foreign keys are
// always enforced; WAL and the relaxed sync level ride together.
func dsn(cfg Config) string {
	s := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		s += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return s
}

// Close releases the connection pool. Safe to call on a handle whose
// pool is already gone.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem location of the store.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck proves the store answers queries, not just that the
// process still holds a file descriptor.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats exposes pool counters for the stats surface.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// ExecContext runs a statement that returns no rows, wrapping failures
// with context.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return res, nil
}

// QueryRowContext runs a single-row query.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, query, args...)
}

// BeginTx opens a transaction. Pair it with a deferred Rollback; the
// rollback is a no-op once the transaction commits.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
