package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL backend behind a Store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// driverName maps a dialect to its database/sql driver registration.
func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// lockName serialises writers that touch the rows sharing name until the
// surrounding transaction ends. SQLite serialises writers on its own.
func (d Dialect) lockName(ctx context.Context, tx *sqlx.Tx, name string) error {
	if d != DialectPostgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", name); err != nil {
		return fmt.Errorf("lock %q: %w", name, err)
	}
	return nil
}

// Options controls how a Store connects.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the shared relational store: the service-key credential records
// and the task domain tables. It is safe for concurrent use; concurrency
// control is delegated to the database.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// Open connects to the database described by opts and applies migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dialect, err := ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, dialect.driverName(), opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// SQLite doesn't support concurrent writes
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// NewMemoryStore returns a migrated, in-memory SQLite store. Used by tests
// and by `serve --dev` when no database URL is configured.
func NewMemoryStore() (*Store, error) {
	return Open(context.Background(), Options{Driver: string(DialectSQLite), DSN: ":memory:"})
}

// ParseDialect resolves a configured driver name.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Dialect returns the backend this store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// newID returns a time-ordered UUID for a new row.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// now returns the current time at the precision PostgreSQL keeps, so values
// round-trip identically through either backend.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
