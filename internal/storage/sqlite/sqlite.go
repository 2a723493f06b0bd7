// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/splitbill/internal/metrics"
	"github.com/mmynk/splitbill/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// initTimeout bounds one migration run.
const initTimeout = time.Minute

// connPragmas are applied by the driver to every pooled connection.
const connPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// SQLiteStore implements storage.Store using SQLite.
//
// Schema setup runs at most once per store. Concurrent callers of Init share the same
// in-flight initialization; after it succeeds Init is a single atomic load. Individual
// operations are not serialized beyond SQLite's own transactions.
type SQLiteStore struct {
	db      *sql.DB
	metrics *metrics.Metrics

	initGroup   singleflight.Group
	initialized atomic.Bool
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithMetrics reports integrity mismatches and history writes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SQLiteStore) {
		s.metrics = m
	}
}

// Open opens the database at dbPath without touching the schema. The first operation (or
// an explicit Init) applies pending migrations.
func Open(dbPath string, opts ...Option) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// New opens the database at dbPath and runs migrations before returning.
func New(dbPath string, opts ...Option) (*SQLiteStore, error) {
	s, err := Open(dbPath, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Init(context.Background()); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates or upgrades the schema. It is idempotent and safe for concurrent use.
// A failed initialization is not cached; the next call tries again.
//
// The shared migration run is detached from the cancellation of whichever caller started
// it and is bounded by initTimeout instead. Each caller still stops waiting when its own
// ctx is done.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.initialized.Load() {
		return nil
	}

	ch := s.initGroup.DoChan("init", func() (any, error) {
		if s.initialized.Load() {
			return nil, nil
		}
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), initTimeout)
		defer cancel()
		if err := runMigrations(runCtx, s.db); err != nil {
			return nil, err
		}
		s.initialized.Store(true)
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("failed to initialize store: %w", res.Err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to initialize store: %w", ctx.Err())
	}
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int64, error) {
	if err := s.Init(ctx); err != nil {
		return 0, err
	}

	provider, err := newMigrationProvider(s.db)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration provider: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Ping checks that the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// nullable maps "" to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
