package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"
)

// newTestStore creates a fully initialized store backed by a temp file.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent callers share one initialization", func(t *testing.T) {
		store, err := Open(filepath.Join(t.TempDir(), "concurrent.db"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()

		var g errgroup.Group
		for i := 0; i < 16; i++ {
			g.Go(func() error {
				return store.Init(ctx)
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("concurrent Init failed: %v", err)
		}

		version, err := store.SchemaVersion(ctx)
		if err != nil {
			t.Fatalf("SchemaVersion failed: %v", err)
		}
		if version != latestVersion() {
			t.Errorf("schema version = %d, want %d", version, latestVersion())
		}
	})

	t.Run("cancelled caller does not fail other callers", func(t *testing.T) {
		store, err := Open(filepath.Join(t.TempDir(), "cancelled.db"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		var g errgroup.Group
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				// May report its own cancellation; must not poison the shared run.
				_ = store.Init(cancelled)
				return nil
			})
			g.Go(func() error {
				return store.Init(ctx)
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("Init with live context failed: %v", err)
		}

		version, err := store.SchemaVersion(ctx)
		if err != nil {
			t.Fatalf("SchemaVersion failed: %v", err)
		}
		if version != latestVersion() {
			t.Errorf("schema version = %d, want %d", version, latestVersion())
		}
	})

	t.Run("lazy store initializes on first operation", func(t *testing.T) {
		store, err := Open(filepath.Join(t.TempDir(), "lazy.db"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()

		friends, err := store.ListFriends(ctx)
		if err != nil {
			t.Fatalf("ListFriends on fresh store failed: %v", err)
		}
		if len(friends) != 0 {
			t.Errorf("expected no friends, got %d", len(friends))
		}
	})

	t.Run("reopening an initialized database is a no-op", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reopen.db")
		first, err := New(path)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		first.Close()

		second, err := New(path)
		if err != nil {
			t.Fatalf("second New failed: %v", err)
		}
		defer second.Close()

		version, err := second.SchemaVersion(ctx)
		if err != nil {
			t.Fatalf("SchemaVersion failed: %v", err)
		}
		if version != latestVersion() {
			t.Errorf("schema version = %d, want %d", version, latestVersion())
		}
	})
}

func TestMigrations(t *testing.T) {
	ctx := context.Background()

	t.Run("versions are strictly increasing", func(t *testing.T) {
		for i := 1; i < len(migrations); i++ {
			if migrations[i].version <= migrations[i-1].version {
				t.Errorf("migration %d has version %d after %d", i, migrations[i].version, migrations[i-1].version)
			}
		}
	})

	t.Run("upgrades a version 1 database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "v1.db")
		db, err := sql.Open("sqlite", path+connPragmas)
		if err != nil {
			t.Fatalf("sql.Open failed: %v", err)
		}
		defer db.Close()

		provider, err := newMigrationProvider(db)
		if err != nil {
			t.Fatalf("newMigrationProvider failed: %v", err)
		}
		if _, err := provider.UpTo(ctx, 1); err != nil {
			t.Fatalf("UpTo(1) failed: %v", err)
		}

		// Version 1 allowed several owners.
		for i, id := range []string{"first", "second"} {
			if _, err := db.ExecContext(ctx,
				"INSERT INTO friends (id, name, is_me, color, created_at) VALUES (?, ?, 1, '', ?)",
				id, id, 100+i,
			); err != nil {
				t.Fatalf("insert v1 friend failed: %v", err)
			}
		}

		store := &SQLiteStore{db: db}
		if err := store.Init(ctx); err != nil {
			t.Fatalf("Init failed: %v", err)
		}

		version, err := store.SchemaVersion(ctx)
		if err != nil {
			t.Fatalf("SchemaVersion failed: %v", err)
		}
		if version != latestVersion() {
			t.Errorf("schema version = %d, want %d", version, latestVersion())
		}

		owner, err := store.GetOwner(ctx)
		if err != nil {
			t.Fatalf("GetOwner failed: %v", err)
		}
		if owner.ID != "first" {
			t.Errorf("owner = %s, want first (earliest)", owner.ID)
		}
		if owner.Bank != nil {
			t.Errorf("expected no bank info after upgrade, got %+v", owner.Bank)
		}
	})

	t.Run("every step is idempotent", func(t *testing.T) {
		store := newTestStore(t)

		for _, m := range migrations {
			tx, err := store.db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("BeginTx failed: %v", err)
			}
			if err := m.up(ctx, tx); err != nil {
				tx.Rollback()
				t.Fatalf("re-running migration %d (%s) failed: %v", m.version, m.description, err)
			}
			if err := tx.Commit(); err != nil {
				t.Fatalf("Commit failed: %v", err)
			}
		}
	})
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
