package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// migration is one forward-only schema step. Every step must be idempotent: running it
// against a database that already has its changes is a no-op.
type migration struct {
	version     int64
	description string
	up          func(ctx context.Context, tx *sql.Tx) error
}

// migrations are applied in order; the version of the last entry is the schema version
// this code expects.
var migrations = []migration{
	{version: 1, description: "base schema", up: createBaseSchema},
	{version: 2, description: "bank details and single owner", up: addBankDetails},
	{version: 3, description: "share link", up: addShareLink},
}

// latestVersion is the schema version the code expects.
func latestVersion() int64 {
	return migrations[len(migrations)-1].version
}

// newMigrationProvider builds a goose provider over the migrations table. goose records
// applied versions in goose_db_version.
func newMigrationProvider(db *sql.DB) (*goose.Provider, error) {
	steps := make([]*goose.Migration, 0, len(migrations))
	for _, m := range migrations {
		steps = append(steps, goose.NewGoMigration(m.version, &goose.GoFunc{RunTx: m.up}, nil))
	}
	return goose.NewProvider(goose.DialectSQLite3, db, nil,
		goose.WithGoMigrations(steps...),
		goose.WithDisableGlobalRegistry(true),
	)
}

// runMigrations compares the stored version with latestVersion and applies every missing step.
func runMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		slog.Info("Applied schema migration",
			"version", r.Source.Version,
			"description", describe(r.Source.Version),
			"duration_ms", r.Duration.Milliseconds(),
		)
	}
	return nil
}

func describe(version int64) string {
	for _, m := range migrations {
		if m.version == version {
			return m.description
		}
	}
	return ""
}

// baseSchema is version 1. Child tables of split_bills cascade on delete.
// split_friends.friend_id intentionally has no foreign key to friends: history survives
// friend deletion.
const baseSchema = `
CREATE TABLE IF NOT EXISTS friends (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    is_me INTEGER NOT NULL DEFAULT 0,
    color TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS split_bills (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS split_items (
    id TEXT PRIMARY KEY,
    split_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    price TEXT NOT NULL,
    quantity TEXT NOT NULL,
    FOREIGN KEY (split_id) REFERENCES split_bills(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS split_item_assignments (
    item_id TEXT NOT NULL,
    split_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    friend_id TEXT NOT NULL,
    quantity TEXT NOT NULL,
    sub_total TEXT NOT NULL,
    PRIMARY KEY (item_id, position),
    FOREIGN KEY (item_id) REFERENCES split_items(id) ON DELETE CASCADE,
    FOREIGN KEY (split_id) REFERENCES split_bills(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS split_others (
    id TEXT PRIMARY KEY,
    split_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    use_percentage INTEGER NOT NULL DEFAULT 0,
    amount TEXT NOT NULL,
    FOREIGN KEY (split_id) REFERENCES split_bills(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS split_other_assignments (
    other_id TEXT NOT NULL,
    split_id TEXT NOT NULL,
    friend_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    PRIMARY KEY (other_id, friend_id),
    FOREIGN KEY (other_id) REFERENCES split_others(id) ON DELETE CASCADE,
    FOREIGN KEY (split_id) REFERENCES split_bills(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS split_friends (
    split_id TEXT NOT NULL,
    friend_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    sub_total TEXT NOT NULL,
    total TEXT NOT NULL,
    PRIMARY KEY (split_id, friend_id),
    FOREIGN KEY (split_id) REFERENCES split_bills(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_split_items_split_id ON split_items(split_id);
CREATE INDEX IF NOT EXISTS idx_split_item_assignments_split_id ON split_item_assignments(split_id);
CREATE INDEX IF NOT EXISTS idx_split_others_split_id ON split_others(split_id);
CREATE INDEX IF NOT EXISTS idx_split_other_assignments_split_id ON split_other_assignments(split_id);
CREATE INDEX IF NOT EXISTS idx_split_friends_friend_id ON split_friends(friend_id);
`

func createBaseSchema(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, baseSchema)
	return err
}

func addBankDetails(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"friends", "split_bills"} {
		for _, column := range []string{"bank_name", "bank_account_name", "bank_account_number"} {
			if err := addColumnIfMissing(ctx, tx, table, column, "TEXT"); err != nil {
				return err
			}
		}
	}

	// Older databases could hold several owners; keep the earliest one.
	_, err := tx.ExecContext(ctx, `
		UPDATE friends SET is_me = 0
		WHERE is_me = 1 AND id <> (
			SELECT id FROM friends WHERE is_me = 1 ORDER BY created_at, rowid LIMIT 1
		)`)
	if err != nil {
		return fmt.Errorf("failed to collapse owners: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_friends_single_owner ON friends(is_me) WHERE is_me = 1")
	return err
}

func addShareLink(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing(ctx, tx, "split_bills", "slug", "TEXT"); err != nil {
		return err
	}
	if err := addColumnIfMissing(ctx, tx, "split_bills", "share_url", "TEXT"); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_split_bills_created_at ON split_bills(created_at)")
	return err
}

// addColumnIfMissing adds a nullable column unless it already exists.
func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}
