package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitbill/internal/models"
)

const friendColumns = "id, name, is_me, color, created_at, bank_name, bank_account_name, bank_account_number"

// palette holds the accent colors handed out to friends created without one.
var palette = []string{
	"#EF4444", "#F97316", "#F59E0B", "#84CC16", "#10B981",
	"#14B8A6", "#0EA5E9", "#6366F1", "#A855F7", "#EC4899",
}

// defaultColor picks a palette color deterministically from the friend ID.
func defaultColor(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return palette[h.Sum32()%uint32(len(palette))]
}

// AddFriend persists a new friend.
func (s *SQLiteStore) AddFriend(ctx context.Context, friend *models.Friend) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	if friend.ID == "" {
		friend.ID = uuid.New().String()
	}
	if friend.CreatedAt == 0 {
		friend.CreatedAt = time.Now().Unix()
	}
	if friend.Color == "" {
		friend.Color = defaultColor(friend.ID)
	}
	if friend.Bank.IsZero() {
		friend.Bank = nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if friend.IsMe {
		if err := clearOwner(ctx, tx, friend.ID); err != nil {
			return err
		}
	}

	bankName, accountName, accountNumber := bankArgs(friend.Bank)
	_, err = tx.ExecContext(ctx,
		"INSERT INTO friends ("+friendColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		friend.ID, friend.Name, friend.IsMe, friend.Color, friend.CreatedAt,
		bankName, accountName, accountNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to insert friend: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetFriend retrieves a friend by ID.
func (s *SQLiteStore) GetFriend(ctx context.Context, friendID string) (*models.Friend, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return getFriend(ctx, s.db, "WHERE id = ?", friendID)
}

// GetOwner returns the friend marked as the device owner.
func (s *SQLiteStore) GetOwner(ctx context.Context) (*models.Friend, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return getFriend(ctx, s.db, "WHERE is_me = 1")
}

// ListFriends returns all friends, owner first, then by name.
func (s *SQLiteStore) ListFriends(ctx context.Context) ([]*models.Friend, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+friendColumns+" FROM friends ORDER BY is_me DESC, name COLLATE NOCASE, created_at",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	friends := []*models.Friend{}
	for rows.Next() {
		friend, err := scanFriend(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, friend)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friends: %w", err)
	}
	return friends, nil
}

// UpdateFriend applies the non-nil fields of update.
func (s *SQLiteStore) UpdateFriend(ctx context.Context, friendID string, update models.FriendUpdate) (*models.Friend, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	var (
		sets []string
		args []any
	)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.IsMe != nil {
		sets = append(sets, "is_me = ?")
		args = append(args, *update.IsMe)
	}
	if update.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *update.Color)
	}
	if update.Bank != nil {
		bankName, accountName, accountNumber := bankArgs(update.Bank)
		sets = append(sets, "bank_name = ?", "bank_account_name = ?", "bank_account_number = ?")
		args = append(args, bankName, accountName, accountNumber)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(sets) > 0 {
		if update.IsMe != nil && *update.IsMe {
			if err := clearOwner(ctx, tx, friendID); err != nil {
				return nil, err
			}
		}

		args = append(args, friendID)
		result, err := tx.ExecContext(ctx,
			"UPDATE friends SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update friend: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return nil, fmt.Errorf("failed to check updated rows: %w", err)
		} else if n == 0 {
			return nil, fmt.Errorf("%w: %s", models.ErrFriendNotFound, friendID)
		}
	}

	friend, err := getFriend(ctx, tx, "WHERE id = ?", friendID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return friend, nil
}

// DeleteFriend removes a friend. Split history referencing the friend is left in place.
func (s *SQLiteStore) DeleteFriend(ctx context.Context, friendID string) (bool, error) {
	if err := s.Init(ctx); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM friends WHERE id = ?", friendID)
	if err != nil {
		return false, fmt.Errorf("failed to delete friend: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check deleted rows: %w", err)
	}
	return n > 0, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getFriend(ctx context.Context, q queryer, where string, args ...any) (*models.Friend, error) {
	row := q.QueryRowContext(ctx, "SELECT "+friendColumns+" FROM friends "+where+" LIMIT 1", args...)
	friend, err := scanFriend(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrFriendNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get friend: %w", err)
	}
	return friend, nil
}

func scanFriend(row scanner) (*models.Friend, error) {
	friend := &models.Friend{}
	var bankName, accountName, accountNumber sql.NullString
	if err := row.Scan(
		&friend.ID,
		&friend.Name,
		&friend.IsMe,
		&friend.Color,
		&friend.CreatedAt,
		&bankName,
		&accountName,
		&accountNumber,
	); err != nil {
		return nil, err
	}
	friend.Bank = bankFromColumns(bankName, accountName, accountNumber)
	return friend, nil
}

// clearOwner removes the owner flag from every friend except keepID.
func clearOwner(ctx context.Context, tx *sql.Tx, keepID string) error {
	if _, err := tx.ExecContext(ctx, "UPDATE friends SET is_me = 0 WHERE is_me = 1 AND id <> ?", keepID); err != nil {
		return fmt.Errorf("failed to clear owner: %w", err)
	}
	return nil
}

func bankArgs(b *models.BankInfo) (any, any, any) {
	if b.IsZero() {
		return nil, nil, nil
	}
	return nullable(b.Name), nullable(b.AccountName), nullable(b.AccountNumber)
}

func bankFromColumns(name, accountName, accountNumber sql.NullString) *models.BankInfo {
	if !name.Valid && !accountName.Valid && !accountNumber.Valid {
		return nil
	}
	return &models.BankInfo{
		Name:          name.String,
		AccountName:   accountName.String,
		AccountNumber: accountNumber.String,
	}
}
