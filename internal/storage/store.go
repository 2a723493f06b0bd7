// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/splitbill/internal/models"
)

// FriendStore persists friends.
type FriendStore interface {
	// AddFriend persists a new friend. ID, CreatedAt and (if empty) Color are populated by the store.
	// Setting IsMe clears the flag on every other friend.
	AddFriend(ctx context.Context, friend *models.Friend) error

	// GetFriend retrieves a friend by ID. Returns models.ErrFriendNotFound if missing.
	GetFriend(ctx context.Context, friendID string) (*models.Friend, error)

	// GetOwner returns the friend marked IsMe. Returns models.ErrFriendNotFound if none.
	GetOwner(ctx context.Context) (*models.Friend, error)

	// ListFriends returns every friend, owner first, then by name.
	ListFriends(ctx context.Context) ([]*models.Friend, error)

	// UpdateFriend applies a partial update and returns the updated friend.
	// Returns models.ErrFriendNotFound if missing.
	UpdateFriend(ctx context.Context, friendID string, update models.FriendUpdate) (*models.Friend, error)

	// DeleteFriend removes a friend. Historical splits keep their dangling reference.
	// Reports whether a friend was deleted.
	DeleteFriend(ctx context.Context, friendID string) (bool, error)
}

// SplitStore persists split bills.
type SplitStore interface {
	// SaveSplitToHistory re-derives per-friend totals from the draft and writes the split
	// with all nested rows in one transaction.
	SaveSplitToHistory(ctx context.Context, draft *models.Draft, participants []string, bank *models.BankInfo, share *models.ShareInfo) (*models.SplitBill, error)

	// GetSplit retrieves one split with stored totals. Returns models.ErrSplitNotFound if missing.
	GetSplit(ctx context.Context, splitID string) (*models.SplitBill, error)

	// GetAllSplittedBills returns every split, newest first, with stored totals.
	GetAllSplittedBills(ctx context.Context) ([]*models.SplitBill, error)

	// UpdateShareInfo records the slug and URL of a successful remote share.
	UpdateShareInfo(ctx context.Context, splitID string, share models.ShareInfo) error

	// DeleteSplit removes a split and all of its nested rows atomically.
	// Reports whether a split was deleted.
	DeleteSplit(ctx context.Context, splitID string) (bool, error)
}

// Store defines the interface for all storage operations.
// This abstraction allows swapping storage backends without changing the service layer.
type Store interface {
	FriendStore
	SplitStore

	// SchemaVersion returns the applied schema version.
	SchemaVersion(ctx context.Context) (int64, error)

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
