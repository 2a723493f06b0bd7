package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/splitbill/internal/models"
	"github.com/mmynk/splitbill/internal/storage"
	"github.com/mmynk/splitbill/internal/validator"
)

// ErrInvalidFriend indicates a friend or friend update failed validation.
var ErrInvalidFriend = errors.New("invalid friend")

// FriendService manages the people bills are split between.
type FriendService struct {
	store storage.FriendStore
}

// NewFriendService creates a new FriendService with the given storage backend.
func NewFriendService(store storage.FriendStore) *FriendService {
	return &FriendService{store: store}
}

// Add validates and stores a new friend.
func (s *FriendService) Add(ctx context.Context, friend *models.Friend) (*models.Friend, error) {
	if err := validator.Validate(friend); err != nil {
		return nil, &ValidationError{Fields: validator.FormatValidationErrors(err), Err: ErrInvalidFriend}
	}
	if friend.Bank.IsZero() {
		friend.Bank = nil
	}

	if err := s.store.AddFriend(ctx, friend); err != nil {
		slog.Error("AddFriend failed", "error", err)
		return nil, err
	}

	slog.Info("Friend added", "friend_id", friend.ID, "is_me", friend.IsMe)
	return friend, nil
}

// Get returns one friend.
func (s *FriendService) Get(ctx context.Context, friendID string) (*models.Friend, error) {
	return s.store.GetFriend(ctx, friendID)
}

// List returns every friend, owner first.
func (s *FriendService) List(ctx context.Context) ([]*models.Friend, error) {
	return s.store.ListFriends(ctx)
}

// Owner returns the friend marked as the device owner.
func (s *FriendService) Owner(ctx context.Context) (*models.Friend, error) {
	return s.store.GetOwner(ctx)
}

// Update applies a partial update. An empty update returns the friend unchanged.
func (s *FriendService) Update(ctx context.Context, friendID string, update models.FriendUpdate) (*models.Friend, error) {
	if err := validator.Validate(&update); err != nil {
		return nil, &ValidationError{Fields: validator.FormatValidationErrors(err), Err: ErrInvalidFriend}
	}
	if update.Empty() {
		return s.store.GetFriend(ctx, friendID)
	}

	friend, err := s.store.UpdateFriend(ctx, friendID, update)
	if err != nil {
		if !errors.Is(err, models.ErrFriendNotFound) {
			slog.Error("UpdateFriend failed", "friend_id", friendID, "error", err)
		}
		return nil, err
	}

	slog.Info("Friend updated", "friend_id", friendID)
	return friend, nil
}

// Delete removes a friend. Saved splits keep their results for the friend.
func (s *FriendService) Delete(ctx context.Context, friendID string) error {
	deleted, err := s.store.DeleteFriend(ctx, friendID)
	if err != nil {
		slog.Error("DeleteFriend failed", "friend_id", friendID, "error", err)
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", models.ErrFriendNotFound, friendID)
	}

	slog.Info("Friend deleted", "friend_id", friendID)
	return nil
}
