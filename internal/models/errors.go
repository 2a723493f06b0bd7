package models

import "errors"

// Sentinel errors shared by the storage, service and handler layers. Use errors.Is.
var (
	// ErrFriendNotFound indicates the requested friend does not exist.
	ErrFriendNotFound = errors.New("friend not found")

	// ErrSplitNotFound indicates the requested split bill does not exist.
	ErrSplitNotFound = errors.New("split not found")

	// ErrInvalidDraft indicates the draft failed validation before reaching the engine.
	ErrInvalidDraft = errors.New("invalid draft")

	// ErrOverAssigned indicates an item was assigned more quantity than it has.
	// Only returned under the reject assignment policy.
	ErrOverAssigned = errors.New("item quantity over-assigned")

	// ErrRemoteUnavailable indicates the recognition or share backend could not be reached
	// or answered with a failure.
	ErrRemoteUnavailable = errors.New("remote service unavailable")
)
