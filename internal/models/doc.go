// Package models defines the domain models for splitbill.
//
// # Models
//
//   - Friend: a participant that can be assigned items. At most one friend is the device
//     owner (IsMe).
//   - Draft: an in-memory split that is still being edited. Drafts are run through the
//     allocation engine as often as needed and are never persisted as-is.
//   - SplitBill: the persisted, immutable history record produced from a Draft. It owns its
//     items, other payments and per-friend results.
//   - SplitFriend: the stored result for one participant of a SplitBill (subtotal, total and
//     the breakdown used to compute them).
//
// # Money
//
// Prices, quantities and amounts use decimal.Decimal so that sums of item lines are exact.
// They are stored as TEXT in SQLite and encoded as JSON strings.
//
// # Relationships
//
// Relationships are expressed with ID strings, never pointers between aggregates. A
// SplitFriend references its Friend by ID only; deleting the Friend leaves the reference
// dangling and readers must treat it as an unknown friend.
package models
