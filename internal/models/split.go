package models

import "github.com/shopspring/decimal"

// OtherKind is the kind of a non-item charge or adjustment.
type OtherKind string

const (
	// OtherKindTax is split proportionally to each friend's item subtotal.
	OtherKindTax OtherKind = "tax"
	// OtherKindAddition (service charge, tip) is split equally.
	OtherKindAddition OtherKind = "addition"
	// OtherKindDiscount is split equally and subtracted.
	OtherKindDiscount OtherKind = "discount"
)

// Valid reports whether k is one of the known kinds.
func (k OtherKind) Valid() bool {
	switch k {
	case OtherKindTax, OtherKindAddition, OtherKindDiscount:
		return true
	}
	return false
}

// Assignment is the quantity of one item given to one friend.
type Assignment struct {
	FriendID string          `json:"friend_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"decimal,gt=0,lte=100000"`

	// SubTotal is Quantity × the item's unit price. It is derived, never trusted from input.
	SubTotal decimal.Decimal `json:"sub_total"`
}

// Item is a purchasable line on a receipt.
type Item struct {
	ID string `json:"id,omitempty"`

	Name string `json:"name" validate:"required,max=200"`

	// Price is the unit price.
	Price decimal.Decimal `json:"price" validate:"decimal,gte=0,lte=1000000000"`

	// Quantity may be fractional so that one item can be shared, e.g. 0.5 each.
	Quantity decimal.Decimal `json:"quantity" validate:"decimal,gt=0,lte=100000"`

	Assignments []Assignment `json:"assignments" validate:"dive"`
}

// LineTotal returns Price × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(i.Quantity)
}

// AssignedQuantity returns the sum of all assignment quantities.
func (i Item) AssignedQuantity() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range i.Assignments {
		sum = sum.Add(a.Quantity)
	}
	return sum
}

// OtherPayment is a tax, addition or discount applied on top of the items.
type OtherPayment struct {
	ID string `json:"id,omitempty"`

	Name string    `json:"name" validate:"required,max=200"`
	Kind OtherKind `json:"kind" validate:"required,oneof=tax addition discount"`

	// UsePercentage makes Amount a percentage of the items grand total instead of a fixed value.
	UsePercentage bool            `json:"use_percentage"`
	Amount        decimal.Decimal `json:"amount" validate:"decimal,gte=0,lte=1000000000"`
}

// FriendItem is one item line in a friend's breakdown.
type FriendItem struct {
	ItemID   string          `json:"item_id,omitempty"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	SubTotal decimal.Decimal `json:"sub_total"`
}

// FriendOther is one friend's share of an other payment. Amount is already signed:
// discounts are negative.
type FriendOther struct {
	OtherID       string          `json:"other_id,omitempty"`
	Name          string          `json:"name"`
	Kind          OtherKind       `json:"kind"`
	UsePercentage bool            `json:"use_percentage"`
	Amount        decimal.Decimal `json:"amount"`
}

// SplitFriend is the stored result for one participant of a SplitBill.
type SplitFriend struct {
	FriendID string `json:"friend_id"`

	// Friend is nil when the friend was deleted after the split was saved.
	Friend *Friend `json:"friend,omitempty"`

	SubTotal decimal.Decimal `json:"sub_total"`
	Total    decimal.Decimal `json:"total"`

	Items  []FriendItem  `json:"items"`
	Others []FriendOther `json:"others"`
}

// DisplayName returns the friend's name, or UnknownFriendName when the friend is gone.
func (sf SplitFriend) DisplayName() string {
	if sf.Friend == nil {
		return UnknownFriendName
	}
	return sf.Friend.Name
}

// ShareInfo is set only after a successful remote share.
type ShareInfo struct {
	Slug string `json:"slug"`
	URL  string `json:"url"`
}

// SplitBill is a persisted split. It is immutable once saved except for ShareInfo.
type SplitBill struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`

	Share *ShareInfo `json:"share,omitempty"`
	Bank  *BankInfo  `json:"bank,omitempty"`

	Items   []Item         `json:"items"`
	Others  []OtherPayment `json:"others"`
	Friends []SplitFriend  `json:"friends"`
}

// GrandTotal returns the sum of all stored friend totals.
func (b *SplitBill) GrandTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, f := range b.Friends {
		sum = sum.Add(f.Total)
	}
	return sum
}

// Draft is an in-memory split still being edited.
type Draft struct {
	Name   string         `json:"name" validate:"required,max=200"`
	Items  []Item         `json:"items" validate:"required,min=1,dive"`
	Others []OtherPayment `json:"others" validate:"dive"`

	// Totals holds the per-friend totals the caller computed for this draft, if any.
	// The store re-derives totals on save and only compares against these.
	Totals map[string]decimal.Decimal `json:"totals,omitempty" validate:"omitempty,dive,decimal"`
}
