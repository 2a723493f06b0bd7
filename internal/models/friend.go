package models

// UnknownFriendName is shown for split results whose friend has since been deleted.
const UnknownFriendName = "Unknown friend"

// Friend represents a participant that items can be assigned to.
type Friend struct {
	// ID is the unique identifier for the friend (UUID format).
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name" validate:"required,max=100"`

	// IsMe marks the device owner. At most one friend has it set; the allocation engine
	// does not look at it.
	IsMe bool `json:"is_me"`

	// Color is a display-only accent color (e.g. "#F97316").
	Color string `json:"color" validate:"omitempty,hexcolor"`

	// CreatedAt is the Unix timestamp when the friend was created.
	CreatedAt int64 `json:"created_at"`

	// Bank holds optional transfer details shown next to the friend.
	Bank *BankInfo `json:"bank,omitempty"`
}

// FriendUpdate carries a partial update for a Friend. Nil fields are left unchanged.
// A non-nil Bank replaces all three bank fields.
type FriendUpdate struct {
	Name  *string   `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	IsMe  *bool     `json:"is_me,omitempty"`
	Color *string   `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Bank  *BankInfo `json:"bank,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u FriendUpdate) Empty() bool {
	return u.Name == nil && u.IsMe == nil && u.Color == nil && u.Bank == nil
}

// BankInfo is display-only bank routing data.
type BankInfo struct {
	Name          string `json:"name" validate:"max=100"`
	AccountName   string `json:"account_name" validate:"max=100"`
	AccountNumber string `json:"account_number" validate:"max=50"`
}

// IsZero reports whether no bank field is set.
func (b *BankInfo) IsZero() bool {
	return b == nil || (b.Name == "" && b.AccountName == "" && b.AccountNumber == "")
}
