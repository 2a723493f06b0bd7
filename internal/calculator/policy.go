package calculator

import (
	"fmt"
	"strings"

	"github.com/mmynk/splitbill/internal/models"
)

// AssignmentPolicy decides what happens when an item's assignments add up to more than
// its quantity. Under-assignment is always tolerated.
type AssignmentPolicy string

const (
	// PolicyTolerate accepts over-assigned items; the engine computes whatever it is given.
	PolicyTolerate AssignmentPolicy = "tolerate"
	// PolicyReject fails validation with models.ErrOverAssigned.
	PolicyReject AssignmentPolicy = "reject"
)

// ParsePolicy parses a policy name. The empty string means PolicyTolerate.
func ParsePolicy(s string) (AssignmentPolicy, error) {
	switch AssignmentPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyTolerate:
		return PolicyTolerate, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown assignment policy %q", s)
	}
}

// OverAssignedItems returns the indexes of items whose assigned quantity exceeds their quantity.
func OverAssignedItems(items []models.Item) []int {
	var over []int
	for i, item := range items {
		if item.AssignedQuantity().GreaterThan(item.Quantity) {
			over = append(over, i)
		}
	}
	return over
}

// CheckAssignments applies the policy to items.
func CheckAssignments(items []models.Item, policy AssignmentPolicy) error {
	if policy != PolicyReject {
		return nil
	}
	over := OverAssignedItems(items)
	if len(over) == 0 {
		return nil
	}
	item := items[over[0]]
	return fmt.Errorf("%w: %q has %s assigned of %s",
		models.ErrOverAssigned, item.Name, item.AssignedQuantity(), item.Quantity)
}
