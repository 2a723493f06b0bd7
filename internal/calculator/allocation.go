package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitbill/internal/models"
)

var hundred = decimal.NewFromInt(100)

// FriendTotal represents the calculated split for one participant.
type FriendTotal struct {
	SubTotal decimal.Decimal
	Total    decimal.Decimal

	// Items lists every assignment that contributed to SubTotal, in item order.
	Items []models.FriendItem

	// Others lists the participant's share of every other payment, in caller order.
	Others []models.FriendOther
}

// ItemsGrandTotal returns Σ price × quantity over all items, assigned or not.
// It is the base for percentage amounts and for proportional tax.
func ItemsGrandTotal(items []models.Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// ResolveAmount converts an other payment into an absolute amount.
func ResolveAmount(o models.OtherPayment, grandTotal decimal.Decimal) decimal.Decimal {
	if o.UsePercentage {
		return grandTotal.Mul(o.Amount).Div(hundred)
	}
	return o.Amount
}

// ComputeFriendTotals computes each participant's subtotal and total.
//
// Algorithm:
//   - subtotal(P) = Σ assignedQty(i, P) × price(i)
//   - tax is shared proportionally: subtotal(P) / grandTotal × resolved (0 when grandTotal is 0)
//   - additions are shared equally: resolved / participants
//   - discounts are shared equally and negated
//   - total(P) = subtotal(P) + Σ shares
//
// The function does no validation and never fails. Assignments to friends outside
// participants are ignored, and assigned quantities are not checked against the item
// quantity (see CheckAssignments). Items and others are processed in the given order so
// the output is reproducible.
func ComputeFriendTotals(items []models.Item, others []models.OtherPayment, participants []string) map[string]*FriendTotal {
	order := uniqueParticipants(participants)
	totals := make(map[string]*FriendTotal, len(order))
	for _, p := range order {
		totals[p] = &FriendTotal{
			SubTotal: decimal.Zero,
			Total:    decimal.Zero,
			Items:    []models.FriendItem{},
			Others:   []models.FriendOther{},
		}
	}
	if len(order) == 0 {
		return totals
	}

	for _, item := range items {
		for _, a := range item.Assignments {
			ft, ok := totals[a.FriendID]
			if !ok {
				continue
			}
			line := a.Quantity.Mul(item.Price)
			ft.SubTotal = ft.SubTotal.Add(line)
			ft.Items = append(ft.Items, models.FriendItem{
				ItemID:   item.ID,
				Name:     item.Name,
				Quantity: a.Quantity,
				SubTotal: line,
			})
		}
	}

	grandTotal := ItemsGrandTotal(items)
	count := decimal.NewFromInt(int64(len(order)))

	for _, o := range others {
		resolved := ResolveAmount(o, grandTotal)
		for _, p := range order {
			ft := totals[p]
			ft.Others = append(ft.Others, models.FriendOther{
				OtherID:       o.ID,
				Name:          o.Name,
				Kind:          o.Kind,
				UsePercentage: o.UsePercentage,
				Amount:        share(o.Kind, resolved, ft.SubTotal, grandTotal, count),
			})
		}
	}

	for _, ft := range totals {
		total := ft.SubTotal
		for _, o := range ft.Others {
			total = total.Add(o.Amount)
		}
		ft.Total = total
	}

	return totals
}

// share returns one participant's signed share of a resolved other payment.
func share(kind models.OtherKind, resolved, subTotal, grandTotal, count decimal.Decimal) decimal.Decimal {
	switch kind {
	case models.OtherKindTax:
		if grandTotal.IsZero() {
			return decimal.Zero
		}
		return subTotal.Mul(resolved).Div(grandTotal)
	case models.OtherKindAddition:
		return resolved.Div(count)
	case models.OtherKindDiscount:
		return resolved.Div(count).Neg()
	default:
		return decimal.Zero
	}
}

func uniqueParticipants(participants []string) []string {
	seen := make(map[string]bool, len(participants))
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
