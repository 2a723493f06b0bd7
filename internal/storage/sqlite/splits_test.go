package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/splitbill/internal/calculator"
	"github.com/mmynk/splitbill/internal/metrics"
	"github.com/mmynk/splitbill/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// addFriends creates one friend per name and returns their IDs in order.
func addFriends(t *testing.T, store *SQLiteStore, names ...string) []string {
	t.Helper()

	ids := make([]string, len(names))
	for i, name := range names {
		f := &models.Friend{Name: name}
		if err := store.AddFriend(context.Background(), f); err != nil {
			t.Fatalf("AddFriend(%s) failed: %v", name, err)
		}
		ids[i] = f.ID
	}
	return ids
}

func pizzaDraft(a, b string, others ...models.OtherPayment) *models.Draft {
	return &models.Draft{
		Name: "Pizza night",
		Items: []models.Item{
			{
				Name:     "Pizza",
				Price:    dec("100000"),
				Quantity: dec("1"),
				Assignments: []models.Assignment{
					{FriendID: a, Quantity: dec("0.5")},
					{FriendID: b, Quantity: dec("0.5")},
				},
			},
		},
		Others: others,
	}
}

func friendTotal(t *testing.T, bill *models.SplitBill, friendID string) models.SplitFriend {
	t.Helper()
	for _, f := range bill.Friends {
		if f.FriendID == friendID {
			return f
		}
	}
	t.Fatalf("friend %s not in split %s", friendID, bill.ID)
	return models.SplitFriend{}
}

func TestSaveSplitToHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := addFriends(t, store, "Alice", "Bob")
	alice, bob := ids[0], ids[1]

	tests := []struct {
		name      string
		others    []models.OtherPayment
		wantTotal string
		wantOther string
	}{
		{
			name:      "percentage tax",
			others:    []models.OtherPayment{{Name: "VAT", Kind: models.OtherKindTax, UsePercentage: true, Amount: dec("10")}},
			wantTotal: "55000",
			wantOther: "5000",
		},
		{
			name:      "fixed discount",
			others:    []models.OtherPayment{{Name: "Promo", Kind: models.OtherKindDiscount, Amount: dec("20000")}},
			wantTotal: "40000",
			wantOther: "-10000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bill, err := store.SaveSplitToHistory(ctx, pizzaDraft(alice, bob, tt.others...), []string{alice, bob}, nil, nil)
			if err != nil {
				t.Fatalf("SaveSplitToHistory failed: %v", err)
			}
			if bill.ID == "" || bill.CreatedAt == 0 {
				t.Errorf("expected ID and CreatedAt, got %q %d", bill.ID, bill.CreatedAt)
			}

			for _, id := range []string{alice, bob} {
				sf := friendTotal(t, bill, id)
				if !sf.SubTotal.Equal(dec("50000")) {
					t.Errorf("subtotal = %s, want 50000", sf.SubTotal)
				}
				if !sf.Total.Equal(dec(tt.wantTotal)) {
					t.Errorf("total = %s, want %s", sf.Total, tt.wantTotal)
				}
				if len(sf.Others) != 1 || !sf.Others[0].Amount.Equal(dec(tt.wantOther)) {
					t.Errorf("other breakdown = %+v, want one entry of %s", sf.Others, tt.wantOther)
				}
				if len(sf.Items) != 1 || sf.Items[0].Name != "Pizza" || !sf.Items[0].Quantity.Equal(dec("0.5")) {
					t.Errorf("item breakdown = %+v", sf.Items)
				}
				if sf.Friend == nil {
					t.Errorf("expected friend %s to be joined", id)
				}
			}
		})
	}

	t.Run("stored totals match the engine", func(t *testing.T) {
		draft := &models.Draft{
			Name: "Dinner",
			Items: []models.Item{
				{Name: "Steak", Price: dec("12.99"), Quantity: dec("1"), Assignments: []models.Assignment{{FriendID: alice, Quantity: dec("1")}}},
				{Name: "Wine", Price: dec("7.5"), Quantity: dec("3"), Assignments: []models.Assignment{
					{FriendID: alice, Quantity: dec("1")},
					{FriendID: bob, Quantity: dec("2")},
				}},
			},
			Others: []models.OtherPayment{
				{Name: "Tax", Kind: models.OtherKindTax, UsePercentage: true, Amount: dec("8.25")},
				{Name: "Tip", Kind: models.OtherKindAddition, Amount: dec("5")},
			},
		}
		want := calculator.ComputeFriendTotals(draft.Items, draft.Others, []string{alice, bob})

		bill, err := store.SaveSplitToHistory(ctx, draft, []string{alice, bob}, nil, nil)
		if err != nil {
			t.Fatalf("SaveSplitToHistory failed: %v", err)
		}

		got, err := store.GetSplit(ctx, bill.ID)
		if err != nil {
			t.Fatalf("GetSplit failed: %v", err)
		}
		for _, id := range []string{alice, bob} {
			sf := friendTotal(t, got, id)
			if !sf.SubTotal.Equal(want[id].SubTotal) || !sf.Total.Equal(want[id].Total) {
				t.Errorf("friend %s: stored %s/%s, engine %s/%s", id, sf.SubTotal, sf.Total, want[id].SubTotal, want[id].Total)
			}
		}
		if len(got.Items) != 2 || got.Items[0].Name != "Steak" || got.Items[1].Name != "Wine" {
			t.Errorf("items not in draft order: %+v", got.Items)
		}
		if len(got.Items[1].Assignments) != 2 || !got.Items[1].Assignments[1].SubTotal.Equal(dec("15")) {
			t.Errorf("wine assignments = %+v", got.Items[1].Assignments)
		}
		if len(got.Others) != 2 || got.Others[0].Kind != models.OtherKindTax || !got.Others[0].UsePercentage {
			t.Errorf("others = %+v", got.Others)
		}
	})

	t.Run("caller totals are re-derived", func(t *testing.T) {
		m := metrics.New()
		path := filepath.Join(t.TempDir(), "mismatch.db")
		mstore, err := New(path, WithMetrics(m))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer mstore.Close()
		mids := addFriends(t, mstore, "Alice", "Bob")

		draft := pizzaDraft(mids[0], mids[1])
		draft.Totals = map[string]decimal.Decimal{
			mids[0]: dec("1"),
			mids[1]: dec("50000.004"),
		}
		bill, err := mstore.SaveSplitToHistory(ctx, draft, mids, nil, nil)
		if err != nil {
			t.Fatalf("SaveSplitToHistory failed: %v", err)
		}
		if sf := friendTotal(t, bill, mids[0]); !sf.Total.Equal(dec("50000")) {
			t.Errorf("stored total = %s, want re-derived 50000", sf.Total)
		}

		expected := `
# HELP splitbill_total_mismatches_total Participants whose draft total disagreed with the total re-derived on save.
# TYPE splitbill_total_mismatches_total counter
splitbill_total_mismatches_total 1
`
		if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "splitbill_total_mismatches_total"); err != nil {
			t.Errorf("unexpected mismatch metric: %v", err)
		}
	})

	t.Run("bank and share info", func(t *testing.T) {
		bank := &models.BankInfo{Name: "Bank A", AccountNumber: "42"}
		share := &models.ShareInfo{Slug: "abc", URL: "https://example.com/s/abc"}
		bill, err := store.SaveSplitToHistory(ctx, pizzaDraft(alice, bob), []string{alice, bob}, bank, share)
		if err != nil {
			t.Fatalf("SaveSplitToHistory failed: %v", err)
		}
		if bill.Bank == nil || *bill.Bank != *bank {
			t.Errorf("bank = %+v, want %+v", bill.Bank, bank)
		}
		if bill.Share == nil || *bill.Share != *share {
			t.Errorf("share = %+v, want %+v", bill.Share, share)
		}
	})

	t.Run("participant without items", func(t *testing.T) {
		carol := addFriends(t, store, "Carol")[0]
		others := []models.OtherPayment{{Name: "Service", Kind: models.OtherKindAddition, Amount: dec("3000")}}
		bill, err := store.SaveSplitToHistory(ctx, pizzaDraft(alice, bob, others...), []string{alice, bob, carol}, nil, nil)
		if err != nil {
			t.Fatalf("SaveSplitToHistory failed: %v", err)
		}
		sf := friendTotal(t, bill, carol)
		if !sf.SubTotal.IsZero() || !sf.Total.Equal(dec("1000")) {
			t.Errorf("carol = %s/%s, want 0/1000", sf.SubTotal, sf.Total)
		}
		if len(sf.Items) != 0 {
			t.Errorf("expected no items for carol, got %+v", sf.Items)
		}
	})
}

func TestGetAllSplittedBills(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("empty history", func(t *testing.T) {
		bills, err := store.GetAllSplittedBills(ctx)
		if err != nil {
			t.Fatalf("GetAllSplittedBills failed: %v", err)
		}
		if len(bills) != 0 {
			t.Errorf("expected no bills, got %d", len(bills))
		}
	})

	ids := addFriends(t, store, "Alice", "Bob")
	var saved []string
	for _, name := range []string{"first", "second", "third"} {
		draft := pizzaDraft(ids[0], ids[1])
		draft.Name = name
		bill, err := store.SaveSplitToHistory(ctx, draft, ids, nil, nil)
		if err != nil {
			t.Fatalf("SaveSplitToHistory failed: %v", err)
		}
		saved = append(saved, bill.ID)
	}

	t.Run("newest first", func(t *testing.T) {
		bills, err := store.GetAllSplittedBills(ctx)
		if err != nil {
			t.Fatalf("GetAllSplittedBills failed: %v", err)
		}
		if len(bills) != 3 {
			t.Fatalf("expected 3 bills, got %d", len(bills))
		}
		for i, want := range []string{saved[2], saved[1], saved[0]} {
			if bills[i].ID != want {
				t.Errorf("bills[%d] = %s, want %s", i, bills[i].Name, want)
			}
			if len(bills[i].Friends) != 2 || len(bills[i].Items) != 1 {
				t.Errorf("bill %s not hydrated: %+v", bills[i].Name, bills[i])
			}
		}
	})

	t.Run("deleted friend reads back as unknown", func(t *testing.T) {
		if _, err := store.DeleteFriend(ctx, ids[1]); err != nil {
			t.Fatalf("DeleteFriend failed: %v", err)
		}

		bills, err := store.GetAllSplittedBills(ctx)
		if err != nil {
			t.Fatalf("GetAllSplittedBills failed: %v", err)
		}
		for _, bill := range bills {
			sf := friendTotal(t, bill, ids[1])
			if sf.Friend != nil {
				t.Errorf("expected nil friend, got %+v", sf.Friend)
			}
			if sf.DisplayName() != models.UnknownFriendName {
				t.Errorf("display name = %q, want %q", sf.DisplayName(), models.UnknownFriendName)
			}
			if !sf.Total.Equal(dec("50000")) {
				t.Errorf("stored total changed to %s", sf.Total)
			}
		}
	})
}

func TestGetSplit_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSplit(context.Background(), "missing")
	if !errors.Is(err, models.ErrSplitNotFound) {
		t.Errorf("error = %v, want ErrSplitNotFound", err)
	}
}

func TestUpdateShareInfo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := addFriends(t, store, "Alice", "Bob")

	bill, err := store.SaveSplitToHistory(ctx, pizzaDraft(ids[0], ids[1]), ids, nil, nil)
	if err != nil {
		t.Fatalf("SaveSplitToHistory failed: %v", err)
	}
	if bill.Share != nil {
		t.Fatalf("expected no share info, got %+v", bill.Share)
	}

	share := models.ShareInfo{Slug: "xyz", URL: "https://example.com/s/xyz"}
	if err := store.UpdateShareInfo(ctx, bill.ID, share); err != nil {
		t.Fatalf("UpdateShareInfo failed: %v", err)
	}
	got, err := store.GetSplit(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetSplit failed: %v", err)
	}
	if got.Share == nil || *got.Share != share {
		t.Errorf("share = %+v, want %+v", got.Share, share)
	}

	if err := store.UpdateShareInfo(ctx, "missing", share); !errors.Is(err, models.ErrSplitNotFound) {
		t.Errorf("error = %v, want ErrSplitNotFound", err)
	}
}

func TestDeleteSplit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := addFriends(t, store, "Alice", "Bob")

	others := []models.OtherPayment{{Name: "VAT", Kind: models.OtherKindTax, UsePercentage: true, Amount: dec("10")}}
	bill, err := store.SaveSplitToHistory(ctx, pizzaDraft(ids[0], ids[1], others...), ids, nil, nil)
	if err != nil {
		t.Fatalf("SaveSplitToHistory failed: %v", err)
	}
	kept, err := store.SaveSplitToHistory(ctx, pizzaDraft(ids[0], ids[1], others...), ids, nil, nil)
	if err != nil {
		t.Fatalf("SaveSplitToHistory failed: %v", err)
	}

	deleted, err := store.DeleteSplit(ctx, bill.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteSplit = %v, %v; want true, nil", deleted, err)
	}

	for _, table := range []string{
		"split_items",
		"split_item_assignments",
		"split_others",
		"split_other_assignments",
		"split_friends",
	} {
		var n int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE split_id = ?", bill.ID).Scan(&n); err != nil {
			t.Fatalf("count %s failed: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d orphaned rows", table, n)
		}
	}

	if _, err := store.GetSplit(ctx, bill.ID); !errors.Is(err, models.ErrSplitNotFound) {
		t.Errorf("GetSplit after delete = %v, want ErrSplitNotFound", err)
	}
	if _, err := store.GetSplit(ctx, kept.ID); err != nil {
		t.Errorf("other split affected by delete: %v", err)
	}

	deleted, err = store.DeleteSplit(ctx, bill.ID)
	if err != nil || deleted {
		t.Errorf("second DeleteSplit = %v, %v; want false, nil", deleted, err)
	}
}

// checkHydrated reports a bill that is missing any part of its stored breakdown.
func checkHydrated(bill *models.SplitBill, items, others, friends int) error {
	if len(bill.Items) != items || len(bill.Others) != others || len(bill.Friends) != friends {
		return fmt.Errorf("bill %s (%s) has %d items, %d others, %d friends; want %d, %d, %d",
			bill.ID, bill.Name, len(bill.Items), len(bill.Others), len(bill.Friends), items, others, friends)
	}
	for _, f := range bill.Friends {
		if len(f.Items) == 0 || len(f.Others) != others {
			return fmt.Errorf("bill %s friend %s has %d items, %d others", bill.ID, f.FriendID, len(f.Items), len(f.Others))
		}
	}
	for _, item := range bill.Items {
		if len(item.Assignments) == 0 {
			return fmt.Errorf("bill %s item %s has no assignments", bill.ID, item.Name)
		}
	}
	return nil
}

func TestHistoryReadsDuringDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := addFriends(t, store, "Alice", "Bob", "Carol")
	alice, bob, carol := ids[0], ids[1], ids[2]

	vat := models.OtherPayment{Name: "VAT", Kind: models.OtherKindTax, UsePercentage: true, Amount: dec("10")}

	kept := &models.Draft{
		Name: "Kept",
		Items: []models.Item{
			{Name: "Soup", Price: dec("30"), Quantity: dec("1"), Assignments: []models.Assignment{{FriendID: carol, Quantity: dec("1")}}},
			{Name: "Tea", Price: dec("5"), Quantity: dec("2"), Assignments: []models.Assignment{{FriendID: alice, Quantity: dec("2")}}},
		},
		Others: []models.OtherPayment{{Name: "Promo", Kind: models.OtherKindDiscount, Amount: dec("2")}},
	}
	keptBill, err := store.SaveSplitToHistory(ctx, kept, []string{carol, alice}, nil, nil)
	if err != nil {
		t.Fatalf("SaveSplitToHistory failed: %v", err)
	}

	for round := 0; round < 50; round++ {
		victim, err := store.SaveSplitToHistory(ctx, pizzaDraft(alice, bob, vat), []string{alice, bob}, nil, nil)
		if err != nil {
			t.Fatalf("round %d: SaveSplitToHistory failed: %v", round, err)
		}

		var deleted atomic.Bool
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer deleted.Store(true)
			_, err := store.DeleteSplit(gctx, victim.ID)
			return err
		})
		g.Go(func() error {
			for {
				done := deleted.Load()

				bills, err := store.GetAllSplittedBills(gctx)
				if err != nil {
					return err
				}
				for _, bill := range bills {
					switch bill.ID {
					case victim.ID:
						if err := checkHydrated(bill, 1, 1, 2); err != nil {
							return fmt.Errorf("round %d: %w", round, err)
						}
					case keptBill.ID:
						if err := checkHydrated(bill, 2, 1, 2); err != nil {
							return fmt.Errorf("round %d: %w", round, err)
						}
					}
				}

				bill, err := store.GetSplit(gctx, victim.ID)
				switch {
				case errors.Is(err, models.ErrSplitNotFound):
				case err != nil:
					return err
				default:
					if err := checkHydrated(bill, 1, 1, 2); err != nil {
						return fmt.Errorf("round %d: %w", round, err)
					}
				}

				if done {
					return nil
				}
			}
		})
		if err := g.Wait(); err != nil {
			t.Fatal(err)
		}
	}

	// Breakdowns stay attached to their own bill when several are read together.
	bills, err := store.GetAllSplittedBills(ctx)
	if err != nil {
		t.Fatalf("GetAllSplittedBills failed: %v", err)
	}
	if len(bills) != 1 || bills[0].ID != keptBill.ID {
		t.Fatalf("expected only the kept bill, got %d bills", len(bills))
	}
	if bills[0].Items[0].Name != "Soup" || bills[0].Items[1].Name != "Tea" {
		t.Errorf("items out of order: %+v", bills[0].Items)
	}
	if got := friendTotal(t, bills[0], carol); !got.Total.Equal(dec("29")) || got.Items[0].Name != "Soup" {
		t.Errorf("carol = %+v", got)
	}
	if got := friendTotal(t, bills[0], alice); !got.Total.Equal(dec("9")) || got.Items[0].Name != "Tea" {
		t.Errorf("alice = %+v", got)
	}
}
