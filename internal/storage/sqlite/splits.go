package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitbill/internal/calculator"
	"github.com/mmynk/splitbill/internal/models"
)

// totalTolerance is how far a caller-supplied draft total may drift from the re-derived
// total before it counts as a mismatch.
var totalTolerance = decimal.New(1, -2)

const splitColumns = "id, name, created_at, slug, share_url, bank_name, bank_account_name, bank_account_number"

// SaveSplitToHistory writes a split bill and every nested row in one transaction.
//
// Totals are re-derived from the draft's items and other payments; totals carried on the
// draft are only compared, never stored. The returned bill is read back from the database.
func (s *SQLiteStore) SaveSplitToHistory(ctx context.Context, draft *models.Draft, participants []string, bank *models.BankInfo, share *models.ShareInfo) (*models.SplitBill, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	splitID := uuid.New().String()
	createdAt := time.Now().Unix()

	items := make([]models.Item, len(draft.Items))
	for i, item := range draft.Items {
		item.ID = uuid.New().String()
		assignments := make([]models.Assignment, len(item.Assignments))
		for j, a := range item.Assignments {
			a.SubTotal = a.Quantity.Mul(item.Price)
			assignments[j] = a
		}
		item.Assignments = assignments
		items[i] = item
	}
	others := make([]models.OtherPayment, len(draft.Others))
	for i, o := range draft.Others {
		o.ID = uuid.New().String()
		others[i] = o
	}

	order := orderedParticipants(participants)
	totals := calculator.ComputeFriendTotals(items, others, order)
	s.verifyDraftTotals(draft, totals)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var slug, shareURL any
	if share != nil {
		slug, shareURL = nullable(share.Slug), nullable(share.URL)
	}
	bankName, accountName, accountNumber := bankArgs(bank)
	_, err = tx.ExecContext(ctx,
		"INSERT INTO split_bills ("+splitColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		splitID, draft.Name, createdAt, slug, shareURL, bankName, accountName, accountNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert split: %w", err)
	}

	for i, item := range items {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO split_items (id, split_id, position, name, price, quantity) VALUES (?, ?, ?, ?, ?, ?)",
			item.ID, splitID, i, item.Name, item.Price, item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert item: %w", err)
		}

		for j, a := range item.Assignments {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO split_item_assignments (item_id, split_id, position, friend_id, quantity, sub_total)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				item.ID, splitID, j, a.FriendID, a.Quantity, a.SubTotal,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to insert item assignment: %w", err)
			}
		}
	}

	for i, o := range others {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO split_others (id, split_id, position, name, kind, use_percentage, amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.ID, splitID, i, o.Name, string(o.Kind), o.UsePercentage, o.Amount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert other payment: %w", err)
		}
	}

	for i, friendID := range order {
		ft := totals[friendID]
		_, err = tx.ExecContext(ctx,
			"INSERT INTO split_friends (split_id, friend_id, position, sub_total, total) VALUES (?, ?, ?, ?, ?)",
			splitID, friendID, i, ft.SubTotal, ft.Total,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert split friend: %w", err)
		}

		for _, o := range ft.Others {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO split_other_assignments (other_id, split_id, friend_id, amount) VALUES (?, ?, ?, ?)",
				o.OtherID, splitID, friendID, o.Amount,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to insert other assignment: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.metrics.IncSplitSaved()

	return s.GetSplit(ctx, splitID)
}

// verifyDraftTotals compares the caller's totals with the re-derived ones and reports drift.
func (s *SQLiteStore) verifyDraftTotals(draft *models.Draft, totals map[string]*calculator.FriendTotal) {
	if len(draft.Totals) == 0 {
		return
	}

	mismatched := 0
	for friendID, claimed := range draft.Totals {
		ft, ok := totals[friendID]
		if !ok || claimed.Sub(ft.Total).Abs().GreaterThan(totalTolerance) {
			mismatched++
		}
	}
	if mismatched == 0 {
		return
	}

	slog.Warn("Draft totals differ from re-derived totals; storing re-derived values",
		"split_name", draft.Name,
		"mismatched", mismatched,
	)
	s.metrics.AddTotalMismatches(mismatched)
}

// GetSplit retrieves one split bill with its stored breakdown.
func (s *SQLiteStore) GetSplit(ctx context.Context, splitID string) (*models.SplitBill, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	var bill *models.SplitBill
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+splitColumns+" FROM split_bills WHERE id = ?", splitID)
		var err error
		bill, err = scanSplit(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", models.ErrSplitNotFound, splitID)
		}
		if err != nil {
			return fmt.Errorf("failed to get split: %w", err)
		}
		return loadSplitDetails(ctx, tx, []*models.SplitBill{bill}, splitID)
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// GetAllSplittedBills returns every split bill, newest first.
//
// Bills and their nested rows are read in one transaction, so a concurrent save or delete
// is either fully visible or not at all.
func (s *SQLiteStore) GetAllSplittedBills(ctx context.Context) ([]*models.SplitBill, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	bills := []*models.SplitBill{}
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT "+splitColumns+" FROM split_bills ORDER BY created_at DESC, rowid DESC",
		)
		if err != nil {
			return fmt.Errorf("failed to list splits: %w", err)
		}
		for rows.Next() {
			bill, err := scanSplit(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan split: %w", err)
			}
			bills = append(bills, bill)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate splits: %w", err)
		}

		if len(bills) == 0 {
			return nil
		}
		return loadSplitDetails(ctx, tx, bills, "")
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// readTx runs fn inside a read-only transaction so every query sees the same snapshot.
func (s *SQLiteStore) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateShareInfo stores the slug and URL returned by the share backend.
func (s *SQLiteStore) UpdateShareInfo(ctx context.Context, splitID string, share models.ShareInfo) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE split_bills SET slug = ?, share_url = ? WHERE id = ?",
		nullable(share.Slug), nullable(share.URL), splitID,
	)
	if err != nil {
		return fmt.Errorf("failed to update share info: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrSplitNotFound, splitID)
	}
	return nil
}

// DeleteSplit removes a split and every nested row in one transaction.
// Children are deleted explicitly, so the result does not depend on the foreign_keys pragma.
func (s *SQLiteStore) DeleteSplit(ctx context.Context, splitID string) (bool, error) {
	if err := s.Init(ctx); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"split_other_assignments",
		"split_item_assignments",
		"split_friends",
		"split_others",
		"split_items",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE split_id = ?", splitID); err != nil {
			return false, fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM split_bills WHERE id = ?", splitID)
	if err != nil {
		return false, fmt.Errorf("failed to delete split: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check deleted rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	if n > 0 {
		s.metrics.IncSplitDeleted()
	}
	return n > 0, nil
}

func scanSplit(row scanner) (*models.SplitBill, error) {
	bill := &models.SplitBill{}
	var slug, shareURL, bankName, accountName, accountNumber sql.NullString
	if err := row.Scan(
		&bill.ID,
		&bill.Name,
		&bill.CreatedAt,
		&slug,
		&shareURL,
		&bankName,
		&accountName,
		&accountNumber,
	); err != nil {
		return nil, err
	}
	if slug.Valid || shareURL.Valid {
		bill.Share = &models.ShareInfo{Slug: slug.String, URL: shareURL.String}
	}
	bill.Bank = bankFromColumns(bankName, accountName, accountNumber)
	return bill, nil
}

// loadSplitDetails hydrates items, other payments and per-friend results for bills.
//
// Each child table is read once, limited to splitID or covering every split when splitID
// is empty.
func loadSplitDetails(ctx context.Context, q queryer, bills []*models.SplitBill, splitID string) error {
	items, itemIndex, err := loadItems(ctx, q, splitID)
	if err != nil {
		return err
	}

	friendItems, err := loadAssignments(ctx, q, items, itemIndex, splitID)
	if err != nil {
		return err
	}

	others, err := loadOthers(ctx, q, splitID)
	if err != nil {
		return err
	}

	friendOthers, err := loadOtherAssignments(ctx, q, splitID)
	if err != nil {
		return err
	}

	friends, err := loadSplitFriends(ctx, q, splitID)
	if err != nil {
		return err
	}

	for _, bill := range bills {
		bf := nonNil(friends[bill.ID])
		for i := range bf {
			id := bf[i].FriendID
			bf[i].Items = nonNil(friendItems[bill.ID][id])
			bf[i].Others = nonNil(friendOthers[bill.ID][id])
		}
		bill.Items = nonNil(items[bill.ID])
		bill.Others = nonNil(others[bill.ID])
		bill.Friends = bf
	}
	return nil
}

// splitScope returns a WHERE condition on col for one split, or for every split when
// splitID is empty.
func splitScope(col, splitID string) (string, []any) {
	if splitID == "" {
		return "1 = 1", nil
	}
	return col + " = ?", []any{splitID}
}

// itemRef locates an item inside the per-split item slices.
type itemRef struct {
	splitID string
	pos     int
}

func loadItems(ctx context.Context, q queryer, splitID string) (map[string][]models.Item, map[string]itemRef, error) {
	scope, args := splitScope("split_id", splitID)
	rows, err := q.QueryContext(ctx,
		"SELECT split_id, id, name, price, quantity FROM split_items WHERE "+scope+" ORDER BY split_id, position",
		args...,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	bySplit := make(map[string][]models.Item)
	index := make(map[string]itemRef)
	for rows.Next() {
		var billID string
		item := models.Item{Assignments: []models.Assignment{}}
		if err := rows.Scan(&billID, &item.ID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, nil, fmt.Errorf("failed to scan item: %w", err)
		}
		index[item.ID] = itemRef{splitID: billID, pos: len(bySplit[billID])}
		bySplit[billID] = append(bySplit[billID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return bySplit, index, nil
}

// loadAssignments fills item assignments and returns each friend's item breakdown per split.
func loadAssignments(ctx context.Context, q queryer, items map[string][]models.Item, index map[string]itemRef, splitID string) (map[string]map[string][]models.FriendItem, error) {
	scope, args := splitScope("a.split_id", splitID)
	rows, err := q.QueryContext(ctx,
		`SELECT a.item_id, a.friend_id, a.quantity, a.sub_total
		 FROM split_item_assignments a
		 JOIN split_items i ON i.id = a.item_id
		 WHERE `+scope+`
		 ORDER BY a.split_id, i.position, a.position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get item assignments: %w", err)
	}
	defer rows.Close()

	bySplit := make(map[string]map[string][]models.FriendItem)
	for rows.Next() {
		var itemID string
		var a models.Assignment
		if err := rows.Scan(&itemID, &a.FriendID, &a.Quantity, &a.SubTotal); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		ref, ok := index[itemID]
		if !ok {
			continue
		}
		item := &items[ref.splitID][ref.pos]
		item.Assignments = append(item.Assignments, a)

		byFriend := bySplit[ref.splitID]
		if byFriend == nil {
			byFriend = make(map[string][]models.FriendItem)
			bySplit[ref.splitID] = byFriend
		}
		byFriend[a.FriendID] = append(byFriend[a.FriendID], models.FriendItem{
			ItemID:   itemID,
			Name:     item.Name,
			Quantity: a.Quantity,
			SubTotal: a.SubTotal,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return bySplit, nil
}

func loadOthers(ctx context.Context, q queryer, splitID string) (map[string][]models.OtherPayment, error) {
	scope, args := splitScope("split_id", splitID)
	rows, err := q.QueryContext(ctx,
		"SELECT split_id, id, name, kind, use_percentage, amount FROM split_others WHERE "+scope+" ORDER BY split_id, position",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get other payments: %w", err)
	}
	defer rows.Close()

	bySplit := make(map[string][]models.OtherPayment)
	for rows.Next() {
		var o models.OtherPayment
		var billID, kind string
		if err := rows.Scan(&billID, &o.ID, &o.Name, &kind, &o.UsePercentage, &o.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan other payment: %w", err)
		}
		o.Kind = models.OtherKind(kind)
		bySplit[billID] = append(bySplit[billID], o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate other payments: %w", err)
	}
	return bySplit, nil
}

func loadOtherAssignments(ctx context.Context, q queryer, splitID string) (map[string]map[string][]models.FriendOther, error) {
	scope, args := splitScope("oa.split_id", splitID)
	rows, err := q.QueryContext(ctx,
		`SELECT oa.split_id, oa.other_id, oa.friend_id, o.name, o.kind, o.use_percentage, oa.amount
		 FROM split_other_assignments oa
		 JOIN split_others o ON o.id = oa.other_id
		 WHERE `+scope+`
		 ORDER BY oa.split_id, o.position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get other assignments: %w", err)
	}
	defer rows.Close()

	bySplit := make(map[string]map[string][]models.FriendOther)
	for rows.Next() {
		var fo models.FriendOther
		var billID, friendID, kind string
		if err := rows.Scan(&billID, &fo.OtherID, &friendID, &fo.Name, &kind, &fo.UsePercentage, &fo.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan other assignment: %w", err)
		}
		fo.Kind = models.OtherKind(kind)

		byFriend := bySplit[billID]
		if byFriend == nil {
			byFriend = make(map[string][]models.FriendOther)
			bySplit[billID] = byFriend
		}
		byFriend[friendID] = append(byFriend[friendID], fo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate other assignments: %w", err)
	}
	return bySplit, nil
}

// loadSplitFriends reads stored results. Friends deleted since the split was saved come
// back with a nil Friend.
func loadSplitFriends(ctx context.Context, q queryer, splitID string) (map[string][]models.SplitFriend, error) {
	scope, args := splitScope("sf.split_id", splitID)
	rows, err := q.QueryContext(ctx,
		`SELECT sf.split_id, sf.friend_id, sf.sub_total, sf.total,
		        f.name, f.is_me, f.color, f.created_at,
		        f.bank_name, f.bank_account_name, f.bank_account_number
		 FROM split_friends sf
		 LEFT JOIN friends f ON f.id = sf.friend_id
		 WHERE `+scope+`
		 ORDER BY sf.split_id, sf.position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get split friends: %w", err)
	}
	defer rows.Close()

	bySplit := make(map[string][]models.SplitFriend)
	for rows.Next() {
		var (
			billID                               string
			sf                                   models.SplitFriend
			name, color                          sql.NullString
			isMe                                 sql.NullBool
			createdAt                            sql.NullInt64
			bankName, accountName, accountNumber sql.NullString
		)
		if err := rows.Scan(&billID, &sf.FriendID, &sf.SubTotal, &sf.Total,
			&name, &isMe, &color, &createdAt,
			&bankName, &accountName, &accountNumber,
		); err != nil {
			return nil, fmt.Errorf("failed to scan split friend: %w", err)
		}
		if name.Valid {
			sf.Friend = &models.Friend{
				ID:        sf.FriendID,
				Name:      name.String,
				IsMe:      isMe.Bool,
				Color:     color.String,
				CreatedAt: createdAt.Int64,
				Bank:      bankFromColumns(bankName, accountName, accountNumber),
			}
		}
		bySplit[billID] = append(bySplit[billID], sf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate split friends: %w", err)
	}
	return bySplit, nil
}

func orderedParticipants(participants []string) []string {
	seen := make(map[string]bool, len(participants))
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
