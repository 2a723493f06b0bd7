package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitbill/internal/calculator"
	"github.com/mmynk/splitbill/internal/models"
	"github.com/mmynk/splitbill/internal/storage"
	"github.com/mmynk/splitbill/internal/validator"
)

// Recognizer turns OCR text into an unassigned draft.
type Recognizer interface {
	Recognize(ctx context.Context, rawText string) (*models.Draft, error)
}

// Sharer publishes a stored split and returns its public link.
type Sharer interface {
	Share(ctx context.Context, bill *models.SplitBill) (*models.ShareInfo, error)
}

// SplitRequest is a draft together with the friends it is split between.
type SplitRequest struct {
	Draft        models.Draft `json:"draft"`
	Participants []string     `json:"participants" validate:"required,min=1,dive,required"`

	// Bank is shown on the saved split. When nil, the owner's bank details are used.
	Bank *models.BankInfo `json:"bank,omitempty"`
}

// Calculation is the result of running the allocation engine on a draft.
type Calculation struct {
	Friends    []models.SplitFriend `json:"friends"`
	GrandTotal decimal.Decimal      `json:"grand_total"`

	// Warnings describe tolerated problems such as over- or under-assigned items.
	Warnings []string `json:"warnings"`
}

// SaveResult is a saved split plus any warnings raised while validating it.
type SaveResult struct {
	Split    *models.SplitBill `json:"split"`
	Warnings []string          `json:"warnings"`
}

// SplitService orchestrates validation, the allocation engine, persistence and the
// remote recognition and share backends.
type SplitService struct {
	store      storage.Store
	policy     calculator.AssignmentPolicy
	recognizer Recognizer
	sharer     Sharer
}

// SplitOption configures a SplitService.
type SplitOption func(*SplitService)

// WithPolicy sets how over-assigned items are handled. The default is PolicyTolerate.
func WithPolicy(p calculator.AssignmentPolicy) SplitOption {
	return func(s *SplitService) {
		s.policy = p
	}
}

// WithRecognizer enables Recognize.
func WithRecognizer(r Recognizer) SplitOption {
	return func(s *SplitService) {
		s.recognizer = r
	}
}

// WithSharer enables Share.
func WithSharer(sh Sharer) SplitOption {
	return func(s *SplitService) {
		s.sharer = sh
	}
}

// NewSplitService creates a new SplitService with the given storage backend.
func NewSplitService(store storage.Store, opts ...SplitOption) *SplitService {
	s := &SplitService{store: store, policy: calculator.PolicyTolerate}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calculate validates req and returns each participant's totals without saving anything.
func (s *SplitService) Calculate(ctx context.Context, req *SplitRequest) (*Calculation, error) {
	warnings, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	participants := uniqueIDs(req.Participants)
	totals := calculator.ComputeFriendTotals(req.Draft.Items, req.Draft.Others, participants)

	calc := &Calculation{
		Friends:    make([]models.SplitFriend, 0, len(participants)),
		GrandTotal: decimal.Zero,
		Warnings:   warnings,
	}
	for _, id := range participants {
		ft := totals[id]
		sf := models.SplitFriend{
			FriendID: id,
			SubTotal: ft.SubTotal,
			Total:    ft.Total,
			Items:    ft.Items,
			Others:   ft.Others,
		}
		if friend, err := s.store.GetFriend(ctx, id); err == nil {
			sf.Friend = friend
		} else if !errors.Is(err, models.ErrFriendNotFound) {
			return nil, err
		}
		calc.Friends = append(calc.Friends, sf)
		calc.GrandTotal = calc.GrandTotal.Add(ft.Total)
	}

	slog.Debug("Split calculated",
		"participants", len(participants),
		"items", len(req.Draft.Items),
		"grand_total", calc.GrandTotal.String(),
	)
	return calc, nil
}

// Save validates req, re-derives the totals and writes the split to history.
// Every participant must be an existing friend.
func (s *SplitService) Save(ctx context.Context, req *SplitRequest) (*SaveResult, error) {
	warnings, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	participants := uniqueIDs(req.Participants)
	fields := make(map[string]string)
	for i, id := range req.Participants {
		if _, err := s.store.GetFriend(ctx, id); err != nil {
			if !errors.Is(err, models.ErrFriendNotFound) {
				return nil, err
			}
			fields[fmt.Sprintf("participants[%d]", i)] = "Unknown friend"
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields, Err: models.ErrInvalidDraft}
	}

	bank := req.Bank
	if bank.IsZero() {
		bank = nil
		owner, err := s.store.GetOwner(ctx)
		switch {
		case err == nil:
			bank = owner.Bank
		case !errors.Is(err, models.ErrFriendNotFound):
			return nil, err
		}
	}

	split, err := s.store.SaveSplitToHistory(ctx, &req.Draft, participants, bank, nil)
	if err != nil {
		slog.Error("SaveSplitToHistory failed", "error", err)
		return nil, err
	}

	slog.Info("Split saved",
		"split_id", split.ID,
		"participants", len(participants),
		"warnings", len(warnings),
	)
	return &SaveResult{Split: split, Warnings: warnings}, nil
}

// History returns every saved split, newest first.
func (s *SplitService) History(ctx context.Context) ([]*models.SplitBill, error) {
	return s.store.GetAllSplittedBills(ctx)
}

// Get returns one saved split.
func (s *SplitService) Get(ctx context.Context, splitID string) (*models.SplitBill, error) {
	return s.store.GetSplit(ctx, splitID)
}

// Delete removes a saved split and all of its rows.
func (s *SplitService) Delete(ctx context.Context, splitID string) error {
	deleted, err := s.store.DeleteSplit(ctx, splitID)
	if err != nil {
		slog.Error("DeleteSplit failed", "split_id", splitID, "error", err)
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", models.ErrSplitNotFound, splitID)
	}

	slog.Info("Split deleted", "split_id", splitID)
	return nil
}

// Share publishes a saved split and records the returned link. When the share backend
// fails the stored split is left untouched and the error is returned.
func (s *SplitService) Share(ctx context.Context, splitID string) (*models.SplitBill, error) {
	split, err := s.store.GetSplit(ctx, splitID)
	if err != nil {
		return nil, err
	}
	if s.sharer == nil {
		return nil, fmt.Errorf("%w: share backend not configured", models.ErrRemoteUnavailable)
	}

	info, err := s.sharer.Share(ctx, split)
	if err != nil {
		slog.Warn("Share failed", "split_id", splitID, "error", err)
		return nil, err
	}

	if err := s.store.UpdateShareInfo(ctx, splitID, *info); err != nil {
		slog.Error("UpdateShareInfo failed", "split_id", splitID, "error", err)
		return nil, err
	}
	split.Share = info

	slog.Info("Split shared", "split_id", splitID, "slug", info.Slug)
	return split, nil
}

// Recognize sends receipt text to the recognition backend and returns an unassigned draft.
func (s *SplitService) Recognize(ctx context.Context, rawText string) (*models.Draft, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, &ValidationError{
			Fields: map[string]string{"text": "This field is required"},
			Err:    models.ErrInvalidDraft,
		}
	}
	if s.recognizer == nil {
		return nil, fmt.Errorf("%w: recognition backend not configured", models.ErrRemoteUnavailable)
	}

	draft, err := s.recognizer.Recognize(ctx, rawText)
	if err != nil {
		slog.Warn("Recognize failed", "error", err)
		return nil, err
	}

	slog.Info("Receipt recognized", "items", len(draft.Items), "others", len(draft.Others))
	return draft, nil
}

// validate checks req before it reaches the engine and returns warnings for problems the
// assignment policy tolerates.
func (s *SplitService) validate(req *SplitRequest) ([]string, error) {
	if err := validator.Validate(req); err != nil {
		fields := validator.FormatValidationErrors(err)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidDraft, err)
		}
		return nil, &ValidationError{Fields: fields, Err: models.ErrInvalidDraft}
	}

	participants := make(map[string]bool, len(req.Participants))
	for _, id := range req.Participants {
		participants[id] = true
	}
	fields := make(map[string]string)
	for i, item := range req.Draft.Items {
		for j, a := range item.Assignments {
			if !participants[a.FriendID] {
				fields[fmt.Sprintf("draft.items[%d].assignments[%d].friend_id", i, j)] = "Must be one of the participants"
			}
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields, Err: models.ErrInvalidDraft}
	}

	if err := calculator.CheckAssignments(req.Draft.Items, s.policy); err != nil {
		return nil, err
	}

	warnings := []string{}
	for _, i := range calculator.OverAssignedItems(req.Draft.Items) {
		item := req.Draft.Items[i]
		warnings = append(warnings, fmt.Sprintf("%q is assigned %s of %s",
			item.Name, item.AssignedQuantity(), item.Quantity))
	}
	for _, item := range req.Draft.Items {
		if assigned := item.AssignedQuantity(); assigned.LessThan(item.Quantity) {
			warnings = append(warnings, fmt.Sprintf("%q has %s of %s unassigned",
				item.Name, item.Quantity.Sub(assigned), item.Quantity))
		}
	}
	return warnings, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
