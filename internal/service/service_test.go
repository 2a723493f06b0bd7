package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitbill/internal/models"
	"github.com/mmynk/splitbill/internal/storage/sqlite"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestStore creates a SQLite store in a temp directory.
func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func addFriend(t *testing.T, svc *FriendService, name string) *models.Friend {
	t.Helper()

	f, err := svc.Add(context.Background(), &models.Friend{Name: name})
	require.NoError(t, err)
	return f
}

func pizzaRequest(a, b string, others ...models.OtherPayment) *SplitRequest {
	return &SplitRequest{
		Draft: models.Draft{
			Name: "Pizza night",
			Items: []models.Item{
				{
					Name:     "Pizza",
					Price:    d("100000"),
					Quantity: d("1"),
					Assignments: []models.Assignment{
						{FriendID: a, Quantity: d("0.5")},
						{FriendID: b, Quantity: d("0.5")},
					},
				},
			},
			Others: others,
		},
		Participants: []string{a, b},
	}
}

type fakeSharer struct {
	info  *models.ShareInfo
	err   error
	calls int
}

func (f *fakeSharer) Share(_ context.Context, _ *models.SplitBill) (*models.ShareInfo, error) {
	f.calls++
	return f.info, f.err
}

type fakeRecognizer struct {
	draft *models.Draft
	err   error
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ string) (*models.Draft, error) {
	return f.draft, f.err
}
