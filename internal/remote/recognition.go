package remote

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitbill/internal/metrics"
	"github.com/mmynk/splitbill/internal/models"
)

// RecognitionService is the metrics and breaker name of the recognition backend.
const RecognitionService = "recognition"

// RecognitionClient turns OCR text from a receipt into a draft.
type RecognitionClient struct {
	client
}

// NewRecognitionClient creates a client for the recognition backend at baseURL.
// A nil httpClient uses a client with a 15 second timeout.
func NewRecognitionClient(baseURL string, httpClient *http.Client, m *metrics.Metrics) *RecognitionClient {
	return &RecognitionClient{client: newClient(RecognitionService, baseURL, httpClient, m)}
}

type recognitionRequest struct {
	Text string `json:"text"`
}

type recognizedItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type recognizedOther struct {
	Name          string           `json:"name"`
	Kind          models.OtherKind `json:"kind"`
	UsePercentage bool             `json:"use_percentage"`
	Amount        decimal.Decimal  `json:"amount"`
}

type recognitionResponse struct {
	Name   string            `json:"name"`
	Items  []recognizedItem  `json:"items"`
	Others []recognizedOther `json:"others"`
}

// Recognize posts rawText to the backend and returns an unassigned draft.
// Recognized items with a non-positive quantity default to 1; others of an unknown kind
// are dropped.
func (c *RecognitionClient) Recognize(ctx context.Context, rawText string) (*models.Draft, error) {
	var resp recognitionResponse
	if err := c.postJSON(ctx, "/recognize", "", recognitionRequest{Text: rawText}, &resp); err != nil {
		return nil, err
	}

	draft := &models.Draft{
		Name:   resp.Name,
		Items:  make([]models.Item, 0, len(resp.Items)),
		Others: make([]models.OtherPayment, 0, len(resp.Others)),
	}
	for _, it := range resp.Items {
		qty := it.Quantity
		if !qty.IsPositive() {
			qty = decimal.NewFromInt(1)
		}
		draft.Items = append(draft.Items, models.Item{
			Name:        it.Name,
			Price:       it.Price,
			Quantity:    qty,
			Assignments: []models.Assignment{},
		})
	}
	for _, o := range resp.Others {
		if !o.Kind.Valid() {
			continue
		}
		draft.Others = append(draft.Others, models.OtherPayment{
			Name:          o.Name,
			Kind:          o.Kind,
			UsePercentage: o.UsePercentage,
			Amount:        o.Amount.Abs(),
		})
	}
	return draft, nil
}
