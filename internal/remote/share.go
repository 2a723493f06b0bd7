package remote

import (
	"context"
	"errors"
	"net/http"

	"github.com/mmynk/splitbill/internal/auth"
	"github.com/mmynk/splitbill/internal/metrics"
	"github.com/mmynk/splitbill/internal/models"
)

// ShareService is the metrics and breaker name of the share backend.
const ShareService = "share"

// ShareClient publishes stored splits and returns the public link.
type ShareClient struct {
	client
	tokens *auth.JWTManager
}

// NewShareClient creates a client for the share backend at baseURL. Each request carries a
// bearer token issued by tokens for the split being shared.
func NewShareClient(baseURL string, tokens *auth.JWTManager, httpClient *http.Client, m *metrics.Metrics) *ShareClient {
	return &ShareClient{
		client: newClient(ShareService, baseURL, httpClient, m),
		tokens: tokens,
	}
}

type shareResponse struct {
	Slug string `json:"slug"`
	URL  string `json:"url"`
}

// Share publishes bill and returns the slug and URL assigned by the backend.
func (c *ShareClient) Share(ctx context.Context, bill *models.SplitBill) (*models.ShareInfo, error) {
	var bearer string
	if c.tokens != nil {
		token, err := c.tokens.Generate(bill.ID, auth.ScopeShare)
		if err != nil {
			return nil, &Error{Service: c.service, Err: err}
		}
		bearer = token
	}

	var resp shareResponse
	if err := c.postJSON(ctx, "/shares", bearer, bill, &resp); err != nil {
		return nil, err
	}
	if resp.Slug == "" || resp.URL == "" {
		c.metrics.IncRemoteError(c.service)
		return nil, &Error{Service: c.service, Err: errors.New("response missing slug or url")}
	}
	return &models.ShareInfo{Slug: resp.Slug, URL: resp.URL}, nil
}

