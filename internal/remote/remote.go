// Package remote talks to the receipt recognition and split sharing backends.
//
// Calls are wrapped in a circuit breaker and never retried. Callers treat every failure as
// best effort: local state is never rolled back because a remote call failed.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mmynk/splitbill/internal/metrics"
	"github.com/mmynk/splitbill/internal/models"
)

// Error reports a failed call to a remote backend. It unwraps to
// models.ErrRemoteUnavailable and to the underlying cause.
type Error struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{models.ErrRemoteUnavailable, e.Err}
}

// errNotConfigured is returned when a client has no base URL.
var errNotConfigured = errors.New("endpoint not configured")

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// NewCircuitBreaker trips after at least 5 requests with a failure ratio of 60% or more,
// and probes again after 10 seconds.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
}

// client holds what the recognition and share clients have in common.
type client struct {
	service    string
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	metrics    *metrics.Metrics
}

func newClient(service, baseURL string, httpClient *http.Client, m *metrics.Metrics) client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return client{
		service:    service,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         NewCircuitBreaker(service),
		metrics:    m,
	}
}

// postJSON sends body to path and decodes a 2xx JSON response into out.
func (c *client) postJSON(ctx context.Context, path, bearer string, body, out any) error {
	if c.baseURL == "" {
		return &Error{Service: c.service, Err: errNotConfigured}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Service: c.service, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	start := time.Now()
	_, err = c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &Error{
				Service:    c.service,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(msg))),
			}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	c.metrics.ObserveRemote(c.service, time.Since(start))

	if err != nil {
		c.metrics.IncRemoteError(c.service)
		var remoteErr *Error
		if errors.As(err, &remoteErr) {
			return remoteErr
		}
		return &Error{Service: c.service, Err: err}
	}
	return nil
}
