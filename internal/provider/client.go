// Package provider talks to the external Payout Provider: an opaque
// collaborator that executes real-money transfers and reports settlement
// through a signed webhook.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProvider wraps any opaque failure from the Payout Provider. Callers
// resolve it to a failed payout with refund, never leave it unresolved.
var ErrProvider = errors.New("payout provider error")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type createPayoutRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	MethodID       string `json:"method_id"`
	Amount         int64  `json:"amount"`
}

type createPayoutResponse struct {
	Reference string `json:"reference"`
}

// CreatePayout asks the provider to move amount to the given method and
// returns the provider's reference for the transfer. idempotencyKey is our
// payout id: a retried submission carries the same key, so the provider
// dedups it instead of moving the money twice. Settlement arrives later
// through the webhook callback.
func (c *Client) CreatePayout(ctx context.Context, idempotencyKey, providerMethodID string, amount int64) (string, error) {
	body, err := json.Marshal(createPayoutRequest{IdempotencyKey: idempotencyKey, MethodID: providerMethodID, Amount: amount})
	if err != nil {
		return "", fmt.Errorf("marshal payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payouts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}

	var out createPayoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: invalid response body", ErrProvider)
	}
	if out.Reference == "" {
		return "", fmt.Errorf("%w: empty reference", ErrProvider)
	}
	return out.Reference, nil
}
