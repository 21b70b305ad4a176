// Package provider is the HTTP client for the external fulfillment
// provider.
//
// The provider speaks the conventional panel API: form-encoded POST
// requests carrying an API key and an action, JSON responses whose
// field names vary between provider deployments. The raw response
// body is preserved so status history keeps the full payload.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrOrderNotFound means the provider does not know the external id.
	ErrOrderNotFound = errors.New("provider: order not found")
)

// apiError is a provider-reported failure (as opposed to transport
// errors). The provider returns these with HTTP 200 and an "error"
// field in the body.
type apiError struct {
	msg string
}

func (e *apiError) Error() string { return "provider: " + e.msg }

// StatusResult is the provider's answer to a status query.
type StatusResult struct {
	Status string          // raw provider vocabulary, unmapped
	Raw    json.RawMessage // full response body, stored in status history
}

// idFields is the ordered priority list of response fields that may
// carry the provider order id. Provider deployments disagree on the
// field name; the first present non-empty field wins.
var idFields = []string{"order", "order_id", "id"}

// Client talks to a fulfillment provider endpoint.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a provider client.
func New(baseURL, key string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		key:     key,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Status queries the provider for the status of an external order id.
// Transport and decode failures are retryable I/O errors; an explicit
// "order not found" answer is ErrOrderNotFound.
func (c *Client) Status(ctx context.Context, externalID string) (*StatusResult, error) {
	body, err := c.call(ctx, url.Values{
		"action": {"status"},
		"order":  {externalID},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if resp.Error != "" {
		if resp.Error == "Incorrect order ID" || resp.Error == "order not found" {
			return nil, ErrOrderNotFound
		}
		return nil, &apiError{msg: resp.Error}
	}

	return &StatusResult{Status: resp.Status, Raw: body}, nil
}

// Submit forwards a new order to the provider and returns the
// provider's order id.
func (c *Client) Submit(ctx context.Context, providerService, link string, quantity int) (string, error) {
	body, err := c.call(ctx, url.Values{
		"action":   {"add"},
		"service":  {providerService},
		"link":     {link},
		"quantity": {strconv.Itoa(quantity)},
	})
	if err != nil {
		return "", err
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if raw, ok := resp["error"]; ok {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		return "", &apiError{msg: msg}
	}

	id := extractOrderID(resp)
	if id == "" {
		return "", fmt.Errorf("submit response missing order id: %s", string(body))
	}
	return id, nil
}

// extractOrderID walks the ordered field-priority table. Values may be
// JSON strings or numbers depending on the provider.
func extractOrderID(resp map[string]json.RawMessage) string {
	for _, field := range idFields {
		raw, ok := resp[field]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" && n.String() != "0" {
			return n.String()
		}
	}
	return ""
}

func (c *Client) call(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("key", c.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
		bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
