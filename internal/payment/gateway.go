package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
)

// Client talks to the external payment provider over its HTTP API.
// The provider is treated as unreliable: every failure maps to an
// upstream error so callers can tell it apart from local validation.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	AmountCents  int    `json:"amount_cents"`
	// MethodSummary is e.g. "visa ****4242", filled once a method attaches.
	MethodSummary string `json:"method_summary"`
}

type CreateIntentParams struct {
	AmountCents int               `json:"amount_cents"`
	Currency    string            `json:"currency"`
	BuyerRef    string            `json:"buyer_ref"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (c *Client) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	var out Intent
	if err := c.do(ctx, http.MethodPost, "/v1/intents", p, &out); err != nil {
		return Intent{}, err
	}
	return out, nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	var out Intent
	if err := c.do(ctx, http.MethodGet, "/v1/intents/"+intentID, nil, &out); err != nil {
		return Intent{}, err
	}
	return out, nil
}

type refundRequest struct {
	Reason string `json:"reason"`
}

type refundResponse struct {
	ID string `json:"id"`
}

func (c *Client) Refund(ctx context.Context, intentID, reason string) (string, error) {
	var out refundResponse
	err := c.do(ctx, http.MethodPost, "/v1/intents/"+intentID+"/refunds", refundRequest{Reason: reason}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// A transport error after the request went out is an unknown
		// outcome, not a guaranteed failure. Caller must not assume
		// the intent was never created.
		return apperr.Upstream(fmt.Sprintf("gateway %s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.Upstream(
			fmt.Sprintf("gateway %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg)), nil)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Upstream(fmt.Sprintf("gateway %s %s: decode response", method, path), err)
		}
	}
	return nil
}
