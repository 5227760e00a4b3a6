package lnproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Wrapper hides a bolt11 invoice behind a relay-issued one with the same
// payment hash.
type Wrapper interface {
	WrapInvoice(ctx context.Context, invoice string) (string, error)
	Available(ctx context.Context) bool
}

type Client struct {
	baseUrl    string
	httpClient *http.Client
}

func NewClient(baseUrl string) (*Client, error) {
	if baseUrl == "" {
		return nil, fmt.Errorf("baseUrl is empty")
	}

	return &Client{
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}, nil
}

type wrapRequest struct {
	Invoice string `json:"invoice"`
}

type wrapResponse struct {
	ProxyInvoice string `json:"proxy_invoice"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
}

// WrapInvoice asks the relay for a proxy invoice carrying the same payment
// hash as the original.
func (c *Client) WrapInvoice(ctx context.Context, invoice string) (string, error) {
	body, err := json.Marshal(wrapRequest{Invoice: invoice})
	if err != nil {
		return "", fmt.Errorf("json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+"/spec", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("http.NewRequestWithContext(%v): %w", c.baseUrl, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wrap invoice request: %w", err)
	}
	defer res.Body.Close()

	var wrapped wrapResponse
	if err := json.NewDecoder(res.Body).Decode(&wrapped); err != nil {
		return "", fmt.Errorf("json decode wrap response (%v): %w", res.Status, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		if wrapped.Reason != "" {
			return "", fmt.Errorf("relay refused invoice: %s", wrapped.Reason)
		}
		return "", fmt.Errorf("relay returned status %v", res.Status)
	}

	if wrapped.ProxyInvoice == "" {
		return "", fmt.Errorf("relay returned no proxy invoice")
	}

	return wrapped.ProxyInvoice, nil
}

// Available reports whether the relay answers at all. Used to skip a retry
// pass cheaply when the relay is down.
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl+"/spec", nil)
	if err != nil {
		return false
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()

	return res.StatusCode < 500
}
