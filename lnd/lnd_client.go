package lnd

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to the LND REST api. Only readonly invoice endpoints are used;
// the coordinator never links a node directly.
type Client struct {
	restBaseUrl string
	macaroon    string
	httpClient  *http.Client
}

type payReqResponse struct {
	PaymentHash string `json:"payment_hash"`
	NumSatoshis string `json:"num_satoshis"`
}

type invoiceResponse struct {
	Settled bool   `json:"settled"`
	State   string `json:"state"`
}

func NewClient(restBaseUrl string, macaroon string) (*Client, error) {
	if restBaseUrl == "" {
		return nil, fmt.Errorf("restBaseUrl not set")
	}

	return &Client{
		restBaseUrl: strings.TrimSuffix(restBaseUrl, "/"),
		macaroon:    macaroon,
		httpClient:  &http.Client{Timeout: time.Second * 10},
	}, nil
}

func (c *Client) DecodeInvoice(ctx context.Context, invoice string) (string, error) {
	var payReq payReqResponse
	err := c.get(ctx, "/v1/payreq/"+invoice, &payReq)
	if err != nil {
		return "", fmt.Errorf("decode invoice: %w", err)
	}

	if payReq.PaymentHash == "" {
		return "", fmt.Errorf("decode invoice: no payment hash returned")
	}

	return payReq.PaymentHash, nil
}

func (c *Client) CheckSettled(ctx context.Context, paymentHash string) (bool, error) {
	hashBytes, err := hex.DecodeString(paymentHash)
	if err != nil {
		return false, fmt.Errorf("invalid payment hash %s: %w", paymentHash, err)
	}

	var invoice invoiceResponse
	err = c.get(ctx, "/v1/invoice/"+base64.URLEncoding.EncodeToString(hashBytes), &invoice)
	if err != nil {
		return false, fmt.Errorf("lookup invoice %s: %w", paymentHash, err)
	}

	return invoice.Settled && invoice.State == "SETTLED", nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET",
		c.restBaseUrl+path,
		nil,
	)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext error: %w", err)
	}
	if c.macaroon != "" {
		req.Header.Set("Grpc-Metadata-macaroon", c.macaroon)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpClient.Do error: %w", err)
	}

	defer resp.Body.Close()
	if !(resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return fmt.Errorf("error statuscode %v", resp.StatusCode)
	}

	err = json.NewDecoder(resp.Body).Decode(result)
	if err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
