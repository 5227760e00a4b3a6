package blockstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/satswap/swapd/chain"
)

var tipCacheDuration time.Duration = time.Minute

// Client verifies deposits against an esplora-compatible block explorer api
// (blockstream.info, mempool.space). The chain tip height is cached briefly
// so a poller pass over many deals costs one tip request.
type Client struct {
	apiBaseUrl string
	httpClient *http.Client

	mtx       sync.Mutex
	tipHeight int64
	tipTime   time.Time
}

type txStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
}

type utxoResponse struct {
	Txid   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Value  int64    `json:"value"`
	Status txStatus `json:"status"`
}

type txResponse struct {
	Txid   string   `json:"txid"`
	Status txStatus `json:"status"`
}

func NewClient(apiBaseUrl string) (*Client, error) {
	if apiBaseUrl == "" {
		return nil, fmt.Errorf("apiBaseUrl not set")
	}

	if !strings.HasSuffix(apiBaseUrl, "/") {
		apiBaseUrl = apiBaseUrl + "/"
	}

	return &Client{
		apiBaseUrl: apiBaseUrl,
		httpClient: &http.Client{Timeout: time.Second * 10},
	}, nil
}

func (c *Client) LookupPayment(
	ctx context.Context,
	address string,
	amountSat int64,
	txid string,
) (*chain.PaymentLookup, error) {
	var utxos []utxoResponse
	err := c.get(ctx, "address/"+address+"/utxo", &utxos)
	if err != nil {
		return nil, fmt.Errorf("utxo lookup for %s: %w", address, err)
	}

	for _, utxo := range utxos {
		if utxo.Value != amountSat {
			continue
		}
		if txid != "" && utxo.Txid != txid {
			continue
		}

		var confirmations int32
		if utxo.Status.Confirmed {
			confirmations, err = c.confirmationsAtHeight(ctx, utxo.Status.BlockHeight)
			if err != nil {
				return nil, err
			}
		}

		return &chain.PaymentLookup{
			Found:         true,
			Confirmations: confirmations,
			Confirmed:     confirmations > 0,
		}, nil
	}

	return &chain.PaymentLookup{}, nil
}

func (c *Client) GetConfirmations(ctx context.Context, txid string) (int32, error) {
	var tx txResponse
	err := c.get(ctx, "tx/"+txid, &tx)
	if err != nil {
		return 0, fmt.Errorf("tx lookup for %s: %w", txid, err)
	}

	if !tx.Status.Confirmed {
		return 0, nil
	}

	return c.confirmationsAtHeight(ctx, tx.Status.BlockHeight)
}

func (c *Client) confirmationsAtHeight(ctx context.Context, blockHeight int64) (int32, error) {
	tip, err := c.getTipHeight(ctx)
	if err != nil {
		return 0, err
	}

	confirmations := tip - blockHeight + 1
	if confirmations < 0 {
		confirmations = 0
	}

	return int32(confirmations), nil
}

func (c *Client) getTipHeight(ctx context.Context) (int64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.tipTime.IsZero() && time.Since(c.tipTime) < tipCacheDuration {
		return c.tipHeight, nil
	}

	var tip int64
	err := c.get(ctx, "blocks/tip/height", &tip)
	if err != nil {
		return 0, fmt.Errorf("tip height: %w", err)
	}

	c.tipHeight = tip
	c.tipTime = time.Now()
	return tip, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET",
		c.apiBaseUrl+path,
		nil,
	)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext error: %w", err)
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
