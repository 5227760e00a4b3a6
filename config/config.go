package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Config carries every tunable of the swap coordinator. It is assembled once
// at startup and passed by reference into each component; nothing mutates it
// afterwards.
type Config struct {
	// Postgres connection string.
	DatabaseUrl string

	// Value indicating whether to run database migrations on startup.
	AutoMigrateDb bool

	// Bitcoin network the coordinator operates on. Payout addresses and the
	// configured deposit addresses must be valid for this network.
	Network *chaincfg.Params

	// The fixed amounts (in satoshi) offers can be created for.
	SwapAmounts []int64

	// The platform receiving address for each swap amount. Every amount in
	// SwapAmounts must have an entry.
	DepositAddresses map[int64]string

	// Base url of the esplora-compatible block explorer api used for deposit
	// verification, e.g. https://blockstream.info/api/
	MempoolApiBaseUrl string

	// Base url of the LND REST api used for invoice decoding and settlement
	// checks.
	LndRestBaseUrl string

	// Hex encoded macaroon for the LND REST api. Optional for nodes that
	// don't require one for readonly calls.
	LndMacaroon string

	// Base url of the lnproxy relay used for invoice privacy wrapping.
	LnproxyBaseUrl string

	// Telegram bot token used for counterparty notifications.
	TelegramBotToken string

	// How long a created offer stays visible before it expires.
	OfferVisibility time.Duration

	// How long the buyer has to accept a new deal.
	AcceptTimeout time.Duration

	// How long the buyer has to fund the deal on-chain after accepting.
	TxidTimeout time.Duration

	// How long a funded deal may wait for confirmations.
	ConfirmationTimeout time.Duration

	// How long the buyer has to submit a Lightning invoice once confirmed.
	InvoiceTimeout time.Duration

	// How long the seller has to provide a payout address.
	AddressTimeout time.Duration

	// How long the seller has to pay the Lightning invoice.
	PaymentTimeout time.Duration

	// Ceiling on background privacy wrap retries before the deal cancels.
	PrivacyRetryCeiling time.Duration

	// Number of confirmations a deposit needs before the deal advances.
	RequiredConfirmations int32

	// Ready deals are paid out once the ready set reaches this size.
	BatchMinSize int

	// Ready deals are paid out once the oldest one reaches this age,
	// measured from deal creation.
	BatchMaxAge time.Duration

	// Optional ops report mailed on every flushed payout group.
	PayoutEmail *Email
}

// Load builds the Config from environment variables, applying defaults and
// validating everything needed at startup.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseUrl:      os.Getenv("DATABASE_URL"),
		AutoMigrateDb:    os.Getenv("AUTO_MIGRATE_DB") == "true",
		LndRestBaseUrl:   os.Getenv("LND_REST_BASE_URL"),
		LndMacaroon:      os.Getenv("LND_MACAROON"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.LndRestBaseUrl == "" {
		return nil, fmt.Errorf("LND_REST_BASE_URL is required")
	}
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	network, err := networkParams(os.Getenv("NETWORK"))
	if err != nil {
		return nil, err
	}
	cfg.Network = network

	cfg.MempoolApiBaseUrl = envString("MEMPOOL_API_BASE_URL", "https://blockstream.info/api/")
	cfg.LnproxyBaseUrl = envString("LNPROXY_BASE_URL", "https://lnproxy.org")

	cfg.SwapAmounts = []int64{10_000, 100_000}
	if amounts := os.Getenv("SWAP_AMOUNTS"); amounts != "" {
		if err := json.Unmarshal([]byte(amounts), &cfg.SwapAmounts); err != nil {
			return nil, fmt.Errorf("invalid SWAP_AMOUNTS: %w", err)
		}
	}
	if len(cfg.SwapAmounts) == 0 {
		return nil, fmt.Errorf("SWAP_AMOUNTS must list at least one amount")
	}

	cfg.DepositAddresses, err = depositAddresses(os.Getenv("DEPOSIT_ADDRESSES"), cfg.SwapAmounts, network)
	if err != nil {
		return nil, err
	}

	if cfg.OfferVisibility, err = envDuration("OFFER_VISIBILITY", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AcceptTimeout, err = envDuration("ACCEPT_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TxidTimeout, err = envDuration("TXID_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ConfirmationTimeout, err = envDuration("CONFIRMATION_TIMEOUT", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.InvoiceTimeout, err = envDuration("INVOICE_TIMEOUT", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AddressTimeout, err = envDuration("ADDRESS_TIMEOUT", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PaymentTimeout, err = envDuration("PAYMENT_TIMEOUT", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PrivacyRetryCeiling, err = envDuration("PRIVACY_RETRY_CEILING", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BatchMaxAge, err = envDuration("BATCH_MAX_AGE", time.Hour); err != nil {
		return nil, err
	}

	requiredConfirmations, err := envInt("REQUIRED_CONFIRMATIONS", 3)
	if err != nil {
		return nil, err
	}
	cfg.RequiredConfirmations = int32(requiredConfirmations)

	batchMinSize, err := envInt("BATCH_MIN_SIZE", 3)
	if err != nil {
		return nil, err
	}
	cfg.BatchMinSize = batchMinSize

	cfg.PayoutEmail, err = loadPayoutEmailSettings()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func networkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "", "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	}
	return nil, fmt.Errorf("invalid NETWORK %q", name)
}

func depositAddresses(raw string, amounts []int64, network *chaincfg.Params) (map[int64]string, error) {
	if raw == "" {
		return nil, fmt.Errorf("DEPOSIT_ADDRESSES is required")
	}

	var byAmount map[string]string
	if err := json.Unmarshal([]byte(raw), &byAmount); err != nil {
		return nil, fmt.Errorf("invalid DEPOSIT_ADDRESSES: %w", err)
	}

	addresses := make(map[int64]string, len(byAmount))
	for amountStr, address := range byAmount {
		amount, err := strconv.ParseInt(amountStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DEPOSIT_ADDRESSES amount %q: %w", amountStr, err)
		}

		decoded, err := btcutil.DecodeAddress(address, network)
		if err != nil {
			return nil, fmt.Errorf("invalid deposit address %q for amount %d: %w", address, amount, err)
		}
		if !decoded.IsForNet(network) {
			return nil, fmt.Errorf("deposit address %q is not valid for network %s", address, network.Name)
		}

		addresses[amount] = address
	}

	for _, amount := range amounts {
		if _, ok := addresses[amount]; !ok {
			return nil, fmt.Errorf("DEPOSIT_ADDRESSES is missing an address for amount %d", amount)
		}
	}

	return addresses, nil
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return i, nil
}
