package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Email struct {
	To   []*string
	Cc   []*string
	From string
}

func addresses(a string) ([]*string, error) {
	var addr []*string
	err := json.Unmarshal([]byte(a), &addr)
	return addr, err
}

func loadPayoutEmailSettings() (*Email, error) {
	from := os.Getenv("PAYOUT_NOTIFICATION_FROM")
	to := os.Getenv("PAYOUT_NOTIFICATION_TO")
	cc := os.Getenv("PAYOUT_NOTIFICATION_CC")

	if from == "" && to == "" && cc == "" {
		return nil, nil
	}

	t, err := addresses(to)
	if err != nil {
		return nil, fmt.Errorf("invalid PAYOUT_NOTIFICATION_TO: %v", err)
	}

	var c []*string
	if cc != "" {
		c, err = addresses(cc)
		if err != nil {
			return nil, fmt.Errorf("invalid PAYOUT_NOTIFICATION_CC: %v", err)
		}
	}

	return &Email{
		To:   t,
		Cc:   c,
		From: from,
	}, nil
}
