package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/satswap/swapd/chain"
	"github.com/satswap/swapd/swap"
)

var confirmationPollInterval time.Duration = time.Minute * 10

type readyChecker interface {
	CheckReady(ctx context.Context, dealId int64) error
}

// ConfirmationPoller tracks deposit transactions until they reach the
// required confirmation depth. It only ever advances deals; expiry of the
// confirmation window belongs to the TimeoutWatcher, so the two loops can
// never resolve the same row differently.
type ConfirmationPoller struct {
	deals         swap.DealStore
	chain         chain.Verifier
	notifier      swap.Notifier
	ready         readyChecker
	required      int32
	invoiceWindow time.Duration
}

func NewConfirmationPoller(
	deals swap.DealStore,
	chainVerifier chain.Verifier,
	notifier swap.Notifier,
	ready readyChecker,
	required int32,
	invoiceWindow time.Duration,
) *ConfirmationPoller {
	return &ConfirmationPoller{
		deals:         deals,
		chain:         chainVerifier,
		notifier:      notifier,
		ready:         ready,
		required:      required,
		invoiceWindow: invoiceWindow,
	}
}

func (p *ConfirmationPoller) Start(ctx context.Context) {
	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(confirmationPollInterval):
		}

		p.pollOnce(ctx)
	}
}

func (p *ConfirmationPoller) pollOnce(ctx context.Context) {
	deals, err := p.deals.ListConfirming(ctx, time.Now())
	if err != nil {
		log.Printf("pollOnce() - deals.ListConfirming error: %v", err)
		return
	}

	for _, deal := range deals {
		if err := p.pollDeal(ctx, deal); err != nil {
			log.Printf("pollOnce() - deal %d: %v", deal.Id, err)
		}
	}
}

func (p *ConfirmationPoller) pollDeal(ctx context.Context, deal *swap.Deal) error {
	if deal.Txid == nil {
		return nil
	}

	confirmations, err := p.chain.GetConfirmations(ctx, *deal.Txid)
	if err != nil {
		return err
	}

	if confirmations < p.required {
		if confirmations != deal.Confirmations {
			if err := p.deals.UpdateConfirmations(ctx, deal.Id, confirmations); err != nil {
				return err
			}
		}
		return nil
	}

	deadline := time.Now().Add(p.invoiceWindow)
	applied, err := p.deals.MarkBitcoinConfirmed(ctx, deal.Id, confirmations, deadline)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	log.Printf("deal %d confirmed at %d confirmations", deal.Id, confirmations)
	p.notify(ctx, deal.Buyer, fmt.Sprintf(
		"Deal %d: your deposit is confirmed. Submit a Lightning invoice for %d sats within %v.",
		deal.Id, deal.AmountSat, p.invoiceWindow))

	if err := p.ready.CheckReady(ctx, deal.Id); err != nil {
		log.Printf("CheckReady(%d) after confirmation: %v", deal.Id, err)
	}
	return nil
}

func (p *ConfirmationPoller) notify(ctx context.Context, user int64, text string) {
	if err := p.notifier.Notify(ctx, user, text); err != nil {
		log.Printf("notification to %d dropped: %v", user, err)
	}
}
