package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/satswap/swapd/lightning"
	"github.com/satswap/swapd/swap"
)

var settlementPollInterval time.Duration = time.Second * 30

// SettlementPoller watches payment_pending deals for Lightning settlement.
// Only an explicit settled result advances a deal; a gateway error or an
// unsettled invoice leaves the row for the next pass, and expiry of the
// payment window belongs to the TimeoutWatcher.
type SettlementPoller struct {
	deals     swap.DealStore
	lightning lightning.Verifier
	notifier  swap.Notifier
}

func NewSettlementPoller(
	deals swap.DealStore,
	lightningVerifier lightning.Verifier,
	notifier swap.Notifier,
) *SettlementPoller {
	return &SettlementPoller{
		deals:     deals,
		lightning: lightningVerifier,
		notifier:  notifier,
	}
}

func (p *SettlementPoller) Start(ctx context.Context) {
	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(settlementPollInterval):
		}

		p.pollOnce(ctx)
	}
}

func (p *SettlementPoller) pollOnce(ctx context.Context) {
	deals, err := p.deals.ListAwaitingSettlement(ctx)
	if err != nil {
		log.Printf("pollOnce() - deals.ListAwaitingSettlement error: %v", err)
		return
	}

	for _, deal := range deals {
		if err := p.pollDeal(ctx, deal); err != nil {
			log.Printf("pollOnce() - deal %d: %v", deal.Id, err)
		}
	}
}

func (p *SettlementPoller) pollDeal(ctx context.Context, deal *swap.Deal) error {
	if deal.PaymentHash == nil || *deal.PaymentHash == swap.PlaceholderPaymentHash {
		return nil
	}

	settled, err := p.lightning.CheckSettled(ctx, *deal.PaymentHash)
	if err != nil {
		return err
	}
	if !settled {
		return nil
	}

	applied, err := p.deals.MarkReadyForBatch(ctx, deal.Id)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	log.Printf("deal %d settled over Lightning, queued for batch payout", deal.Id)
	p.notify(ctx, deal.Buyer, fmt.Sprintf("Deal %d: your invoice was paid. The swap is complete on your side.", deal.Id))
	p.notify(ctx, deal.Seller, fmt.Sprintf(
		"Deal %d: Lightning payment confirmed. Your on-chain payout of %d sats is queued for the next batch.",
		deal.Id, deal.AmountSat))
	return nil
}

func (p *SettlementPoller) notify(ctx context.Context, user int64, text string) {
	if err := p.notifier.Notify(ctx, user, text); err != nil {
		log.Printf("notification to %d dropped: %v", user, err)
	}
}
