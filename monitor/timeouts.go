package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/satswap/swapd/swap"
)

var timeoutScanInterval time.Duration = time.Minute * 5

// TimeoutWatcher cancels deals whose stage deadline has elapsed and sweeps
// offers past their visibility window. Cancellation commits first; a failed
// notification never rolls it back, and one failing row never stops the scan.
type TimeoutWatcher struct {
	offers   swap.OfferStore
	deals    swap.DealStore
	notifier swap.Notifier
}

func NewTimeoutWatcher(
	offers swap.OfferStore,
	deals swap.DealStore,
	notifier swap.Notifier,
) *TimeoutWatcher {
	return &TimeoutWatcher{
		offers:   offers,
		deals:    deals,
		notifier: notifier,
	}
}

func (w *TimeoutWatcher) Start(ctx context.Context) {
	w.scanOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(timeoutScanInterval):
		}

		w.scanOnce(ctx)
	}
}

func (w *TimeoutWatcher) scanOnce(ctx context.Context) {
	now := time.Now()

	swept, err := w.offers.ExpireVisible(ctx, now)
	if err != nil {
		log.Printf("scanOnce() - offers.ExpireVisible error: %v", err)
	} else if swept > 0 {
		log.Printf("expired %d offers past their visibility window", swept)
	}

	expired, err := w.deals.ListExpiredStages(ctx, now)
	if err != nil {
		log.Printf("scanOnce() - deals.ListExpiredStages error: %v", err)
		return
	}

	for _, deal := range expired {
		if err := w.handleExpired(ctx, deal); err != nil {
			log.Printf("scanOnce() - deal %d (stage %s): %v", deal.Id, deal.Stage, err)
		}
	}
}

func (w *TimeoutWatcher) handleExpired(ctx context.Context, deal *swap.Deal) error {
	switch deal.Stage {
	case swap.StageAcceptRequired:
		return w.cancelAndReactivate(ctx, deal, swap.ReasonAcceptTimeout,
			"Deal %d expired: you did not accept in time.",
			"Deal %d expired: the buyer did not accept in time. The offer is visible again.")
	case swap.StageTxidRequired:
		return w.cancelAndReactivate(ctx, deal, swap.ReasonTxidTimeout,
			"Deal %d expired: you did not submit a deposit txid in time.",
			"Deal %d expired: no deposit transaction was submitted. The offer is visible again.")
	case swap.StageConfirmingBitcoin:
		return w.cancelConfirming(ctx, deal)
	case swap.StageInvoiceRequired:
		return w.cancel(ctx, deal, swap.ReasonInvoiceTimeout,
			"Deal %d expired: no Lightning invoice was provided in time.",
			"Deal %d expired: the buyer did not provide a Lightning invoice in time.")
	case swap.StageAddressRequired:
		return w.cancel(ctx, deal, swap.ReasonAddressTimeout,
			"Deal %d expired: the seller did not provide a payout address in time.",
			"Deal %d expired: you did not provide a payout address in time.")
	case swap.StagePaymentRequired:
		return w.cancel(ctx, deal, swap.ReasonPaymentTimeout,
			"Deal %d expired: the Lightning payment did not settle in time.",
			"Deal %d expired: the Lightning payment did not settle in time.")
	case swap.StagePrivacyRetry:
		return w.cancelPrivacyRetry(ctx, deal)
	default:
		return fmt.Errorf("no timeout handler for stage %q", deal.Stage)
	}
}

// cancel moves the deal to cancelled, guarded on the status observed in this
// scan so a concurrently advanced deal is skipped.
func (w *TimeoutWatcher) cancel(
	ctx context.Context,
	deal *swap.Deal,
	reason string,
	buyerText string,
	sellerText string,
) error {
	cancelled, err := w.deals.MarkCancelled(ctx, deal.Id, reason, deal.Status)
	if err != nil {
		return fmt.Errorf("MarkCancelled(%d, %s): %w", deal.Id, reason, err)
	}
	if !cancelled {
		return nil
	}

	log.Printf("deal %d cancelled: %s", deal.Id, reason)
	w.notify(ctx, deal.Buyer, fmt.Sprintf(buyerText, deal.Id))
	w.notify(ctx, deal.Seller, fmt.Sprintf(sellerText, deal.Id))
	return nil
}

func (w *TimeoutWatcher) cancelAndReactivate(
	ctx context.Context,
	deal *swap.Deal,
	reason string,
	buyerText string,
	sellerText string,
) error {
	cancelled, err := w.deals.MarkCancelled(ctx, deal.Id, reason, deal.Status)
	if err != nil {
		return fmt.Errorf("MarkCancelled(%d, %s): %w", deal.Id, reason, err)
	}
	if !cancelled {
		return nil
	}

	log.Printf("deal %d cancelled: %s", deal.Id, reason)
	if err := w.offers.Reactivate(ctx, deal.OfferId, time.Now()); err != nil {
		log.Printf("Reactivate(%d) after %s: %v", deal.OfferId, reason, err)
	}

	w.notify(ctx, deal.Buyer, fmt.Sprintf(buyerText, deal.Id))
	w.notify(ctx, deal.Seller, fmt.Sprintf(sellerText, deal.Id))
	return nil
}

// cancelConfirming handles the 48h confirmation ceiling. Funds are on chain,
// so the offer is not put back in the channel; the buyer is pointed at the
// transaction for the refund.
func (w *TimeoutWatcher) cancelConfirming(ctx context.Context, deal *swap.Deal) error {
	cancelled, err := w.deals.MarkCancelled(ctx, deal.Id, swap.ReasonConfirmationTimeout, deal.Status)
	if err != nil {
		return fmt.Errorf("MarkCancelled(%d, %s): %w", deal.Id, swap.ReasonConfirmationTimeout, err)
	}
	if !cancelled {
		return nil
	}

	txid := "unknown"
	if deal.Txid != nil {
		txid = *deal.Txid
	}

	log.Printf("deal %d cancelled: %s (txid %s)", deal.Id, swap.ReasonConfirmationTimeout, txid)
	w.notify(ctx, deal.Buyer, fmt.Sprintf(
		"Deal %d expired: transaction %s did not confirm in time. Expect a refund of %d sats for that transaction.",
		deal.Id, txid, deal.AmountSat))
	w.notify(ctx, deal.Seller, fmt.Sprintf(
		"Deal %d expired: the deposit transaction did not confirm in time.", deal.Id))
	return nil
}

// cancelPrivacyRetry handles the privacy retry ceiling. The buyer's deposit
// is confirmed on chain, so the buyer is told to expect a refund and the
// offer goes back in the channel.
func (w *TimeoutWatcher) cancelPrivacyRetry(ctx context.Context, deal *swap.Deal) error {
	cancelled, err := w.deals.MarkCancelled(ctx, deal.Id, swap.ReasonPrivacyTimeout, deal.Status)
	if err != nil {
		return fmt.Errorf("MarkCancelled(%d, %s): %w", deal.Id, swap.ReasonPrivacyTimeout, err)
	}
	if !cancelled {
		return nil
	}

	log.Printf("deal %d cancelled: %s", deal.Id, swap.ReasonPrivacyTimeout)
	if err := w.offers.Reactivate(ctx, deal.OfferId, time.Now()); err != nil {
		log.Printf("Reactivate(%d) after %s: %v", deal.OfferId, swap.ReasonPrivacyTimeout, err)
	}

	w.notify(ctx, deal.Buyer, fmt.Sprintf(
		"Deal %d expired: the invoice could not be wrapped within the retry window. Expect a refund of %d sats.",
		deal.Id, deal.AmountSat))
	w.notify(ctx, deal.Seller, fmt.Sprintf(
		"Deal %d expired during privacy negotiation. Your offer is visible again.", deal.Id))
	return nil
}

func (w *TimeoutWatcher) notify(ctx context.Context, user int64, text string) {
	if err := w.notifier.Notify(ctx, user, text); err != nil {
		log.Printf("notification to %d dropped: %v", user, err)
	}
}
