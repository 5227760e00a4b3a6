package swap

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type OfferStore interface {
	CreateOffer(ctx context.Context, offer *Offer) (int64, error)
	GetOffer(ctx context.Context, id int64) (*Offer, error)

	// MarkTaken conditionally flips an active offer to taken. Returns false
	// when the offer was no longer active.
	MarkTaken(ctx context.Context, id int64, takenBy int64, takenAt time.Time) (bool, error)

	// Reactivate returns a taken offer to the active state with its original
	// visibility deadline, or marks it expired when that deadline has passed.
	Reactivate(ctx context.Context, id int64, now time.Time) error

	// ExpireVisible marks active offers whose visibility window has elapsed
	// as expired. Returns the number of offers swept.
	ExpireVisible(ctx context.Context, now time.Time) (int64, error)

	ListUserOffers(ctx context.Context, creator int64) ([]*Offer, error)
}

// DealStore persists deals. Every MarkX method is a conditional write guarded
// by the expected prior status; the bool result reports whether the row was
// actually moved. A false result means another handler or loop got there
// first and the caller must not assume the transition happened.
type DealStore interface {
	CreateDeal(ctx context.Context, deal *Deal) (int64, error)
	GetDeal(ctx context.Context, id int64) (*Deal, error)

	// BuyerDealInStatus resolves the buyer's most recent deal in one of the
	// given statuses. Returns ErrNotFound when there is none.
	BuyerDealInStatus(ctx context.Context, buyer int64, statuses ...Status) (*Deal, error)

	// SellerDealInStatus resolves the seller's most recent deal in one of the
	// given statuses. Returns ErrNotFound when there is none.
	SellerDealInStatus(ctx context.Context, seller int64, statuses ...Status) (*Deal, error)

	MarkAccepted(ctx context.Context, id int64, deadline time.Time) (bool, error)
	MarkBitcoinSent(ctx context.Context, id int64, txid string, confirmations int32, deadline time.Time) (bool, error)
	MarkBitcoinConfirmed(ctx context.Context, id int64, confirmations int32, deadline time.Time) (bool, error)
	MarkAwaitingPrivacyDecision(ctx context.Context, id int64, invoice string, paymentHash string) (bool, error)
	MarkPrivacyRetry(ctx context.Context, id int64, deadline time.Time) (bool, error)
	MarkInvoiceReceived(ctx context.Context, id int64, invoice string, paymentHash string, deadline time.Time, from ...Status) (bool, error)
	MarkAwaitingAddress(ctx context.Context, id int64, deadline time.Time) (bool, error)
	MarkPaymentPending(ctx context.Context, id int64, payoutAddress string, deadline time.Time) (bool, error)
	MarkReadyForBatch(ctx context.Context, id int64) (bool, error)

	// MarkCancelled cancels a deal with the given reason. When from statuses
	// are passed the write only applies from those; otherwise any
	// non-terminal status cancels.
	MarkCancelled(ctx context.Context, id int64, reason string, from ...Status) (bool, error)

	// MarkCompleted completes every listed deal still in ready_for_batch with
	// a shared payout reference. Returns the number of deals completed.
	MarkCompleted(ctx context.Context, ids []int64, payoutReference string, completedAt time.Time) (int64, error)

	// UpdateConfirmations persists an observed confirmation count while the
	// deal is still waiting on the chain.
	UpdateConfirmations(ctx context.Context, id int64, confirmations int32) error

	// RequeueDeadline pushes a non-terminal deal's stage deadline forward.
	RequeueDeadline(ctx context.Context, id int64, deadline time.Time) (bool, error)

	// ListExpiredStages returns non-terminal deals whose stage deadline has
	// elapsed, oldest deadline first.
	ListExpiredStages(ctx context.Context, now time.Time) ([]*Deal, error)

	// ListConfirming returns deals waiting on chain confirmations whose
	// deadline has not yet elapsed.
	ListConfirming(ctx context.Context, now time.Time) ([]*Deal, error)

	// ListAwaitingSettlement returns payment_pending deals with a known
	// payment hash.
	ListAwaitingSettlement(ctx context.Context) ([]*Deal, error)

	// ListPrivacyRetry returns privacy_retry deals whose ceiling has not yet
	// elapsed.
	ListPrivacyRetry(ctx context.Context, now time.Time) ([]*Deal, error)

	// ListReadyForBatch returns ready deals with a payout address, oldest
	// first.
	ListReadyForBatch(ctx context.Context) ([]*Deal, error)

	ListUserDeals(ctx context.Context, user int64) ([]*Deal, error)
}
