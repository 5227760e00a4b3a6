package swap

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/satswap/swapd/chain"
	"github.com/satswap/swapd/config"
	"github.com/satswap/swapd/lightning"
	"github.com/satswap/swapd/lnproxy"
	"golang.org/x/sync/singleflight"
)

var wrapAttempts = 3
var wrapAttemptInterval time.Duration = time.Second * 30
var wrapBudget time.Duration = time.Minute * 5

var invoicePrefixes = []string{"lnbc", "lntb", "lnbcrt"}

// Notifier delivers a message to a user. Implementations retry internally;
// a returned error means delivery ultimately failed.
type Notifier interface {
	Notify(ctx context.Context, user int64, text string) error
}

// Service owns every synchronous deal transition. Each operation validates
// the caller and the deal's current status before any side effect, writes
// conditionally, and treats notifications as best effort. Concurrent
// duplicates of the same operation on the same deal are collapsed.
type Service struct {
	cfg       *config.Config
	offers    OfferStore
	deals     DealStore
	chain     chain.Verifier
	lightning lightning.Verifier
	wrapper   lnproxy.Wrapper
	notifier  Notifier
	group     singleflight.Group
}

func NewService(
	cfg *config.Config,
	offers OfferStore,
	deals DealStore,
	chainVerifier chain.Verifier,
	lightningVerifier lightning.Verifier,
	wrapper lnproxy.Wrapper,
	notifier Notifier,
) *Service {
	return &Service{
		cfg:       cfg,
		offers:    offers,
		deals:     deals,
		chain:     chainVerifier,
		lightning: lightningVerifier,
		wrapper:   wrapper,
		notifier:  notifier,
	}
}

// CreateOffer publishes a new offer for one of the configured swap amounts.
func (s *Service) CreateOffer(
	ctx context.Context,
	creator int64,
	kind OfferKind,
	amountSat int64,
) (*Offer, error) {
	if kind != OfferKindSellLightning && kind != OfferKindBuyLightning {
		return nil, fmt.Errorf("%w: unknown offer kind %q", ErrInvalidInput, kind)
	}
	if !s.validAmount(amountSat) {
		return nil, fmt.Errorf("%w: amount %d is not offered, choose one of %v", ErrInvalidInput, amountSat, s.cfg.SwapAmounts)
	}

	now := time.Now()
	offer := &Offer{
		Creator:      creator,
		Kind:         kind,
		AmountSat:    amountSat,
		Status:       OfferActive,
		VisibleUntil: now.Add(s.cfg.OfferVisibility),
		CreatedAt:    now,
	}

	id, err := s.offers.CreateOffer(ctx, offer)
	if err != nil {
		return nil, fmt.Errorf("CreateOffer(%d, %s, %d): %w", creator, kind, amountSat, err)
	}

	offer.Id = id
	return offer, nil
}

// Take locks an active offer to the taker and opens the deal in pending,
// waiting on the buyer's accept.
func (s *Service) Take(ctx context.Context, offerId int64, taker int64) (*Deal, error) {
	offer, err := s.offers.GetOffer(ctx, offerId)
	if err != nil {
		return nil, err
	}
	if offer.Creator == taker {
		return nil, fmt.Errorf("%w: cannot take your own offer", ErrWrongParty)
	}

	now := time.Now()
	if offer.Status != OfferActive || now.After(offer.VisibleUntil) {
		return nil, ErrOfferNotAvailable
	}

	taken, err := s.offers.MarkTaken(ctx, offerId, taker, now)
	if err != nil {
		return nil, fmt.Errorf("MarkTaken(%d): %w", offerId, err)
	}
	if !taken {
		return nil, ErrOfferNotAvailable
	}

	seller, buyer := offer.Creator, taker
	if offer.Kind == OfferKindBuyLightning {
		seller, buyer = taker, offer.Creator
	}

	deadline := now.Add(s.cfg.AcceptTimeout)
	deal := &Deal{
		OfferId:       offerId,
		Seller:        seller,
		Buyer:         buyer,
		AmountSat:     offer.AmountSat,
		Status:        StatusPending,
		Stage:         StageAcceptRequired,
		StageDeadline: &deadline,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	deal.Id, err = s.deals.CreateDeal(ctx, deal)
	if err != nil {
		if rerr := s.offers.Reactivate(ctx, offerId, time.Now()); rerr != nil {
			log.Printf("Reactivate(%d) after failed deal creation: %v", offerId, rerr)
		}
		return nil, fmt.Errorf("CreateDeal(offer %d): %w", offerId, err)
	}

	s.notify(ctx, deal.Buyer, fmt.Sprintf("Deal %d started for %d sats. Accept or reject within %v.", deal.Id, deal.AmountSat, s.cfg.AcceptTimeout))
	s.notify(ctx, deal.Seller, fmt.Sprintf("Your offer %d was taken. Deal %d is waiting for the buyer to accept.", offerId, deal.Id))
	return deal, nil
}

// Accept confirms a pending deal and hands the buyer the deposit address.
func (s *Service) Accept(ctx context.Context, dealId int64, caller int64) (*Deal, error) {
	return s.withDeal("accept", dealId, func() (*Deal, error) {
		deal, err := s.deals.GetDeal(ctx, dealId)
		if err != nil {
			return nil, err
		}
		if deal.Buyer != caller {
			return nil, fmt.Errorf("%w: only the buyer can accept deal %d", ErrWrongParty, dealId)
		}
		if deal.Status != StatusPending {
			return nil, fmt.Errorf("%w: deal %d is %s", ErrAlreadyProcessed, dealId, deal.Status)
		}

		deadline := time.Now().Add(s.cfg.TxidTimeout)
		applied, err := s.deals.MarkAccepted(ctx, dealId, deadline)
		if err != nil {
			return nil, fmt.Errorf("MarkAccepted(%d): %w", dealId, err)
		}
		if !applied {
			return nil, fmt.Errorf("%w: deal %d moved concurrently", ErrAlreadyProcessed, dealId)
		}

		deal.Status = StatusAccepted
		deal.Stage = StageTxidRequired
		deal.StageDeadline = &deadline

		s.notify(ctx, deal.Buyer, fmt.Sprintf(
			"Deal %d accepted. Send exactly %d sats to %s and submit the txid within %v.",
			dealId, deal.AmountSat, s.depositAddress(deal.AmountSat), s.cfg.TxidTimeout))
		s.notify(ctx, deal.Seller, fmt.Sprintf("Deal %d was accepted by the buyer.", dealId))
		return deal, nil
	})
}

// Reject cancels a pending deal and puts the offer back in the channel.
func (s *Service) Reject(ctx context.Context, dealId int64, caller int64) error {
	_, err := s.withDeal("reject", dealId, func() (*Deal, error) {
		deal, err := s.deals.GetDeal(ctx, dealId)
		if err != nil {
			return nil, err
		}
		if deal.Buyer != caller {
			return nil, fmt.Errorf("%w: only the buyer can reject deal %d", ErrWrongParty, dealId)
		}
		if deal.Status != StatusPending {
			return nil, fmt.Errorf("%w: deal %d is %s", ErrAlreadyProcessed, dealId, deal.Status)
		}

		cancelled, err := s.deals.MarkCancelled(ctx, dealId, ReasonUserRejected, StatusPending)
		if err != nil {
			return nil, fmt.Errorf("MarkCancelled(%d): %w", dealId, err)
		}
		if !cancelled {
			return nil, fmt.Errorf("%w: deal %d moved concurrently", ErrAlreadyProcessed, dealId)
		}

		if err := s.offers.Reactivate(ctx, deal.OfferId, time.Now()); err != nil {
			log.Printf("Reactivate(%d) after reject: %v", deal.OfferId, err)
		}

		s.notify(ctx, deal.Seller, fmt.Sprintf("Deal %d was rejected. Your offer is visible again.", dealId))
		return deal, nil
	})
	return err
}

// SubmitTxid verifies the buyer's deposit transaction against the chain and
// moves the deal into the confirmation wait. Resubmitting the same txid is a
// no-op; a different txid is re-verified and replaces the old one.
func (s *Service) SubmitTxid(ctx context.Context, caller int64, txid string) (*Deal, error) {
	txid = strings.TrimSpace(txid)
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return nil, fmt.Errorf("%w: malformed txid", ErrInvalidInput)
	}

	resolved, err := s.deals.BuyerDealInStatus(ctx, caller, StatusAccepted, StatusBitcoinSent)
	if err != nil {
		return nil, s.mapResolveErr(err)
	}

	return s.withDeal("submit_txid", resolved.Id, func() (*Deal, error) {
		deal, err := s.deals.GetDeal(ctx, resolved.Id)
		if err != nil {
			return nil, err
		}
		if deal.Status != StatusAccepted && deal.Status != StatusBitcoinSent {
			return nil, fmt.Errorf("%w: deal %d is %s", ErrAlreadyProcessed, deal.Id, deal.Status)
		}
		if deal.Status == StatusBitcoinSent && deal.Txid != nil && *deal.Txid == txid {
			return deal, nil
		}

		address := s.depositAddress(deal.AmountSat)
		lookup, err := s.chain.LookupPayment(ctx, address, deal.AmountSat, txid)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		if !lookup.Found {
			return nil, fmt.Errorf("%w: no payment of %d sats to %s found in tx %s",
				ErrVerificationMismatch, deal.AmountSat, address, txid)
		}

		deadline := time.Now().Add(s.cfg.ConfirmationTimeout)
		applied, err := s.deals.MarkBitcoinSent(ctx, deal.Id, txid, lookup.Confirmations, deadline)
		if err != nil {
			return nil, fmt.Errorf("MarkBitcoinSent(%d): %w", deal.Id, err)
		}
		if !applied {
			return nil, fmt.Errorf("%w: deal %d moved concurrently", ErrAlreadyProcessed, deal.Id)
		}

		deal.Status = StatusBitcoinSent
		deal.Stage = StageConfirmingBitcoin
		deal.StageDeadline = &deadline
		deal.Txid = &txid
		deal.Confirmations = lookup.Confirmations

		s.notify(ctx, deal.Buyer, fmt.Sprintf(
			"Deal %d: deposit verified (%d confirmations). It advances at %d confirmations.",
			deal.Id, lookup.Confirmations, s.cfg.RequiredConfirmations))
		s.notify(ctx, deal.Seller, fmt.Sprintf("Deal %d was funded on-chain. Waiting for confirmations.", deal.Id))
		return deal, nil
	})
}

// SubmitInvoice registers the buyer's Lightning invoice once the deposit is
// confirmed and negotiates privacy wrapping before the seller ever sees it.
func (s *Service) SubmitInvoice(ctx context.Context, caller int64, invoice string) (*Deal, error) {
	invoice = strings.ToLower(strings.TrimSpace(invoice))
	if !validInvoicePrefix(invoice) {
		return nil, fmt.Errorf("%w: not a bolt11 invoice", ErrInvalidInput)
	}

	resolved, err := s.deals.BuyerDealInStatus(ctx, caller, StatusBitcoinConfirmed)
	if err != nil {
		return nil, s.mapResolveErr(err)
	}

	return s.withDeal("submit_invoice", resolved.Id, func() (*Deal, error) {
		deal, err := s.deals.GetDeal(ctx, resolved.Id)
		if err != nil {
			return nil, err
		}
		if deal.Status != StatusBitcoinConfirmed {
			return nil, fmt.Errorf("%w: deal %d is %s", ErrAlreadyProcessed, deal.Id, deal.Status)
		}

		paymentHash, err := s.lightning.DecodeInvoice(ctx, invoice)
		if err != nil {
			log.Printf("DecodeInvoice for deal %d failed, using placeholder: %v", deal.Id, err)
			paymentHash = PlaceholderPaymentHash
		}

		wrapped, err := s.wrapWithRetries(ctx, invoice)
		if err != nil {
			log.Printf("privacy wrap for deal %d exhausted: %v", deal.Id, err)
			applied, err := s.deals.MarkAwaitingPrivacyDecision(ctx, deal.Id, invoice, paymentHash)
			if err != nil {
				return nil, fmt.Errorf("MarkAwaitingPrivacyDecision(%d): %w", deal.Id, err)
			}
			if !applied {
				return nil, fmt.Errorf("%w: deal %d moved concurrently", ErrAlreadyProcessed, deal.Id)
			}

			deal.Status = StatusAwaitingPrivacyDecision
			deal.Invoice = &invoice
			deal.PaymentHash = &paymentHash

			s.notify(ctx, deal.Buyer, fmt.Sprintf(
				"Deal %d: the invoice could not be wrapped for privacy. Reveal the original invoice to proceed now, or retry privacy for up to %v.",
				deal.Id, s.cfg.PrivacyRetryCeiling))
			return deal, nil
		}

		return s.advanceWithInvoice(ctx, deal, wrapped, paymentHash, StatusBitcoinConfirmed)
	})
}

// Reveal proceeds with the buyer's original invoice after a failed privacy
// negotiation. Valid both while the decision is pending and during privacy
// retries.
func (s *Service) Reveal(ctx context.Context, dealId int64, caller int64) (*Deal, error) {
	return s.withDeal("reveal", dealId, func() (*Deal, error) {
		deal, err := s.deals.GetDeal(ctx, dealId)
		if err != nil {
			return nil, err
		}
		if deal.Buyer != caller {
			return nil, fmt.Errorf("%w: only the buyer can reveal for deal %d", ErrWrongParty, dealId)
		}
		if deal.Status != StatusAwaitingPrivacyDecision && deal.Status != StatusPrivacyRetry {
			return nil, fmt.Errorf("%w: deal %d is %s", ErrAlreadyProcessed, dealId, deal.Status)
		}
		if deal.Invoice == nil {
			return nil, fmt.Errorf("deal %d has no stored invoice to reveal", dealId)
		}

		paymentHash := PlaceholderPaymentHash
		if deal.PaymentHash != nil {
			paymentHash = *deal.PaymentHash
		}

		return s.advanceWithInvoice(ctx, deal, *deal.Invoice, paymentHash,
			StatusAwaitingPrivacyDecision, StatusPrivacyRetry)
	})
}

// RetryPrivacy opts the buyer into bounded background wrap retries instead of
// revealing the original invoice.
func (s *Service) RetryPrivacy(ctx context.Context, dealId int64, caller int64) (*Deal, error) {
	return s.withDeal("retry_privacy", dealId, func() (*Deal, error) {
		deal, err := s.deals.GetDeal(ctx, dealId)
		if err != nil {
			return nil, err
		}
		if deal.Buyer != caller {
			return nil, fmt.Errorf("%w: only the buyer can choose privacy retries for deal %d", ErrWrongParty, dealId)
		}
		if deal.Status != StatusAwaitingPrivacyDecision {
			return nil, fmt.Errorf("%w: deal %d is %s", ErrAlreadyProcessed, dealId, deal.Status)
		}

		deadline := time.Now().Add(s.cfg.PrivacyRetryCeiling)
		applied, err := s.deals.MarkPrivacyRetry(ctx, dealId, deadline)
		if err != nil {
			return nil, fmt.Errorf("MarkPrivacyRetry(%d): %w", dealId, err)
		}
		if !applied {
			return nil, fmt.Errorf("%w: deal %d moved concurrently", ErrAlreadyProcessed, dealId)
		}

		deal.Status = StatusPrivacyRetry
		deal.Stage = StagePrivacyRetry
		deal.StageDeadline = &deadline

		s.notify(ctx, deal.Buyer, fmt.Sprintf(
			"Deal %d: privacy retries scheduled for up to %v. You can reveal the original invoice at any time.",
			dealId, s.cfg.PrivacyRetryCeiling))
		return deal, nil
	})
}

// RetryWrap runs one wrap cycle for a privacy_retry deal on behalf of the
// background monitor. Returns true when the deal advanced. A buyer revealing
// mid-cycle wins: the conditional write then misses and nothing happens.
func (s *Service) RetryWrap(ctx context.Context, deal *Deal) (bool, error) {
	if deal.Status != StatusPrivacyRetry || deal.Invoice == nil {
		return false, nil
	}

	wrapped, err := s.wrapWithRetries(ctx, *deal.Invoice)
	if err != nil {
		return false, err
	}

	paymentHash := PlaceholderPaymentHash
	if deal.PaymentHash != nil {
		paymentHash = *deal.PaymentHash
	}

	deadline := time.Now().Add(s.cfg.PaymentTimeout)
	applied, err := s.deals.MarkInvoiceReceived(ctx, deal.Id, wrapped, paymentHash, deadline, StatusPrivacyRetry)
	if err != nil {
		return false, fmt.Errorf("MarkInvoiceReceived(%d): %w", deal.Id, err)
	}
	if !applied {
		return false, nil
	}

	s.notify(ctx, deal.Buyer, fmt.Sprintf("Deal %d: privacy wrap succeeded. Your invoice stays hidden.", deal.Id))
	if err := s.CheckReady(ctx, deal.Id); err != nil {
		log.Printf("CheckReady(%d) after wrap retry: %v", deal.Id, err)
	}

	return true, nil
}

// SubmitAddress stores the seller's payout address and reveals the invoice to
// pay. The deal then waits on the Lightning payment.
func (s *Service) SubmitAddress(ctx context.Context, caller int64, address string) (*Deal, error) {
	address = strings.TrimSpace(address)
	decoded, err := btcutil.DecodeAddress(address, s.cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bitcoin address", ErrInvalidInput)
	}
	if !decoded.IsForNet(s.cfg.Network) {
		return nil, fmt.Errorf("%w: address is not valid for %s", ErrInvalidInput, s.cfg.Network.Name)
	}

	resolved, err := s.deals.SellerDealInStatus(ctx, caller, StatusInvoiceReceived, StatusAwaitingAddress)
	if err != nil {
		return nil, s.mapResolveErr(err)
	}

	return s.withDeal("submit_address", resolved.Id, func() (*Deal, error) {
		deal, err := s.deals.GetDeal(ctx, resolved.Id)
		if err != nil {
			return nil, err
		}
		if deal.Status != StatusInvoiceReceived && deal.Status != StatusAwaitingAddress {
			return nil, fmt.Errorf("%w: deal %d is %s", ErrAlreadyProcessed, deal.Id, deal.Status)
		}
		if deal.PayoutAddress != nil {
			return nil, fmt.Errorf("%w: deal %d already has a payout address", ErrAlreadyProcessed, deal.Id)
		}
		if deal.Invoice == nil {
			return nil, fmt.Errorf("deal %d has no invoice to reveal", deal.Id)
		}

		deadline := time.Now().Add(s.cfg.PaymentTimeout)
		applied, err := s.deals.MarkPaymentPending(ctx, deal.Id, address, deadline)
		if err != nil {
			return nil, fmt.Errorf("MarkPaymentPending(%d): %w", deal.Id, err)
		}
		if !applied {
			return nil, fmt.Errorf("%w: deal %d moved concurrently", ErrAlreadyProcessed, deal.Id)
		}

		deal.Status = StatusPaymentPending
		deal.Stage = StagePaymentRequired
		deal.StageDeadline = &deadline
		deal.PayoutAddress = &address

		s.notify(ctx, deal.Seller, fmt.Sprintf(
			"Deal %d: payout address recorded. Pay this invoice within %v to receive the on-chain payout:\n%s",
			deal.Id, s.cfg.PaymentTimeout, *deal.Invoice))
		s.notify(ctx, deal.Buyer, fmt.Sprintf("Deal %d: the seller is paying your invoice now.", deal.Id))
		return deal, nil
	})
}

// CheckReady advances a fully prepared deal to the seller address request.
// Safe to call repeatedly from any path: the conditional write fires at most
// once, so the seller is notified exactly once.
func (s *Service) CheckReady(ctx context.Context, dealId int64) error {
	deal, err := s.deals.GetDeal(ctx, dealId)
	if err != nil {
		return err
	}

	if deal.Status != StatusInvoiceReceived {
		return nil
	}
	if deal.Confirmations < s.cfg.RequiredConfirmations {
		return nil
	}
	if deal.Invoice == nil || *deal.Invoice == "" {
		return nil
	}
	if deal.PayoutAddress != nil {
		return nil
	}

	applied, err := s.deals.MarkAwaitingAddress(ctx, dealId, time.Now().Add(s.cfg.AddressTimeout))
	if err != nil {
		return fmt.Errorf("MarkAwaitingAddress(%d): %w", dealId, err)
	}
	if !applied {
		return nil
	}

	s.notify(ctx, deal.Seller, fmt.Sprintf(
		"Deal %d: provide a payout address for %d sats within %v.",
		dealId, deal.AmountSat, s.cfg.AddressTimeout))
	return nil
}

// advanceWithInvoice applies the common invoice-accepted transition: store
// the invoice the seller will see, open the payment window, then evaluate
// readiness.
func (s *Service) advanceWithInvoice(
	ctx context.Context,
	deal *Deal,
	invoice string,
	paymentHash string,
	from ...Status,
) (*Deal, error) {
	deadline := time.Now().Add(s.cfg.PaymentTimeout)
	applied, err := s.deals.MarkInvoiceReceived(ctx, deal.Id, invoice, paymentHash, deadline, from...)
	if err != nil {
		return nil, fmt.Errorf("MarkInvoiceReceived(%d): %w", deal.Id, err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: deal %d moved concurrently", ErrAlreadyProcessed, deal.Id)
	}

	deal.Status = StatusInvoiceReceived
	deal.Stage = StagePaymentRequired
	deal.StageDeadline = &deadline
	deal.Invoice = &invoice
	deal.PaymentHash = &paymentHash

	s.notify(ctx, deal.Buyer, fmt.Sprintf("Deal %d: invoice registered.", deal.Id))
	if err := s.CheckReady(ctx, deal.Id); err != nil {
		log.Printf("CheckReady(%d): %v", deal.Id, err)
	}

	refreshed, err := s.deals.GetDeal(ctx, deal.Id)
	if err != nil {
		return deal, nil
	}
	return refreshed, nil
}

// wrapWithRetries attempts the privacy wrap a bounded number of times within
// a fixed budget, spacing the attempts apart.
func (s *Service) wrapWithRetries(ctx context.Context, invoice string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, wrapBudget)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= wrapAttempts; attempt++ {
		wrapped, err := s.wrapper.WrapInvoice(ctx, invoice)
		if err == nil {
			return wrapped, nil
		}

		lastErr = err
		log.Printf("wrap attempt %d/%d failed: %v", attempt, wrapAttempts, err)

		if attempt == wrapAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("wrap budget exhausted: %w", lastErr)
		case <-time.After(wrapAttemptInterval):
		}
	}

	return "", lastErr
}

// withDeal collapses concurrent duplicates of one operation on one deal into
// a single execution.
func (s *Service) withDeal(op string, dealId int64, fn func() (*Deal, error)) (*Deal, error) {
	v, err, _ := s.group.Do(fmt.Sprintf("%s-%d", op, dealId), func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Deal), nil
}

func (s *Service) notify(ctx context.Context, user int64, text string) {
	if err := s.notifier.Notify(ctx, user, text); err != nil {
		log.Printf("notification to %d dropped: %v", user, err)
	}
}

func (s *Service) depositAddress(amountSat int64) string {
	return s.cfg.DepositAddresses[amountSat]
}

func (s *Service) validAmount(amountSat int64) bool {
	for _, amount := range s.cfg.SwapAmounts {
		if amount == amountSat {
			return true
		}
	}
	return false
}

func (s *Service) mapResolveErr(err error) error {
	if err == ErrNotFound {
		return ErrNoActiveDeal
	}
	return err
}

func validInvoicePrefix(invoice string) bool {
	for _, prefix := range invoicePrefixes {
		if strings.HasPrefix(invoice, prefix) {
			return true
		}
	}
	return false
}
