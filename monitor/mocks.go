package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satswap/swapd/chain"
	"github.com/satswap/swapd/swap"
)

var ErrNotImplemented = errors.New("not implemented")

type cancelledCall struct {
	id     int64
	reason string
	from   []swap.Status
}

type confirmedCall struct {
	id            int64
	confirmations int32
	deadline      time.Time
}

type mockDealStore struct {
	expired           []*swap.Deal
	confirming        []*swap.Deal
	awaitingSettle    []*swap.Deal
	privacyRetry      []*swap.Deal
	listErr           error

	cancelResult    bool
	cancelled       []cancelledCall
	confirmedResult bool
	confirmed       []confirmedCall
	readyResult     bool
	readyForBatch   []int64
	updatedConfs    map[int64]int32
}

func newMockDealStore() *mockDealStore {
	return &mockDealStore{
		cancelResult:    true,
		confirmedResult: true,
		readyResult:     true,
		updatedConfs:    make(map[int64]int32),
	}
}

func (s *mockDealStore) ListExpiredStages(ctx context.Context, now time.Time) ([]*swap.Deal, error) {
	return s.expired, s.listErr
}

func (s *mockDealStore) ListConfirming(ctx context.Context, now time.Time) ([]*swap.Deal, error) {
	return s.confirming, s.listErr
}

func (s *mockDealStore) ListAwaitingSettlement(ctx context.Context) ([]*swap.Deal, error) {
	return s.awaitingSettle, s.listErr
}

func (s *mockDealStore) ListPrivacyRetry(ctx context.Context, now time.Time) ([]*swap.Deal, error) {
	return s.privacyRetry, s.listErr
}

func (s *mockDealStore) MarkCancelled(ctx context.Context, id int64, reason string, from ...swap.Status) (bool, error) {
	s.cancelled = append(s.cancelled, cancelledCall{id: id, reason: reason, from: from})
	return s.cancelResult, nil
}

func (s *mockDealStore) MarkBitcoinConfirmed(ctx context.Context, id int64, confirmations int32, deadline time.Time) (bool, error) {
	s.confirmed = append(s.confirmed, confirmedCall{id: id, confirmations: confirmations, deadline: deadline})
	return s.confirmedResult, nil
}

func (s *mockDealStore) MarkReadyForBatch(ctx context.Context, id int64) (bool, error) {
	s.readyForBatch = append(s.readyForBatch, id)
	return s.readyResult, nil
}

func (s *mockDealStore) UpdateConfirmations(ctx context.Context, id int64, confirmations int32) error {
	s.updatedConfs[id] = confirmations
	return nil
}

func (s *mockDealStore) CreateDeal(ctx context.Context, deal *swap.Deal) (int64, error) {
	return 0, ErrNotImplemented
}

func (s *mockDealStore) GetDeal(ctx context.Context, id int64) (*swap.Deal, error) {
	return nil, ErrNotImplemented
}

func (s *mockDealStore) BuyerDealInStatus(ctx context.Context, buyer int64, statuses ...swap.Status) (*swap.Deal, error) {
	return nil, ErrNotImplemented
}

func (s *mockDealStore) SellerDealInStatus(ctx context.Context, seller int64, statuses ...swap.Status) (*swap.Deal, error) {
	return nil, ErrNotImplemented
}

func (s *mockDealStore) MarkAccepted(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) MarkBitcoinSent(ctx context.Context, id int64, txid string, confirmations int32, deadline time.Time) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) MarkAwaitingPrivacyDecision(ctx context.Context, id int64, invoice string, paymentHash string) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) MarkPrivacyRetry(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) MarkInvoiceReceived(ctx context.Context, id int64, invoice string, paymentHash string, deadline time.Time, from ...swap.Status) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) MarkAwaitingAddress(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) MarkPaymentPending(ctx context.Context, id int64, payoutAddress string, deadline time.Time) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) MarkCompleted(ctx context.Context, ids []int64, payoutReference string, completedAt time.Time) (int64, error) {
	return 0, ErrNotImplemented
}

func (s *mockDealStore) RequeueDeadline(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) ListReadyForBatch(ctx context.Context) ([]*swap.Deal, error) {
	return nil, ErrNotImplemented
}

func (s *mockDealStore) ListUserDeals(ctx context.Context, user int64) ([]*swap.Deal, error) {
	return nil, ErrNotImplemented
}

type mockOfferStore struct {
	expireCount int64
	expireCalls int
	reactivated []int64
}

func (s *mockOfferStore) ExpireVisible(ctx context.Context, now time.Time) (int64, error) {
	s.expireCalls++
	return s.expireCount, nil
}

func (s *mockOfferStore) Reactivate(ctx context.Context, id int64, now time.Time) error {
	s.reactivated = append(s.reactivated, id)
	return nil
}

func (s *mockOfferStore) CreateOffer(ctx context.Context, offer *swap.Offer) (int64, error) {
	return 0, ErrNotImplemented
}

func (s *mockOfferStore) GetOffer(ctx context.Context, id int64) (*swap.Offer, error) {
	return nil, ErrNotImplemented
}

func (s *mockOfferStore) MarkTaken(ctx context.Context, id int64, takenBy int64, takenAt time.Time) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockOfferStore) ListUserOffers(ctx context.Context, creator int64) ([]*swap.Offer, error) {
	return nil, ErrNotImplemented
}

type mockChain struct {
	confirmations map[string]int32
	err           error
}

func (c *mockChain) GetConfirmations(ctx context.Context, txid string) (int32, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.confirmations[txid], nil
}

func (c *mockChain) LookupPayment(ctx context.Context, address string, amountSat int64, txid string) (*chain.PaymentLookup, error) {
	return nil, ErrNotImplemented
}

type mockLightning struct {
	settled map[string]bool
	err     error
	checked []string
}

func (l *mockLightning) CheckSettled(ctx context.Context, paymentHash string) (bool, error) {
	l.checked = append(l.checked, paymentHash)
	if l.err != nil {
		return false, l.err
	}
	return l.settled[paymentHash], nil
}

func (l *mockLightning) DecodeInvoice(ctx context.Context, invoice string) (string, error) {
	return "", ErrNotImplemented
}

type mockWrapper struct {
	down       bool
	probeCalls int
}

func (w *mockWrapper) Available(ctx context.Context) bool {
	w.probeCalls++
	return !w.down
}

func (w *mockWrapper) WrapInvoice(ctx context.Context, invoice string) (string, error) {
	return "", ErrNotImplemented
}

type mockReadyChecker struct {
	calls []int64
}

func (r *mockReadyChecker) CheckReady(ctx context.Context, dealId int64) error {
	r.calls = append(r.calls, dealId)
	return nil
}

type mockRetrier struct {
	advanced bool
	errFor   map[int64]error
	calls    []int64
}

func (r *mockRetrier) RetryWrap(ctx context.Context, deal *swap.Deal) (bool, error) {
	r.calls = append(r.calls, deal.Id)
	if err := r.errFor[deal.Id]; err != nil {
		return false, err
	}
	return r.advanced, nil
}

type mockNotifier struct {
	mtx   sync.Mutex
	err   error
	texts map[int64][]string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{texts: make(map[int64][]string)}
}

func (n *mockNotifier) Notify(ctx context.Context, user int64, text string) error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if n.err != nil {
		return n.err
	}
	n.texts[user] = append(n.texts[user], text)
	return nil
}

func (n *mockNotifier) sent(user int64) []string {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.texts[user]
}
