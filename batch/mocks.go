package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satswap/swapd/swap"
)

var ErrNotImplemented = errors.New("not implemented")

type completedCall struct {
	ids         []int64
	reference   string
	completedAt time.Time
}

type mockDealStore struct {
	ready     []*swap.Deal
	listErr   error
	completed []completedCall
}

func (s *mockDealStore) ListReadyForBatch(ctx context.Context) ([]*swap.Deal, error) {
	return s.ready, s.listErr
}

func (s *mockDealStore) MarkCompleted(ctx context.Context, ids []int64, payoutReference string, completedAt time.Time) (int64, error) {
	s.completed = append(s.completed, completedCall{ids: ids, reference: payoutReference, completedAt: completedAt})
	return int64(len(ids)), nil
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

func (s *mockDealStore) MarkBitcoinConfirmed(ctx context.Context, id int64, confirmations int32, deadline time.Time) (bool, error) {
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

func (s *mockDealStore) MarkReadyForBatch(ctx context.Context, id int64) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) MarkCancelled(ctx context.Context, id int64, reason string, from ...swap.Status) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) UpdateConfirmations(ctx context.Context, id int64, confirmations int32) error {
	return ErrNotImplemented
}

func (s *mockDealStore) RequeueDeadline(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return false, ErrNotImplemented
}

func (s *mockDealStore) ListExpiredStages(ctx context.Context, now time.Time) ([]*swap.Deal, error) {
	return nil, ErrNotImplemented
}

func (s *mockDealStore) ListConfirming(ctx context.Context, now time.Time) ([]*swap.Deal, error) {
	return nil, ErrNotImplemented
}

func (s *mockDealStore) ListAwaitingSettlement(ctx context.Context) ([]*swap.Deal, error) {
	return nil, ErrNotImplemented
}

func (s *mockDealStore) ListPrivacyRetry(ctx context.Context, now time.Time) ([]*swap.Deal, error) {
	return nil, ErrNotImplemented
}

func (s *mockDealStore) ListUserDeals(ctx context.Context, user int64) ([]*swap.Deal, error) {
	return nil, ErrNotImplemented
}

type mockNotifier struct {
	mtx   sync.Mutex
	texts map[int64][]string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{texts: make(map[int64][]string)}
}

func (n *mockNotifier) Notify(ctx context.Context, user int64, text string) error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.texts[user] = append(n.texts[user], text)
	return nil
}

func (n *mockNotifier) sent(user int64) []string {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.texts[user]
}
