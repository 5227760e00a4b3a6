package swap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satswap/swapd/chain"
)

var ErrNotImplemented = errors.New("not implemented")

type mockOfferStore struct {
	mtx    sync.Mutex
	nextId int64
	offers map[int64]*Offer
}

func newMockOfferStore() *mockOfferStore {
	return &mockOfferStore{offers: make(map[int64]*Offer)}
}

func (s *mockOfferStore) seed(offer *Offer) *Offer {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if offer.Id == 0 {
		s.nextId++
		offer.Id = s.nextId
	}
	s.offers[offer.Id] = offer
	return offer
}

func (s *mockOfferStore) CreateOffer(ctx context.Context, offer *Offer) (int64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.nextId++
	stored := *offer
	stored.Id = s.nextId
	s.offers[stored.Id] = &stored
	return stored.Id, nil
}

func (s *mockOfferStore) GetOffer(ctx context.Context, id int64) (*Offer, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	offer, ok := s.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *offer
	return &copied, nil
}

func (s *mockOfferStore) MarkTaken(ctx context.Context, id int64, takenBy int64, takenAt time.Time) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	offer, ok := s.offers[id]
	if !ok || offer.Status != OfferActive {
		return false, nil
	}
	offer.Status = OfferTaken
	offer.TakenBy = &takenBy
	offer.TakenAt = &takenAt
	return true, nil
}

func (s *mockOfferStore) Reactivate(ctx context.Context, id int64, now time.Time) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	offer, ok := s.offers[id]
	if !ok || offer.Status != OfferTaken {
		return nil
	}
	if offer.VisibleUntil.After(now) {
		offer.Status = OfferActive
	} else {
		offer.Status = OfferExpired
	}
	offer.TakenBy = nil
	offer.TakenAt = nil
	return nil
}

func (s *mockOfferStore) ExpireVisible(ctx context.Context, now time.Time) (int64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var swept int64
	for _, offer := range s.offers {
		if offer.Status == OfferActive && !offer.VisibleUntil.After(now) {
			offer.Status = OfferExpired
			swept++
		}
	}
	return swept, nil
}

func (s *mockOfferStore) ListUserOffers(ctx context.Context, creator int64) ([]*Offer, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var offers []*Offer
	for _, offer := range s.offers {
		if offer.Creator == creator {
			copied := *offer
			offers = append(offers, &copied)
		}
	}
	return offers, nil
}

type mockDealStore struct {
	mtx       sync.Mutex
	nextId    int64
	deals     map[int64]*Deal
	createErr error
}

func newMockDealStore() *mockDealStore {
	return &mockDealStore{deals: make(map[int64]*Deal)}
}

func (s *mockDealStore) seed(deal *Deal) *Deal {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if deal.Id == 0 {
		s.nextId++
		deal.Id = s.nextId
	}
	s.deals[deal.Id] = deal
	return deal
}

func (s *mockDealStore) get(id int64) *Deal {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.deals[id]
}

func (s *mockDealStore) CreateDeal(ctx context.Context, deal *Deal) (int64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.nextId++
	stored := *deal
	stored.Id = s.nextId
	s.deals[stored.Id] = &stored
	return stored.Id, nil
}

func (s *mockDealStore) GetDeal(ctx context.Context, id int64) (*Deal, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	deal, ok := s.deals[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *deal
	return &copied, nil
}

func (s *mockDealStore) BuyerDealInStatus(ctx context.Context, buyer int64, statuses ...Status) (*Deal, error) {
	return s.dealInStatus(func(d *Deal) bool { return d.Buyer == buyer }, statuses)
}

func (s *mockDealStore) SellerDealInStatus(ctx context.Context, seller int64, statuses ...Status) (*Deal, error) {
	return s.dealInStatus(func(d *Deal) bool { return d.Seller == seller }, statuses)
}

func (s *mockDealStore) dealInStatus(match func(*Deal) bool, statuses []Status) (*Deal, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var found *Deal
	for _, deal := range s.deals {
		if !match(deal) || !statusIn(deal.Status, statuses) {
			continue
		}
		if found == nil || deal.CreatedAt.After(found.CreatedAt) {
			found = deal
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	copied := *found
	return &copied, nil
}

func (s *mockDealStore) MarkAccepted(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return s.transition(id, []Status{StatusPending}, func(d *Deal) {
		d.Status = StatusAccepted
		d.Stage = StageTxidRequired
		d.StageDeadline = &deadline
	})
}

func (s *mockDealStore) MarkBitcoinSent(ctx context.Context, id int64, txid string, confirmations int32, deadline time.Time) (bool, error) {
	return s.transition(id, []Status{StatusAccepted, StatusBitcoinSent}, func(d *Deal) {
		d.Status = StatusBitcoinSent
		d.Stage = StageConfirmingBitcoin
		d.StageDeadline = &deadline
		d.Txid = &txid
		d.Confirmations = confirmations
	})
}

func (s *mockDealStore) MarkBitcoinConfirmed(ctx context.Context, id int64, confirmations int32, deadline time.Time) (bool, error) {
	return s.transition(id, []Status{StatusBitcoinSent}, func(d *Deal) {
		d.Status = StatusBitcoinConfirmed
		d.Stage = StageInvoiceRequired
		d.StageDeadline = &deadline
		d.Confirmations = confirmations
	})
}

func (s *mockDealStore) MarkAwaitingPrivacyDecision(ctx context.Context, id int64, invoice string, paymentHash string) (bool, error) {
	return s.transition(id, []Status{StatusBitcoinConfirmed}, func(d *Deal) {
		d.Status = StatusAwaitingPrivacyDecision
		d.Invoice = &invoice
		d.PaymentHash = &paymentHash
	})
}

func (s *mockDealStore) MarkPrivacyRetry(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return s.transition(id, []Status{StatusAwaitingPrivacyDecision}, func(d *Deal) {
		d.Status = StatusPrivacyRetry
		d.Stage = StagePrivacyRetry
		d.StageDeadline = &deadline
	})
}

func (s *mockDealStore) MarkInvoiceReceived(ctx context.Context, id int64, invoice string, paymentHash string, deadline time.Time, from ...Status) (bool, error) {
	return s.transition(id, from, func(d *Deal) {
		d.Status = StatusInvoiceReceived
		d.Stage = StagePaymentRequired
		d.StageDeadline = &deadline
		d.Invoice = &invoice
		d.PaymentHash = &paymentHash
	})
}

func (s *mockDealStore) MarkAwaitingAddress(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	return s.transition(id, []Status{StatusInvoiceReceived}, func(d *Deal) {
		d.Status = StatusAwaitingAddress
		d.Stage = StageAddressRequired
		d.StageDeadline = &deadline
	})
}

func (s *mockDealStore) MarkPaymentPending(ctx context.Context, id int64, payoutAddress string, deadline time.Time) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	deal, ok := s.deals[id]
	if !ok || deal.PayoutAddress != nil {
		return false, nil
	}
	if !statusIn(deal.Status, []Status{StatusInvoiceReceived, StatusAwaitingAddress}) {
		return false, nil
	}
	deal.Status = StatusPaymentPending
	deal.Stage = StagePaymentRequired
	deal.StageDeadline = &deadline
	deal.PayoutAddress = &payoutAddress
	deal.UpdatedAt = time.Now()
	return true, nil
}

func (s *mockDealStore) MarkReadyForBatch(ctx context.Context, id int64) (bool, error) {
	return s.transition(id, []Status{StatusPaymentPending}, func(d *Deal) {
		d.Status = StatusReadyForBatch
		d.Stage = StageNone
		d.StageDeadline = nil
	})
}

func (s *mockDealStore) MarkCancelled(ctx context.Context, id int64, reason string, from ...Status) (bool, error) {
	if len(from) == 0 {
		from = NonTerminalStatuses()
	}
	return s.transition(id, from, func(d *Deal) {
		d.Status = StatusCancelled
		d.Stage = StageNone
		d.StageDeadline = nil
		d.CancelReason = &reason
	})
}

func (s *mockDealStore) MarkCompleted(ctx context.Context, ids []int64, payoutReference string, completedAt time.Time) (int64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var completed int64
	for _, id := range ids {
		deal, ok := s.deals[id]
		if !ok || deal.Status != StatusReadyForBatch {
			continue
		}
		deal.Status = StatusCompleted
		deal.Stage = StageNone
		deal.StageDeadline = nil
		deal.PayoutReference = &payoutReference
		deal.CompletedAt = &completedAt
		deal.UpdatedAt = time.Now()
		completed++
	}
	return completed, nil
}

func (s *mockDealStore) UpdateConfirmations(ctx context.Context, id int64, confirmations int32) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	deal, ok := s.deals[id]
	if ok && deal.Status == StatusBitcoinSent {
		deal.Confirmations = confirmations
	}
	return nil
}

func (s *mockDealStore) RequeueDeadline(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	deal, ok := s.deals[id]
	if !ok || deal.Status.IsTerminal() || deal.StageDeadline == nil {
		return false, nil
	}
	deal.StageDeadline = &deadline
	return true, nil
}

func (s *mockDealStore) ListExpiredStages(ctx context.Context, now time.Time) ([]*Deal, error) {
	return s.list(func(d *Deal) bool {
		return !d.Status.IsTerminal() && d.StageDeadline != nil && !d.StageDeadline.After(now)
	})
}

func (s *mockDealStore) ListConfirming(ctx context.Context, now time.Time) ([]*Deal, error) {
	return s.list(func(d *Deal) bool {
		return d.Status == StatusBitcoinSent && d.Txid != nil &&
			d.StageDeadline != nil && d.StageDeadline.After(now)
	})
}

func (s *mockDealStore) ListAwaitingSettlement(ctx context.Context) ([]*Deal, error) {
	return s.list(func(d *Deal) bool {
		return d.Status == StatusPaymentPending && d.PaymentHash != nil &&
			*d.PaymentHash != PlaceholderPaymentHash
	})
}

func (s *mockDealStore) ListPrivacyRetry(ctx context.Context, now time.Time) ([]*Deal, error) {
	return s.list(func(d *Deal) bool {
		return d.Status == StatusPrivacyRetry && d.StageDeadline != nil && d.StageDeadline.After(now)
	})
}

func (s *mockDealStore) ListReadyForBatch(ctx context.Context) ([]*Deal, error) {
	return s.list(func(d *Deal) bool {
		return d.Status == StatusReadyForBatch && d.PayoutAddress != nil
	})
}

func (s *mockDealStore) ListUserDeals(ctx context.Context, user int64) ([]*Deal, error) {
	return s.list(func(d *Deal) bool {
		return d.Buyer == user || d.Seller == user
	})
}

func (s *mockDealStore) list(match func(*Deal) bool) ([]*Deal, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var deals []*Deal
	for _, deal := range s.deals {
		if match(deal) {
			copied := *deal
			deals = append(deals, &copied)
		}
	}
	return deals, nil
}

func (s *mockDealStore) transition(id int64, from []Status, apply func(*Deal)) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	deal, ok := s.deals[id]
	if !ok || !statusIn(deal.Status, from) {
		return false, nil
	}
	apply(deal)
	deal.UpdatedAt = time.Now()
	return true, nil
}

func statusIn(status Status, statuses []Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type mockChain struct {
	lookup      *chain.PaymentLookup
	lookupErr   error
	lookupCalls int
	lastAddress string
	lastAmount  int64
	lastTxid    string

	confirmations int32
	confirmErr    error
}

func (c *mockChain) LookupPayment(ctx context.Context, address string, amountSat int64, txid string) (*chain.PaymentLookup, error) {
	c.lookupCalls++
	c.lastAddress = address
	c.lastAmount = amountSat
	c.lastTxid = txid
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	if c.lookup == nil {
		return &chain.PaymentLookup{}, nil
	}
	return c.lookup, nil
}

func (c *mockChain) GetConfirmations(ctx context.Context, txid string) (int32, error) {
	return c.confirmations, c.confirmErr
}

type mockLightning struct {
	paymentHash string
	decodeErr   error
	settled     bool
	settledErr  error
}

func (l *mockLightning) DecodeInvoice(ctx context.Context, invoice string) (string, error) {
	if l.decodeErr != nil {
		return "", l.decodeErr
	}
	return l.paymentHash, nil
}

func (l *mockLightning) CheckSettled(ctx context.Context, paymentHash string) (bool, error) {
	return l.settled, l.settledErr
}

type mockWrapper struct {
	wrapped  string
	failures int
	calls    int
	down     bool
}

func (w *mockWrapper) WrapInvoice(ctx context.Context, invoice string) (string, error) {
	w.calls++
	if w.calls <= w.failures {
		return "", errors.New("relay busy")
	}
	return w.wrapped, nil
}

func (w *mockWrapper) Available(ctx context.Context) bool {
	return !w.down
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
