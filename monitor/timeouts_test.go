package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/satswap/swapd/swap"
	"github.com/stretchr/testify/assert"
)

const sellerId = int64(21)
const buyerId = int64(42)

func expiredDeal(id int64, status swap.Status, stage swap.Stage) *swap.Deal {
	deadline := time.Now().Add(-time.Minute)
	return &swap.Deal{
		Id:            id,
		OfferId:       id + 100,
		Seller:        sellerId,
		Buyer:         buyerId,
		AmountSat:     10000,
		Status:        status,
		Stage:         stage,
		StageDeadline: &deadline,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
}

func sentText(texts []string) string {
	return strings.Join(texts, "\n")
}

type watcherHarness struct {
	watcher  *TimeoutWatcher
	offers   *mockOfferStore
	deals    *mockDealStore
	notifier *mockNotifier
}

func setupWatcher() *watcherHarness {
	h := &watcherHarness{
		offers:   &mockOfferStore{},
		deals:    newMockDealStore(),
		notifier: newMockNotifier(),
	}
	h.watcher = NewTimeoutWatcher(h.offers, h.deals, h.notifier)
	return h
}

func Test_TimeoutWatcher_AcceptExpired(t *testing.T) {
	h := setupWatcher()
	deal := expiredDeal(1, swap.StatusPending, swap.StageAcceptRequired)
	h.deals.expired = []*swap.Deal{deal}

	h.watcher.scanOnce(context.Background())

	assert.Len(t, h.deals.cancelled, 1)
	assert.Equal(t, deal.Id, h.deals.cancelled[0].id)
	assert.Equal(t, swap.ReasonAcceptTimeout, h.deals.cancelled[0].reason)
	assert.Equal(t, []swap.Status{swap.StatusPending}, h.deals.cancelled[0].from)
	assert.Equal(t, []int64{deal.OfferId}, h.offers.reactivated)
	assert.NotEmpty(t, h.notifier.sent(buyerId))
	assert.NotEmpty(t, h.notifier.sent(sellerId))
}

func Test_TimeoutWatcher_TxidExpired(t *testing.T) {
	h := setupWatcher()
	deal := expiredDeal(1, swap.StatusAccepted, swap.StageTxidRequired)
	h.deals.expired = []*swap.Deal{deal}

	h.watcher.scanOnce(context.Background())

	assert.Len(t, h.deals.cancelled, 1)
	assert.Equal(t, swap.ReasonTxidTimeout, h.deals.cancelled[0].reason)
	assert.Equal(t, []int64{deal.OfferId}, h.offers.reactivated)
}

func Test_TimeoutWatcher_ConfirmingExpiredKeepsOfferOut(t *testing.T) {
	h := setupWatcher()
	deal := expiredDeal(1, swap.StatusBitcoinSent, swap.StageConfirmingBitcoin)
	txid := "5ff2f95e1e43ad07b6d6a09e93c9ed4e2b3e78b4a0cbd82de988392ae0d0b4b8"
	deal.Txid = &txid
	h.deals.expired = []*swap.Deal{deal}

	h.watcher.scanOnce(context.Background())

	assert.Len(t, h.deals.cancelled, 1)
	assert.Equal(t, swap.ReasonConfirmationTimeout, h.deals.cancelled[0].reason)
	assert.Empty(t, h.offers.reactivated)
	assert.Contains(t, sentText(h.notifier.sent(buyerId)), txid)
	assert.Contains(t, sentText(h.notifier.sent(buyerId)), "refund")
}

func Test_TimeoutWatcher_InvoiceExpired(t *testing.T) {
	h := setupWatcher()
	h.deals.expired = []*swap.Deal{expiredDeal(1, swap.StatusBitcoinConfirmed, swap.StageInvoiceRequired)}

	h.watcher.scanOnce(context.Background())

	assert.Len(t, h.deals.cancelled, 1)
	assert.Equal(t, swap.ReasonInvoiceTimeout, h.deals.cancelled[0].reason)
	assert.Empty(t, h.offers.reactivated)
}

func Test_TimeoutWatcher_AddressExpired(t *testing.T) {
	h := setupWatcher()
	h.deals.expired = []*swap.Deal{expiredDeal(1, swap.StatusAwaitingAddress, swap.StageAddressRequired)}

	h.watcher.scanOnce(context.Background())

	assert.Len(t, h.deals.cancelled, 1)
	assert.Equal(t, swap.ReasonAddressTimeout, h.deals.cancelled[0].reason)
}

func Test_TimeoutWatcher_PaymentExpired(t *testing.T) {
	h := setupWatcher()
	h.deals.expired = []*swap.Deal{expiredDeal(1, swap.StatusPaymentPending, swap.StagePaymentRequired)}

	h.watcher.scanOnce(context.Background())

	assert.Len(t, h.deals.cancelled, 1)
	assert.Equal(t, swap.ReasonPaymentTimeout, h.deals.cancelled[0].reason)
}

func Test_TimeoutWatcher_PrivacyCeilingExpired(t *testing.T) {
	h := setupWatcher()
	deal := expiredDeal(1, swap.StatusPrivacyRetry, swap.StagePrivacyRetry)
	h.deals.expired = []*swap.Deal{deal}

	h.watcher.scanOnce(context.Background())

	assert.Len(t, h.deals.cancelled, 1)
	assert.Equal(t, swap.ReasonPrivacyTimeout, h.deals.cancelled[0].reason)
	assert.Equal(t, []int64{deal.OfferId}, h.offers.reactivated)
	assert.Contains(t, sentText(h.notifier.sent(buyerId)), "refund")
}

func Test_TimeoutWatcher_SkipsConcurrentlyMovedDeal(t *testing.T) {
	h := setupWatcher()
	h.deals.expired = []*swap.Deal{expiredDeal(1, swap.StatusPending, swap.StageAcceptRequired)}
	h.deals.cancelResult = false

	h.watcher.scanOnce(context.Background())

	assert.Empty(t, h.offers.reactivated)
	assert.Empty(t, h.notifier.sent(buyerId))
	assert.Empty(t, h.notifier.sent(sellerId))
}

func Test_TimeoutWatcher_NotificationFailureDoesNotBlockScan(t *testing.T) {
	h := setupWatcher()
	h.deals.expired = []*swap.Deal{
		expiredDeal(1, swap.StatusPending, swap.StageAcceptRequired),
		expiredDeal(2, swap.StatusAccepted, swap.StageTxidRequired),
	}
	h.notifier.err = errors.New("chat not found")

	h.watcher.scanOnce(context.Background())

	assert.Len(t, h.deals.cancelled, 2)
}

func Test_TimeoutWatcher_SweepsOfferVisibility(t *testing.T) {
	h := setupWatcher()
	h.offers.expireCount = 2

	h.watcher.scanOnce(context.Background())

	assert.Equal(t, 1, h.offers.expireCalls)
	assert.Empty(t, h.deals.cancelled)
}
