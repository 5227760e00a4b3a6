package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satswap/swapd/swap"
	"github.com/stretchr/testify/assert"
)

const settleHash = "0000000000000000000000000000000000000000000000000000000000000001"

func pendingPaymentDeal(id int64, paymentHash string) *swap.Deal {
	deadline := time.Now().Add(time.Hour)
	hash := paymentHash
	return &swap.Deal{
		Id:            id,
		OfferId:       id + 100,
		Seller:        sellerId,
		Buyer:         buyerId,
		AmountSat:     10000,
		Status:        swap.StatusPaymentPending,
		Stage:         swap.StagePaymentRequired,
		StageDeadline: &deadline,
		PaymentHash:   &hash,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
}

type settlementHarness struct {
	poller    *SettlementPoller
	deals     *mockDealStore
	lightning *mockLightning
	notifier  *mockNotifier
}

func setupSettlement() *settlementHarness {
	h := &settlementHarness{
		deals:     newMockDealStore(),
		lightning: &mockLightning{settled: make(map[string]bool)},
		notifier:  newMockNotifier(),
	}
	h.poller = NewSettlementPoller(h.deals, h.lightning, h.notifier)
	return h
}

func Test_SettlementPoller_SettledAdvances(t *testing.T) {
	h := setupSettlement()
	deal := pendingPaymentDeal(1, settleHash)
	h.deals.awaitingSettle = []*swap.Deal{deal}
	h.lightning.settled[settleHash] = true

	h.poller.pollOnce(context.Background())

	assert.Equal(t, []int64{deal.Id}, h.deals.readyForBatch)
	assert.NotEmpty(t, h.notifier.sent(buyerId))
	assert.NotEmpty(t, h.notifier.sent(sellerId))
}

func Test_SettlementPoller_UnsettledWaits(t *testing.T) {
	h := setupSettlement()
	h.deals.awaitingSettle = []*swap.Deal{pendingPaymentDeal(1, settleHash)}

	h.poller.pollOnce(context.Background())

	assert.Equal(t, []string{settleHash}, h.lightning.checked)
	assert.Empty(t, h.deals.readyForBatch)
	assert.Empty(t, h.notifier.sent(buyerId))
}

func Test_SettlementPoller_GatewayErrorWaits(t *testing.T) {
	h := setupSettlement()
	h.deals.awaitingSettle = []*swap.Deal{pendingPaymentDeal(1, settleHash)}
	h.lightning.err = errors.New("status 503")

	h.poller.pollOnce(context.Background())

	assert.Empty(t, h.deals.readyForBatch)
	assert.Empty(t, h.deals.cancelled)
}

func Test_SettlementPoller_SkipsPlaceholderHash(t *testing.T) {
	h := setupSettlement()
	h.deals.awaitingSettle = []*swap.Deal{pendingPaymentDeal(1, swap.PlaceholderPaymentHash)}

	h.poller.pollOnce(context.Background())

	assert.Empty(t, h.lightning.checked)
	assert.Empty(t, h.deals.readyForBatch)
}
