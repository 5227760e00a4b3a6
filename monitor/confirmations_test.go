package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satswap/swapd/swap"
	"github.com/stretchr/testify/assert"
)

const confirmingTxid = "d5ada2c2ed93e7449b9c9c9d8e54b67f1df8750d7c465f5ad0dce2b366a91603"

func confirmingDeal(id int64, confirmations int32) *swap.Deal {
	deadline := time.Now().Add(time.Hour * 47)
	txid := confirmingTxid
	return &swap.Deal{
		Id:            id,
		OfferId:       id + 100,
		Seller:        sellerId,
		Buyer:         buyerId,
		AmountSat:     10000,
		Status:        swap.StatusBitcoinSent,
		Stage:         swap.StageConfirmingBitcoin,
		StageDeadline: &deadline,
		Txid:          &txid,
		Confirmations: confirmations,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
}

type pollerHarness struct {
	poller   *ConfirmationPoller
	deals    *mockDealStore
	chain    *mockChain
	notifier *mockNotifier
	ready    *mockReadyChecker
}

func setupPoller() *pollerHarness {
	h := &pollerHarness{
		deals:    newMockDealStore(),
		chain:    &mockChain{confirmations: make(map[string]int32)},
		notifier: newMockNotifier(),
		ready:    &mockReadyChecker{},
	}
	h.poller = NewConfirmationPoller(h.deals, h.chain, h.notifier, h.ready, 3, time.Hour*2)
	return h
}

func Test_ConfirmationPoller_AdvancesAtThreshold(t *testing.T) {
	h := setupPoller()
	deal := confirmingDeal(1, 2)
	h.deals.confirming = []*swap.Deal{deal}
	h.chain.confirmations[confirmingTxid] = 3

	h.poller.pollOnce(context.Background())

	assert.Len(t, h.deals.confirmed, 1)
	assert.Equal(t, deal.Id, h.deals.confirmed[0].id)
	assert.Equal(t, int32(3), h.deals.confirmed[0].confirmations)
	assert.WithinDuration(t, time.Now().Add(time.Hour*2), h.deals.confirmed[0].deadline, time.Second*5)
	assert.NotEmpty(t, h.notifier.sent(buyerId))
	assert.Equal(t, []int64{deal.Id}, h.ready.calls)
}

func Test_ConfirmationPoller_PersistsPartialCount(t *testing.T) {
	h := setupPoller()
	h.deals.confirming = []*swap.Deal{confirmingDeal(1, 0)}
	h.chain.confirmations[confirmingTxid] = 1

	h.poller.pollOnce(context.Background())

	assert.Equal(t, int32(1), h.deals.updatedConfs[1])
	assert.Empty(t, h.deals.confirmed)
	assert.Empty(t, h.notifier.sent(buyerId))
}

func Test_ConfirmationPoller_UnchangedCountWritesNothing(t *testing.T) {
	h := setupPoller()
	h.deals.confirming = []*swap.Deal{confirmingDeal(1, 1)}
	h.chain.confirmations[confirmingTxid] = 1

	h.poller.pollOnce(context.Background())

	assert.Empty(t, h.deals.updatedConfs)
	assert.Empty(t, h.deals.confirmed)
}

func Test_ConfirmationPoller_GatewayErrorLeavesDeal(t *testing.T) {
	h := setupPoller()
	h.deals.confirming = []*swap.Deal{confirmingDeal(1, 0)}
	h.chain.err = errors.New("status 502")

	h.poller.pollOnce(context.Background())

	assert.Empty(t, h.deals.confirmed)
	assert.Empty(t, h.deals.updatedConfs)
	assert.Empty(t, h.deals.cancelled)
}

func Test_ConfirmationPoller_SkipsConcurrentlyMovedDeal(t *testing.T) {
	h := setupPoller()
	h.deals.confirming = []*swap.Deal{confirmingDeal(1, 2)}
	h.chain.confirmations[confirmingTxid] = 3
	h.deals.confirmedResult = false

	h.poller.pollOnce(context.Background())

	assert.Empty(t, h.notifier.sent(buyerId))
	assert.Empty(t, h.ready.calls)
}
