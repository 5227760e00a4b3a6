package batch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/satswap/swapd/config"
	"github.com/satswap/swapd/swap"
	"github.com/stretchr/testify/assert"
)

func readyDeal(id int64, seller int64, amountSat int64, age time.Duration) *swap.Deal {
	address := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	return &swap.Deal{
		Id:            id,
		OfferId:       id + 100,
		Seller:        seller,
		Buyer:         seller + 1000,
		AmountSat:     amountSat,
		Status:        swap.StatusReadyForBatch,
		Stage:         swap.StageNone,
		PayoutAddress: &address,
		CreatedAt:     time.Now().Add(-age),
	}
}

type schedulerHarness struct {
	scheduler *Scheduler
	deals     *mockDealStore
	notifier  *mockNotifier
}

func setupScheduler() *schedulerHarness {
	h := &schedulerHarness{
		deals:    &mockDealStore{},
		notifier: newMockNotifier(),
	}
	cfg := &config.Config{BatchMinSize: 3, BatchMaxAge: time.Hour}
	h.scheduler = NewScheduler(cfg, h.deals, h.notifier)
	return h
}

func Test_Batch_FlushesAtMinSize(t *testing.T) {
	h := setupScheduler()
	h.deals.ready = []*swap.Deal{
		readyDeal(1, 21, 10000, time.Minute*10),
		readyDeal(2, 22, 10000, time.Minute*5),
		readyDeal(3, 23, 10000, time.Minute),
	}

	h.scheduler.flushOnce(context.Background())

	assert.Len(t, h.deals.completed, 1)
	assert.ElementsMatch(t, []int64{1, 2, 3}, h.deals.completed[0].ids)
	assert.Regexp(t, `^batch_10000_3_\d+$`, h.deals.completed[0].reference)

	for _, seller := range []int64{21, 22, 23} {
		texts := h.notifier.sent(seller)
		assert.Len(t, texts, 1)
		assert.Contains(t, texts[0], h.deals.completed[0].reference)
	}
}

func Test_Batch_GroupsByAmount(t *testing.T) {
	h := setupScheduler()
	h.deals.ready = []*swap.Deal{
		readyDeal(1, 21, 10000, time.Minute*10),
		readyDeal(2, 22, 10000, time.Minute*5),
		readyDeal(3, 23, 100000, time.Minute),
	}

	h.scheduler.flushOnce(context.Background())

	assert.Len(t, h.deals.completed, 2)
	var references []string
	for _, call := range h.deals.completed {
		references = append(references, call.reference)
		switch len(call.ids) {
		case 2:
			assert.Regexp(t, `^batch_10000_2_\d+$`, call.reference)
			assert.ElementsMatch(t, []int64{1, 2}, call.ids)
		case 1:
			assert.Regexp(t, `^batch_100000_1_\d+$`, call.reference)
			assert.Equal(t, []int64{3}, call.ids)
		default:
			t.Fatalf("unexpected group size %d", len(call.ids))
		}
	}
	assert.NotEqual(t, references[0], references[1])
}

func Test_Batch_HoldsSmallYoungSet(t *testing.T) {
	h := setupScheduler()
	h.deals.ready = []*swap.Deal{
		readyDeal(1, 21, 10000, time.Minute*10),
		readyDeal(2, 22, 10000, time.Minute*5),
	}

	h.scheduler.flushOnce(context.Background())

	assert.Empty(t, h.deals.completed)
	assert.Empty(t, h.notifier.sent(21))
}

func Test_Batch_FlushesOldSingleDeal(t *testing.T) {
	h := setupScheduler()
	h.deals.ready = []*swap.Deal{readyDeal(1, 21, 10000, time.Minute*61)}

	h.scheduler.flushOnce(context.Background())

	assert.Len(t, h.deals.completed, 1)
	assert.Equal(t, []int64{1}, h.deals.completed[0].ids)
	assert.Contains(t, strings.Join(h.notifier.sent(21), "\n"), h.deals.completed[0].reference)
}

func Test_Batch_UntilNextTick(t *testing.T) {
	midHour := time.Date(2023, 5, 17, 10, 15, 30, 0, time.UTC)
	assert.Equal(t, time.Minute*44+time.Second*30, untilNextTick(midHour))

	onBoundary := time.Date(2023, 5, 17, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Hour, untilNextTick(onBoundary))
}
