package monitor

import (
	"context"
	"log"
	"time"

	"github.com/satswap/swapd/lnproxy"
	"github.com/satswap/swapd/swap"
)

var privacyRetryInterval time.Duration = time.Minute * 20

type wrapRetrier interface {
	RetryWrap(ctx context.Context, deal *swap.Deal) (bool, error)
}

// PrivacyMonitor re-runs the invoice wrap cycle for deals whose buyer chose
// to keep retrying. A pass is skipped entirely while the relay is down; the
// retry ceiling itself is enforced by the TimeoutWatcher.
type PrivacyMonitor struct {
	deals   swap.DealStore
	wrapper lnproxy.Wrapper
	retrier wrapRetrier
}

func NewPrivacyMonitor(
	deals swap.DealStore,
	wrapper lnproxy.Wrapper,
	retrier wrapRetrier,
) *PrivacyMonitor {
	return &PrivacyMonitor{
		deals:   deals,
		wrapper: wrapper,
		retrier: retrier,
	}
}

func (m *PrivacyMonitor) Start(ctx context.Context) {
	m.retryOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(privacyRetryInterval):
		}

		m.retryOnce(ctx)
	}
}

func (m *PrivacyMonitor) retryOnce(ctx context.Context) {
	deals, err := m.deals.ListPrivacyRetry(ctx, time.Now())
	if err != nil {
		log.Printf("retryOnce() - deals.ListPrivacyRetry error: %v", err)
		return
	}
	if len(deals) == 0 {
		return
	}

	if !m.wrapper.Available(ctx) {
		log.Printf("retryOnce() - relay unavailable, skipping %d deals", len(deals))
		return
	}

	for _, deal := range deals {
		advanced, err := m.retrier.RetryWrap(ctx, deal)
		if err != nil {
			log.Printf("retryOnce() - deal %d wrap cycle: %v", deal.Id, err)
			continue
		}
		if advanced {
			log.Printf("deal %d advanced with a wrapped invoice", deal.Id)
		}
	}
}
