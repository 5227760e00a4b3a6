package batch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/satswap/swapd/config"
	"github.com/satswap/swapd/notifications"
	"github.com/satswap/swapd/swap"
)

// Scheduler aggregates ready deals into grouped payouts on wall-clock hour
// boundaries. Deals of equal amounts share one payout reference so payout
// sizes reveal nothing about individual swaps.
type Scheduler struct {
	deals       swap.DealStore
	notifier    swap.Notifier
	minSize     int
	maxAge      time.Duration
	payoutEmail *config.Email
}

func NewScheduler(cfg *config.Config, deals swap.DealStore, notifier swap.Notifier) *Scheduler {
	return &Scheduler{
		deals:       deals,
		notifier:    notifier,
		minSize:     cfg.BatchMinSize,
		maxAge:      cfg.BatchMaxAge,
		payoutEmail: cfg.PayoutEmail,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(untilNextTick(time.Now())):
		}

		s.flushOnce(ctx)
	}
}

// untilNextTick returns the time left until the next wall-clock hour.
func untilNextTick(now time.Time) time.Duration {
	return now.Truncate(time.Hour).Add(time.Hour).Sub(now)
}

// flushOnce settles the whole ready-set when it is large enough to blend in,
// or when its oldest deal has waited long enough that holding it back any
// further is worse than a small batch. Age is measured from deal creation.
func (s *Scheduler) flushOnce(ctx context.Context) {
	ready, err := s.deals.ListReadyForBatch(ctx)
	if err != nil {
		log.Printf("flushOnce() - deals.ListReadyForBatch error: %v", err)
		return
	}
	if len(ready) == 0 {
		return
	}

	now := time.Now()
	oldest := now.Sub(ready[0].CreatedAt)
	if len(ready) < s.minSize && oldest < s.maxAge {
		log.Printf("holding batch: %d deals ready, oldest %v old", len(ready), oldest)
		return
	}

	groups := make(map[int64][]*swap.Deal)
	for _, deal := range ready {
		groups[deal.AmountSat] = append(groups[deal.AmountSat], deal)
	}

	for amount, group := range groups {
		s.flushGroup(ctx, amount, group, now)
	}
}

func (s *Scheduler) flushGroup(ctx context.Context, amount int64, group []*swap.Deal, now time.Time) {
	reference := fmt.Sprintf("batch_%d_%d_%d", amount, len(group), now.Unix())
	ids := make([]int64, 0, len(group))
	for _, deal := range group {
		ids = append(ids, deal.Id)
	}

	completed, err := s.deals.MarkCompleted(ctx, ids, reference, now)
	if err != nil {
		log.Printf("flushGroup() - MarkCompleted(%s) error: %v", reference, err)
		return
	}
	if completed != int64(len(ids)) {
		log.Printf("flushGroup() - %s completed %d of %d deals", reference, completed, len(ids))
	}

	log.Printf("batch %s: %d deals of %d sats completed", reference, completed, amount)
	for _, deal := range group {
		s.notify(ctx, deal.Seller, fmt.Sprintf(
			"Deal %d completed. Your payout of %d sats is part of batch %s.",
			deal.Id, deal.AmountSat, reference))
	}

	if s.payoutEmail != nil {
		if err := notifications.SendPayoutReport(s.payoutEmail, reference, amount, completed); err != nil {
			log.Printf("flushGroup() - payout report for %s: %v", reference, err)
		}
	}
}

func (s *Scheduler) notify(ctx context.Context, user int64, text string) {
	if err := s.notifier.Notify(ctx, user, text); err != nil {
		log.Printf("notification to %d dropped: %v", user, err)
	}
}
