package business

import (
	"context"
	"fmt"
	"time"

	"liquidityreward/internal/models"
	"liquidityreward/pkg/notify"
	"liquidityreward/pkg/settlement"

	log "github.com/sirupsen/logrus"
)

// SettleReward creates (or fetches) today's payouts for a reward and pays them
// on the reward's ledger, then posts the run summary.
func (s *Service) SettleReward(ctx context.Context, slug, rewardName string) (*settlement.Result, error) {
	reward, err := s.store.GetReward(ctx, slug, rewardName)
	if err != nil {
		return nil, err
	}
	l, err := s.ledgers.Get(reward.ChainID)
	if err != nil {
		return nil, err
	}

	payouts, err := s.store.CreateOrFetchPayouts(ctx, reward, l.ValidateAddress)
	if err != nil {
		return nil, err
	}
	if len(payouts) == 0 {
		log.WithFields(log.Fields{"competition": slug, "reward": rewardName}).Warn("no records to pay out today")
		return &settlement.Result{}, nil
	}

	result := s.pipeline.Settle(ctx, payouts, l)
	s.notify(ctx, notify.SettlementSummary(result, notify.PayoutLabel(reward.TokenAddress, reward.ChainID)))
	return &result, nil
}

// ListPayouts returns today's payouts of a reward.
func (s *Service) ListPayouts(ctx context.Context, slug, rewardName string) ([]models.Payout, error) {
	reward, err := s.store.GetReward(ctx, slug, rewardName)
	if err != nil {
		return nil, err
	}
	return s.store.FindPayouts(ctx, reward.ID)
}

// ReleaseStuck returns payouts stuck in-flight longer than olderThan to pending.
func (s *Service) ReleaseStuck(ctx context.Context, olderThan time.Duration, includeBroadcast bool) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("older than must be positive, got %s", olderThan)
	}
	released, err := s.store.ReleaseStuckPayouts(ctx, olderThan, includeBroadcast)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.notify(ctx, fmt.Sprintf("%d stuck payouts released for retry.", released))
	}
	return released, nil
}
