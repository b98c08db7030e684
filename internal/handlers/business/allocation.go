package business

import (
	"errors"
	"strings"

	"liquidityreward/internal/models"

	"github.com/shopspring/decimal"
)

// rewardPrecision is the number of fractional digits kept when dividing the budget.
const rewardPrecision = 18

// ErrNoEligibleLiquidity is returned when every reading weighs zero but there is a budget to split.
var ErrNoEligibleLiquidity = errors.New("no eligible liquidity for allocation")

var (
	defaultIncentiveShare = decimal.RequireFromString("0.75")
	fullIncentiveShare    = decimal.NewFromInt(1)
)

// DefaultFullIncentiveTokens lists single-sided sources credited 100% on the incentive side.
var DefaultFullIncentiveTokens = []string{"refi"}

// Allocator splits a budget proportionally to weighted liquidity.
type Allocator struct {
	fullIncentive map[string]struct{}
}

// NewAllocator builds an allocator with the given full-incentive allow-list.
func NewAllocator(fullIncentiveTokens []string) *Allocator {
	a := &Allocator{fullIncentive: make(map[string]struct{}, len(fullIncentiveTokens))}
	for _, token := range fullIncentiveTokens {
		token = strings.TrimSpace(token)
		if token != "" {
			a.fullIncentive[token] = struct{}{}
		}
	}
	return a
}

var defaultAllocator = NewAllocator(DefaultFullIncentiveTokens)

// RewardSplit returns the weighted liquidity of a reading using the default allow-list.
func RewardSplit(reading models.PoolReading) decimal.Decimal {
	return defaultAllocator.RewardSplit(reading)
}

// Allocate splits budget across readings using the default allow-list.
func Allocate(readings []models.PoolReading, budget decimal.Decimal) ([]models.PoolReward, error) {
	return defaultAllocator.Allocate(readings, budget)
}

// RewardSplit returns share*(incentive ?? tvl) + (1-share)*(participating ?? 0).
func (a *Allocator) RewardSplit(reading models.PoolReading) decimal.Decimal {
	share := defaultIncentiveShare
	if _, ok := a.fullIncentive[reading.Token]; ok {
		share = fullIncentiveShare
	}

	incentive := reading.TVL
	if reading.IncentiveTokenTVL != nil {
		incentive = *reading.IncentiveTokenTVL
	}
	participating := decimal.Zero
	if reading.ParticipatingTokenTVL != nil {
		participating = *reading.ParticipatingTokenTVL
	}

	return share.Mul(incentive).Add(fullIncentiveShare.Sub(share).Mul(participating))
}

// Allocate returns one reward per reading, in input order, summing exactly to budget.
// Rounding residue lands on the smallest reward (first one on ties).
func (a *Allocator) Allocate(readings []models.PoolReading, budget decimal.Decimal) ([]models.PoolReward, error) {
	if len(readings) == 0 {
		return []models.PoolReward{}, nil
	}

	weights := make([]decimal.Decimal, len(readings))
	total := decimal.Zero
	for i, reading := range readings {
		weights[i] = a.RewardSplit(reading)
		total = total.Add(weights[i])
	}

	if total.Sign() <= 0 {
		if budget.IsZero() {
			rewards := make([]models.PoolReward, len(readings))
			for i, reading := range readings {
				rewards[i] = models.PoolReward{PoolReading: reading, Reward: decimal.Zero}
			}
			return rewards, nil
		}
		return nil, ErrNoEligibleLiquidity
	}

	rewards := make([]models.PoolReward, len(readings))
	sum := decimal.Zero
	for i, reading := range readings {
		reward := budget.Mul(weights[i]).DivRound(total, rewardPrecision)
		rewards[i] = models.PoolReward{PoolReading: reading, Reward: reward}
		sum = sum.Add(reward)
	}

	if !sum.Equal(budget) {
		bottom := 0
		for i := 1; i < len(rewards); i++ {
			if rewards[i].Reward.LessThan(rewards[bottom].Reward) {
				bottom = i
			}
		}
		others := sum.Sub(rewards[bottom].Reward)
		rewards[bottom].Reward = budget.Sub(others)
	}

	return rewards, nil
}
