package business

import (
	"fmt"
	"testing"

	"liquidityreward/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dailyRewards = decimal.NewFromInt(100)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func sumRewards(rewards []models.PoolReward) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rewards {
		sum = sum.Add(r.Reward)
	}
	return sum
}

func TestRewardSplit(t *testing.T) {
	t.Run("Full incentive token ignores participating side", func(t *testing.T) {
		w := RewardSplit(models.PoolReading{Token: "refi", TVL: dec("1000"), IncentiveTokenTVL: decPtr("1000"), ParticipatingTokenTVL: decPtr("0")})
		assert.True(t, w.Equal(dec("1000")), "got %s", w)

		w = RewardSplit(models.PoolReading{Token: "refi", TVL: dec("1000"), ParticipatingTokenTVL: decPtr("5000")})
		assert.True(t, w.Equal(dec("1000")), "got %s", w)
	})

	t.Run("Default token weighs 75 percent of tvl", func(t *testing.T) {
		w := RewardSplit(models.PoolReading{Token: "token", TVL: dec("2000")})
		assert.True(t, w.Equal(dec("1500")), "got %s", w)
	})

	t.Run("Default token with split", func(t *testing.T) {
		w := RewardSplit(models.PoolReading{Token: "token", TVL: dec("2000"), IncentiveTokenTVL: decPtr("1000"), ParticipatingTokenTVL: decPtr("1000")})
		assert.True(t, w.Equal(dec("1000")), "got %s", w)
	})

	t.Run("Custom allow-list", func(t *testing.T) {
		a := NewAllocator([]string{" glo ", ""})
		w := a.RewardSplit(models.PoolReading{Token: "glo", TVL: dec("400")})
		assert.True(t, w.Equal(dec("400")), "got %s", w)
		w = a.RewardSplit(models.PoolReading{Token: "refi", TVL: dec("400")})
		assert.True(t, w.Equal(dec("300")), "got %s", w)
	})
}

func TestAllocate(t *testing.T) {
	t.Run("Empty list", func(t *testing.T) {
		result, err := Allocate(nil, dailyRewards)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("Single reading takes the whole budget", func(t *testing.T) {
		reading := models.PoolReading{Token: "token", Dex: "uniswap", TVL: dec("10000")}
		result, err := Allocate([]models.PoolReading{reading}, dailyRewards)
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, reading, result[0].PoolReading)
		assert.True(t, result[0].Reward.Equal(dailyRewards))
	})

	t.Run("Regular split", func(t *testing.T) {
		pools := []models.PoolReading{
			{Token: "token1", Dex: "uniswap", TVL: dec("500")},
			{Token: "token2", Dex: "uniswap", TVL: dec("500")},
		}
		result, err := Allocate(pools, dailyRewards)
		require.NoError(t, err)
		assert.True(t, result[0].Reward.Equal(dec("50")))
		assert.True(t, result[1].Reward.Equal(dec("50")))
	})

	t.Run("Refi split", func(t *testing.T) {
		pools := []models.PoolReading{
			{Token: "refi", Dex: "uniswap", TVL: dec("3000")},
			{Token: "other", Dex: "uniswap", TVL: dec("4000")},
		}
		result, err := Allocate(pools, dailyRewards)
		require.NoError(t, err)
		assert.True(t, result[0].Reward.Equal(dec("50")))
		assert.True(t, result[1].Reward.Equal(dec("50")))
	})

	t.Run("Sums to budget exactly", func(t *testing.T) {
		tvls := [][3]string{
			{"2", "0", "2"},
			{"1435", "1435", "0"},
			{"26512", "14609", "11903"},
			{"10336", "6353", "3983"},
			{"15770", "10525", "5244"},
			{"385", "192", "192"},
			{"10959", "4767", "6190"},
			{"10679", "5340", "5340"},
		}
		pools := make([]models.PoolReading, 0, len(tvls))
		for i, v := range tvls {
			pools = append(pools, models.PoolReading{
				Token:                 fmt.Sprintf("token%d", i+1),
				Dex:                   "uniswap",
				TVL:                   dec(v[0]),
				IncentiveTokenTVL:     decPtr(v[1]),
				ParticipatingTokenTVL: decPtr(v[2]),
			})
		}
		pools[1].Token = "refi"

		for _, budget := range []string{"100", "96.77", "3000", "0.01", "33.333333"} {
			result, err := Allocate(pools, dec(budget))
			require.NoError(t, err)
			assert.True(t, sumRewards(result).Equal(dec(budget)), "budget %s summed to %s", budget, sumRewards(result))
		}
	})

	t.Run("Residue goes to the first smallest reward", func(t *testing.T) {
		pools := []models.PoolReading{
			{Token: "a", Dex: "uniswap", TVL: dec("100")},
			{Token: "b", Dex: "uniswap", TVL: dec("100")},
			{Token: "c", Dex: "uniswap", TVL: dec("100")},
		}
		result, err := Allocate(pools, dailyRewards)
		require.NoError(t, err)
		assert.True(t, sumRewards(result).Equal(dailyRewards))
		assert.True(t, result[1].Reward.Equal(result[2].Reward))
		assert.True(t, result[0].Reward.Equal(dailyRewards.Sub(result[1].Reward.Mul(decimal.NewFromInt(2)))))
		assert.True(t, result[0].Reward.Sub(result[1].Reward).Abs().LessThanOrEqual(dec("0.000000000000000001")))
	})

	t.Run("Deterministic across runs", func(t *testing.T) {
		pools := []models.PoolReading{
			{Token: "a", Dex: "uniswap", TVL: dec("7")},
			{Token: "b", Dex: "ubeswap", TVL: dec("13")},
			{Token: "c", Dex: "uniswap", TVL: dec("3")},
		}
		first, err := Allocate(pools, dailyRewards)
		require.NoError(t, err)
		second, err := Allocate(pools, dailyRewards)
		require.NoError(t, err)
		for i := range first {
			assert.True(t, first[i].Reward.Equal(second[i].Reward))
		}
	})

	t.Run("Zero weight with budget fails", func(t *testing.T) {
		pools := []models.PoolReading{
			{Token: "a", Dex: "uniswap", TVL: dec("0")},
			{Token: "b", Dex: "uniswap", TVL: dec("0")},
		}
		_, err := Allocate(pools, dailyRewards)
		assert.ErrorIs(t, err, ErrNoEligibleLiquidity)
	})

	t.Run("Zero weight with zero budget yields zero rewards", func(t *testing.T) {
		pools := []models.PoolReading{{Token: "a", Dex: "uniswap", TVL: dec("0")}}
		result, err := Allocate(pools, decimal.Zero)
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.True(t, result[0].Reward.IsZero())
	})
}
