package business

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"liquidityreward/internal/models"
	"liquidityreward/internal/store"
	"liquidityreward/pkg/ledger"
	"liquidityreward/pkg/sources"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var runNow = time.Date(2025, time.April, 6, 1, 0, 0, 0, time.UTC)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

type fakeLedger struct {
	chainID   int64
	transfers []ledger.Transfer
}

func (f *fakeLedger) Name() string {
	return "fake"
}

func (f *fakeLedger) ChainID() int64 {
	return f.chainID
}

func (f *fakeLedger) ValidateAddress(address string) bool {
	return len(address) == 42
}

func (f *fakeLedger) Transfer(_ context.Context, t ledger.Transfer) (string, error) {
	f.transfers = append(f.transfers, t)
	return fmt.Sprintf("0xhash%d", len(f.transfers)), nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:business_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return store.New(db, clockwork.NewFakeClockAt(runNow))
}

func tvlReading(token string, tvl int64) models.PoolReading {
	return models.PoolReading{Token: token, Dex: "uniswap", TVL: decimal.NewFromInt(tvl)}
}

func sumEarnings(records []models.ProjectRecord) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Earnings)
	}
	return sum
}

func TestDailyBudget(t *testing.T) {
	assert.Equal(t, "100", DailyBudget(decimal.NewFromInt(3000), store.MidnightOn(2025, time.April, 6)).String())
	assert.Equal(t, "100", DailyBudget(decimal.NewFromInt(3100), store.MidnightOn(2025, time.April, 1)).String(), "record date is Mar 31")
	assert.True(t, DailyBudget(decimal.NewFromInt(1000), store.MidnightOn(2025, time.April, 6)).Mul(decimal.NewFromInt(30)).Sub(decimal.NewFromInt(1000)).Abs().LessThan(decimal.New(1, -15)))
}

func TestCollectChain(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	svc := NewService(st, Options{Chains: []ChainProgram{{
		Name:          "celo",
		ChainID:       ledger.ChainCelo,
		MonthlyBudget: decimal.NewFromInt(3000),
		Sources: []sources.Source{sources.Static{Readings: []models.PoolReading{
			tvlReading("NATURE", 3000),
			tvlReading("REFI", 1000),
		}}},
	}}})

	_, err := svc.CollectChain(ctx, "polygon")
	assert.ErrorIs(t, err, ErrUnknownChain)

	created, err := svc.CollectChain(ctx, "Celo")
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	var records []models.ProjectRecord
	require.NoError(t, st.DB().Order("id").Find(&records).Error)
	require.Len(t, records, 2)
	assert.Equal(t, "chain:42220", records[0].Scope)
	assert.True(t, sumEarnings(records).Equal(decimal.NewFromInt(100)))
	assert.True(t, records[0].Earnings.Equal(decimal.NewFromInt(75)))

	var projects int64
	require.NoError(t, st.DB().Model(&models.Project{}).Count(&projects).Error)
	assert.Equal(t, int64(2), projects)

	_, err = svc.CollectChain(ctx, "celo")
	assert.ErrorIs(t, err, store.ErrAlreadyRan)
}

func TestCollectChainWithoutLiquidity(t *testing.T) {
	svc := NewService(openStore(t), Options{Chains: []ChainProgram{{
		Name:          "optimism",
		ChainID:       ledger.ChainOptimism,
		MonthlyBudget: decimal.NewFromInt(3000),
		Sources:       []sources.Source{sources.Static{Readings: []models.PoolReading{tvlReading("X", 0)}}},
	}}})
	_, err := svc.CollectChain(context.Background(), "optimism")
	assert.ErrorIs(t, err, ErrNoEligibleLiquidity)
}

// seedCompetition stores a competition with two rewards on Celo.
func seedCompetition(t *testing.T, st *store.Store, start, end time.Time, rewards ...string) *models.Competition {
	t.Helper()
	c := &models.Competition{Slug: "usdglo7", Name: "USDGLO 7", StartDate: start, EndDate: end}
	require.NoError(t, st.DB().Create(c).Error)
	for _, name := range rewards {
		r := models.Reward{
			CompetitionID: c.ID,
			Name:          name,
			Value:         decimal.NewFromInt(100),
			TokenAddress:  "0x4f604735c1cf31399c6e711d5962b2b3e0225ad3",
			ChainID:       ledger.ChainCelo,
		}
		require.NoError(t, st.DB().Create(&r).Error)
		c.Rewards = append(c.Rewards, r)
	}
	return c
}

func competitionService(st *store.Store, l ledger.Ledger, n Notifier) *Service {
	return NewService(st, Options{
		Ledgers:  ledger.NewRegistry(l),
		Notifier: n,
		CompetitionSources: []sources.Source{sources.Static{Readings: []models.PoolReading{
			tvlReading("NATURE", 1000),
			tvlReading("REFI", 1000),
		}}},
	})
}

func TestCollectCompetition(t *testing.T) {
	ctx := context.Background()
	april1 := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	april30 := time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC)

	t.Run("Missing competition", func(t *testing.T) {
		svc := competitionService(openStore(t), &fakeLedger{chainID: ledger.ChainCelo}, nil)
		_, err := svc.CollectCompetition(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrCompetitionNotFound)
	})

	t.Run("Inactive competition", func(t *testing.T) {
		st := openStore(t)
		seedCompetition(t, st, april1, april1.AddDate(0, 0, 2), "daily")
		_, err := competitionService(st, &fakeLedger{chainID: ledger.ChainCelo}, nil).CollectCompetition(ctx, "usdglo7")
		assert.ErrorIs(t, err, ErrCompetitionInactive)
	})

	t.Run("Competition without rewards", func(t *testing.T) {
		st := openStore(t)
		seedCompetition(t, st, april1, april30)
		_, err := competitionService(st, &fakeLedger{chainID: ledger.ChainCelo}, nil).CollectCompetition(ctx, "usdglo7")
		assert.ErrorIs(t, err, ErrNoRewards)
	})

	t.Run("Stores records per reward once", func(t *testing.T) {
		st := openStore(t)
		c := seedCompetition(t, st, april1, april30, "daily", "bonus")
		svc := competitionService(st, &fakeLedger{chainID: ledger.ChainCelo}, nil)

		created, err := svc.CollectCompetition(ctx, "usdglo7")
		require.NoError(t, err)
		assert.Equal(t, 4, created)

		for _, r := range c.Rewards {
			var records []models.ProjectRecord
			require.NoError(t, st.DB().Where("reward_id = ?", r.ID).Find(&records).Error)
			require.Len(t, records, 2)
			assert.True(t, sumEarnings(records).Equal(r.Value))
		}

		_, err = svc.CollectCompetition(ctx, "usdglo7")
		assert.ErrorIs(t, err, store.ErrAlreadyRan)
	})
}

func TestSettleReward(t *testing.T) {
	ctx := context.Background()
	april1 := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	april30 := time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC)

	setup := func(t *testing.T, addresses map[string]string) (*Service, *fakeLedger, *recordingNotifier) {
		st := openStore(t)
		seedCompetition(t, st, april1, april30, "daily")
		l := &fakeLedger{chainID: ledger.ChainCelo}
		n := &recordingNotifier{}
		svc := competitionService(st, l, n)
		_, err := svc.CollectCompetition(ctx, "usdglo7")
		require.NoError(t, err)
		for token, addr := range addresses {
			require.NoError(t, st.DB().Model(&models.Project{}).Where("token = ?", token).Update("payout_address", addr).Error)
		}
		return svc, l, n
	}

	t.Run("Pays every record and reports", func(t *testing.T) {
		svc, l, n := setup(t, map[string]string{"NATURE": addrA, "REFI": addrB})

		res, err := svc.SettleReward(ctx, "usdglo7", "daily")
		require.NoError(t, err)
		assert.Equal(t, 2, res.Completed)
		assert.Equal(t, 2, res.Total)
		require.Len(t, l.transfers, 2)
		assert.True(t, l.transfers[0].Amount.Add(l.transfers[1].Amount).Equal(decimal.NewFromInt(100)))
		assert.Equal(t, []string{"2/2 payouts completed for 0x4f604735c1cf31399c6e711d5962b2b3e0225ad3 @ 42220."}, n.messages)

		payouts, err := svc.ListPayouts(ctx, "usdglo7", "daily")
		require.NoError(t, err)
		require.Len(t, payouts, 2)
		for _, p := range payouts {
			assert.True(t, p.Processed)
			require.NotNil(t, p.Hash)
		}

		res, err = svc.SettleReward(ctx, "usdglo7", "daily")
		require.NoError(t, err)
		assert.Equal(t, 0, res.Total)
		assert.Len(t, l.transfers, 2, "settled payouts are never paid twice")
	})

	t.Run("Invalid address aborts the batch", func(t *testing.T) {
		svc, l, _ := setup(t, map[string]string{"NATURE": addrA, "REFI": "0x12"})

		_, err := svc.SettleReward(ctx, "usdglo7", "daily")
		var businessErr *store.BusinessLogicError
		require.ErrorAs(t, err, &businessErr)
		assert.Empty(t, l.transfers)

		payouts, err := svc.ListPayouts(ctx, "usdglo7", "daily")
		require.NoError(t, err)
		assert.Empty(t, payouts)
	})

	t.Run("Unknown reward", func(t *testing.T) {
		svc, _, _ := setup(t, nil)
		_, err := svc.SettleReward(ctx, "usdglo7", "weekly")
		assert.ErrorIs(t, err, store.ErrRewardNotFound)
	})

	t.Run("Unsupported chain", func(t *testing.T) {
		svc, _, _ := setup(t, nil)
		svc.ledgers = ledger.NewRegistry()
		_, err := svc.SettleReward(ctx, "usdglo7", "daily")
		assert.True(t, errors.Is(err, ledger.ErrUnsupportedChain))
	})
}

func TestReleaseStuck(t *testing.T) {
	svc := NewService(openStore(t), Options{})
	_, err := svc.ReleaseStuck(context.Background(), 0, false)
	assert.Error(t, err)

	released, err := svc.ReleaseStuck(context.Background(), time.Hour, false)
	require.NoError(t, err)
	assert.Zero(t, released)
}
