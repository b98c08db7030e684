package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_USER", "reward")
	t.Setenv("DB_NAME", "rewards")
	t.Setenv("CELO_RPC_URL", "https://forno.celo.org")
	t.Setenv("CELO_MONTHLY_BUDGET", "3000")
	t.Setenv("CELO_POOLS", "0xAbc, 0xdef,")
	t.Setenv("SOLANA_TOKENS", "4F6PM96JJxngmHnZLBh9n58RH4aTVNWvDs2nuwrT5BP7:6")
	t.Setenv("SOURCE_TIMEOUT", "10s")
	t.Setenv("MIGRATE_ON_START", "true")

	s, err := Load(t.TempDir() + "/missing.env")
	require.NoError(t, err)

	assert.Equal(t, "localhost", s.DBHost)
	assert.Contains(t, s.DSN(), "dbname=rewards")
	assert.Contains(t, s.DSN(), "TimeZone=UTC")
	assert.True(t, s.MigrateOnStart)
	assert.Equal(t, 10*time.Second, s.SourceTimeout)
	assert.Equal(t, []string{"refi"}, s.FullIncentiveTokens)

	require.Len(t, s.Chains, 3)
	celo := s.Chains[0]
	assert.Equal(t, int64(42220), celo.ChainID)
	assert.True(t, celo.MonthlyBudget.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, []string{"0xabc", "0xdef"}, celo.Pools)
	assert.Equal(t, "uniswap", celo.Dex)

	require.Len(t, s.Solana.Tokens, 1)
	assert.Equal(t, uint8(6), s.Solana.Tokens[0].Decimals)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("budget", func(t *testing.T) {
		t.Setenv("OPTIMISM_MONTHLY_BUDGET", "lots")
		_, err := Load(t.TempDir() + "/missing.env")
		assert.ErrorContains(t, err, "OPTIMISM_MONTHLY_BUDGET")
	})

	t.Run("solana tokens", func(t *testing.T) {
		t.Setenv("SOLANA_TOKENS", "mint-without-decimals")
		_, err := Load(t.TempDir() + "/missing.env")
		assert.ErrorContains(t, err, "SOLANA_TOKENS")
	})
}
