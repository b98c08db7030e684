package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLedger struct {
	chainID int64
}

func (s stubLedger) Name() string { return fmt.Sprintf("stub-%d", s.chainID) }
func (s stubLedger) ChainID() int64 { return s.chainID }
func (s stubLedger) ValidateAddress(string) bool { return true }
func (s stubLedger) Transfer(context.Context, Transfer) (string, error) {
	return "0x1", nil
}

type statusErr int

func (e statusErr) Error() string { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubLedger{ChainCelo}, stubLedger{ChainOptimism})
	r.Register(stubLedger{ChainStellar})

	l, err := r.Get(ChainCelo)
	require.NoError(t, err)
	assert.Equal(t, "stub-42220", l.Name())

	_, err = r.Get(1)
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	assert.Equal(t, []int64{ChainOptimism, ChainStellar, ChainCelo}, r.ChainIDs())
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("0.000001")))
	assert.ErrorIs(t, ValidateAmount(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, ValidateAmount(decimal.NewFromInt(-3)), ErrInvalidAmount)
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout message", errors.New("request timeout"), true},
		{"throttled", statusErr(429), true},
		{"server error", statusErr(502), true},
		{"bad request", statusErr(400), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"permanent", backoff.Permanent(errors.New("timeout")), false},
		{"broadcast", &BroadcastError{Hash: "0x1", Err: errors.New("timeout")}, false},
		{"wrapped", fmt.Errorf("send: %w", statusErr(503)), true},
		{"insufficient funds", errors.New("insufficient funds for gas"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{MaxAttempts: 3, Base: time.Millisecond}

	t.Run("Retries transient errors up to the limit", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, "test", func(int) error {
			calls++
			return errors.New("connection reset by peer")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Stops on success", func(t *testing.T) {
		var seen []int
		err := policy.Do(ctx, "test", func(attempt int) error {
			seen = append(seen, attempt)
			if attempt < 2 {
				return errors.New("timeout")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, seen)
	})

	t.Run("Does not retry permanent errors", func(t *testing.T) {
		calls := 0
		rejected := errors.New("tx_bad_seq")
		err := policy.Do(ctx, "test", func(int) error {
			calls++
			return rejected
		})
		assert.ErrorIs(t, err, rejected)
		assert.Equal(t, 1, calls)
	})

	t.Run("Linear delays", func(t *testing.T) {
		b := &linearBackOff{base: 2 * time.Second}
		assert.Equal(t, 2*time.Second, b.NextBackOff())
		assert.Equal(t, 4*time.Second, b.NextBackOff())
		b.Reset()
		assert.Equal(t, 2*time.Second, b.NextBackOff())
	})
}
