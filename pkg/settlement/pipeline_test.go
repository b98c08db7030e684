package settlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"liquidityreward/internal/models"
	"liquidityreward/pkg/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu        sync.Mutex
	claimed   map[uint]bool
	settled   map[uint]string
	broadcast map[uint]string
	released  []uint
	taken     map[uint]bool
}

func newMemStore() *memStore {
	return &memStore{
		claimed:   map[uint]bool{},
		settled:   map[uint]string{},
		broadcast: map[uint]string{},
		taken:     map[uint]bool{},
	}
}

func (m *memStore) ClaimPayout(_ context.Context, id uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken[id] || m.claimed[id] {
		return false, nil
	}
	m.claimed[id] = true
	return true, nil
}

func (m *memStore) MarkSettled(_ context.Context, id uint, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled[id] = hash
	m.claimed[id] = false
	return nil
}

func (m *memStore) MarkBroadcast(_ context.Context, id uint, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast[id] = hash
	return nil
}

func (m *memStore) ReleasePayout(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimed[id] = false
	m.released = append(m.released, id)
	return nil
}

type fakeLedger struct {
	errs      map[string]error
	transfers []ledger.Transfer
}

func (f *fakeLedger) Name() string { return "fake" }
func (f *fakeLedger) ChainID() int64 { return ledger.ChainCelo }
func (f *fakeLedger) ValidateAddress(a string) bool { return a != "" }

func (f *fakeLedger) Transfer(_ context.Context, t ledger.Transfer) (string, error) {
	f.transfers = append(f.transfers, t)
	if err := f.errs[t.To]; err != nil {
		return "", err
	}
	return "hash-" + t.To, nil
}

func payout(id uint, to, value string) models.Payout {
	return models.Payout{ID: id, PayoutAddress: to, TokenAddress: "0xglo", Value: decimal.RequireFromString(value)}
}

func TestSettle(t *testing.T) {
	ctx := context.Background()

	t.Run("Settles every pending payout", func(t *testing.T) {
		store := newMemStore()
		l := &fakeLedger{}
		res := NewPipeline(store, nil).Settle(ctx, []models.Payout{payout(1, "a", "10"), payout(2, "b", "5.5")}, l)

		assert.Equal(t, 2, res.Completed)
		assert.Equal(t, 2, res.Total)
		assert.Empty(t, res.Failures)
		assert.Equal(t, map[uint]string{1: "hash-a", 2: "hash-b"}, store.settled)
		require.Len(t, l.transfers, 2)
		assert.Equal(t, ledger.Transfer{To: "b", Token: "0xglo", Amount: decimal.RequireFromString("5.5")}, l.transfers[1])
	})

	t.Run("Processed and empty payouts leave the total", func(t *testing.T) {
		done := payout(1, "a", "10")
		done.Processed = true
		res := NewPipeline(newMemStore(), nil).Settle(ctx, []models.Payout{done, payout(2, "b", "0"), payout(3, "c", "-1"), payout(4, "d", "1")}, &fakeLedger{})

		assert.Equal(t, 1, res.Completed)
		assert.Equal(t, 1, res.Total)
	})

	t.Run("Stuck in-flight payout is skipped", func(t *testing.T) {
		stuck := payout(1, "a", "10")
		stuck.IsProcessing = true
		l := &fakeLedger{}
		res := NewPipeline(newMemStore(), nil).Settle(ctx, []models.Payout{stuck, payout(2, "b", "3")}, l)

		assert.Equal(t, 1, res.Completed)
		assert.Equal(t, 2, res.Total)
		require.Len(t, l.transfers, 1)
		assert.Equal(t, "b", l.transfers[0].To)
	})

	t.Run("Payout claimed elsewhere is skipped", func(t *testing.T) {
		store := newMemStore()
		store.taken[1] = true
		l := &fakeLedger{}
		res := NewPipeline(store, nil).Settle(ctx, []models.Payout{payout(1, "a", "10")}, l)

		assert.Equal(t, 0, res.Completed)
		assert.Equal(t, 1, res.Total)
		assert.Empty(t, l.transfers)
	})

	t.Run("A failure does not stop the batch", func(t *testing.T) {
		store := newMemStore()
		l := &fakeLedger{errs: map[string]error{"b": errors.New("insufficient funds")}}
		res := NewPipeline(store, nil).Settle(ctx, []models.Payout{payout(1, "a", "1"), payout(2, "b", "1"), payout(3, "c", "1")}, l)

		assert.Equal(t, 2, res.Completed)
		assert.Equal(t, 3, res.Total)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, uint(2), res.Failures[0].PayoutID)
		assert.Equal(t, []uint{2}, store.released)
		assert.Len(t, l.transfers, 3)
	})

	t.Run("Unconfirmed transfer stays in-flight", func(t *testing.T) {
		store := newMemStore()
		l := &fakeLedger{errs: map[string]error{"a": &ledger.BroadcastError{Hash: "0xabc", Err: context.DeadlineExceeded}}}
		res := NewPipeline(store, nil).Settle(ctx, []models.Payout{payout(1, "a", "1")}, l)

		assert.Equal(t, 0, res.Completed)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, "0xabc", res.Failures[0].Hash)
		assert.Equal(t, "0xabc", store.broadcast[1])
		assert.Empty(t, store.released)
		assert.True(t, store.claimed[1])
	})
}

// slowLedger records how many transfers overlap.
type slowLedger struct {
	active  int32
	maxSeen int32
}

func (s *slowLedger) Name() string { return "slow" }
func (s *slowLedger) ChainID() int64 { return ledger.ChainCelo }
func (s *slowLedger) ValidateAddress(a string) bool { return a != "" }

func (s *slowLedger) Transfer(_ context.Context, t ledger.Transfer) (string, error) {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&s.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return "hash-" + t.To, nil
}

func TestSettleSerializesLedger(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline(newMemStore(), nil)
	l := &slowLedger{}

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			base := uint(i * 10)
			results[i] = p.Settle(ctx, []models.Payout{payout(base+1, "a", "1"), payout(base+2, "b", "1")}, l)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&l.maxSeen))
	assert.Equal(t, 2, results[0].Completed)
	assert.Equal(t, 2, results[1].Completed)
}
