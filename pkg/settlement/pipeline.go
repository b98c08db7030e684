// Package settlement executes payouts against a ledger one at a time.
package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"liquidityreward/internal/models"
	"liquidityreward/pkg/ledger"
	"liquidityreward/pkg/metrics"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// PayoutStore persists payout state transitions.
type PayoutStore interface {
	ClaimPayout(ctx context.Context, id uint) (bool, error)
	MarkSettled(ctx context.Context, id uint, hash string) error
	MarkBroadcast(ctx context.Context, id uint, hash string) error
	ReleasePayout(ctx context.Context, id uint) error
}

// Failure describes a payout that did not complete in this run.
type Failure struct {
	PayoutID uint   `json:"payout_id"`
	Address  string `json:"address"`
	Hash     string `json:"hash,omitempty"`
	Error    string `json:"error"`
}

// Result counts completed payouts against the payouts this run was responsible for.
type Result struct {
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Failures  []Failure `json:"failures,omitempty"`
}

const (
	outcomeSettled   = "settled"
	outcomeFailed    = "failed"
	outcomeBroadcast = "broadcast"
	outcomeSkipped   = "skipped"
)

type Pipeline struct {
	store PayoutStore
	clock clockwork.Clock

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewPipeline(store PayoutStore, clock clockwork.Clock) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{store: store, clock: clock, locks: make(map[int64]*sync.Mutex)}
}

// ledgerLock returns the lock serializing batches on one chain's operator account.
func (p *Pipeline) ledgerLock(chainID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[chainID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[chainID] = lock
	}
	return lock
}

// Settle walks payouts sequentially. Processed payouts and non-positive
// values are excluded from Total; payouts held by another run are counted
// but not attempted. A failed transfer never stops the batch.
// Batches on the same chain run one after another.
func (p *Pipeline) Settle(ctx context.Context, payouts []models.Payout, l ledger.Ledger) Result {
	lock := p.ledgerLock(l.ChainID())
	lock.Lock()
	defer lock.Unlock()

	result := Result{Total: len(payouts)}

	for _, payout := range payouts {
		logger := log.WithFields(log.Fields{"payout_id": payout.ID, "ledger": l.Name()})

		if payout.Processed {
			logger.Info("payout already processed, skipping")
			result.Total--
			continue
		}
		if !payout.Value.IsPositive() {
			logger.Warnf("payout value %s is not positive, skipping", payout.Value)
			result.Total--
			continue
		}
		if payout.IsProcessing {
			logger.Warn("payout is being processed by another run, skipping")
			metrics.PayoutsTotal.WithLabelValues(l.Name(), outcomeSkipped).Inc()
			continue
		}

		claimed, err := p.store.ClaimPayout(ctx, payout.ID)
		if err != nil {
			logger.Errorf("failed to claim payout: %v", err)
			result.Failures = append(result.Failures, Failure{PayoutID: payout.ID, Address: payout.PayoutAddress, Error: err.Error()})
			continue
		}
		if !claimed {
			logger.Warn("payout was claimed by another run, skipping")
			metrics.PayoutsTotal.WithLabelValues(l.Name(), outcomeSkipped).Inc()
			continue
		}

		logger.Infof("processing payout of %s to %s", payout.Value, payout.PayoutAddress)
		start := p.clock.Now()
		hash, err := l.Transfer(ctx, ledger.Transfer{To: payout.PayoutAddress, Token: payout.TokenAddress, Amount: payout.Value})
		metrics.PayoutTransferDuration.WithLabelValues(l.Name()).Observe(p.clock.Since(start).Seconds())

		if err != nil {
			result.Failures = append(result.Failures, p.fail(ctx, logger, payout, err, l.Name()))
			continue
		}

		if err := p.store.MarkSettled(ctx, payout.ID, hash); err != nil {
			// The transfer went through; keep the payout in-flight so it is never paid twice.
			logger.WithField("hash", hash).Errorf("transfer succeeded but payout could not be marked settled: %v", err)
			result.Failures = append(result.Failures, Failure{PayoutID: payout.ID, Address: payout.PayoutAddress, Hash: hash, Error: err.Error()})
			metrics.PayoutsTotal.WithLabelValues(l.Name(), outcomeBroadcast).Inc()
			continue
		}
		logger.WithField("hash", hash).Info("payout completed")
		metrics.PayoutsTotal.WithLabelValues(l.Name(), outcomeSettled).Inc()
		result.Completed++
	}
	return result
}

func (p *Pipeline) fail(ctx context.Context, logger *log.Entry, payout models.Payout, err error, name string) Failure {
	failure := Failure{PayoutID: payout.ID, Address: payout.PayoutAddress, Error: err.Error()}

	var broadcast *ledger.BroadcastError
	if errors.As(err, &broadcast) {
		failure.Hash = broadcast.Hash
		logger.WithField("hash", broadcast.Hash).Errorf("payout broadcast but not confirmed, left in-flight: %v", err)
		if merr := p.store.MarkBroadcast(ctx, payout.ID, broadcast.Hash); merr != nil {
			logger.Errorf("failed to record broadcast hash: %v", merr)
		}
		metrics.PayoutsTotal.WithLabelValues(name, outcomeBroadcast).Inc()
		return failure
	}

	logger.Errorf("payout failed: %v", err)
	// Releasing must survive a cancelled run context.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if rerr := p.store.ReleasePayout(rctx, payout.ID); rerr != nil {
		logger.Errorf("failed to release payout: %v", rerr)
	}
	metrics.PayoutsTotal.WithLabelValues(name, outcomeFailed).Inc()
	return failure
}
