// Package ledger defines the transfer capability each supported chain family provides.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// NativeToken is the token address sentinel for a chain's native asset.
const NativeToken = "native"

// Chain ids of the supported ledgers. Stellar and Solana use internal ids.
const (
	ChainOptimism int64 = 10
	ChainCelo     int64 = 42220
	ChainArbitrum int64 = 42161
	ChainStellar  int64 = 999
	ChainSolana   int64 = 101
)

var (
	ErrUnknownToken     = errors.New("unknown token")
	ErrInvalidAmount    = errors.New("invalid transfer amount")
	ErrInvalidAddress   = errors.New("invalid destination address")
	ErrUnsupportedChain = errors.New("unsupported chain")
)

// Transfer moves Amount (human units) of Token to To.
type Transfer struct {
	To     string
	Token  string
	Amount decimal.Decimal
}

// Ledger sends value on one chain from a single operator account.
type Ledger interface {
	Name() string
	ChainID() int64
	ValidateAddress(address string) bool
	// Transfer returns the transaction hash once the transfer is confirmed.
	Transfer(ctx context.Context, t Transfer) (string, error)
}

// BroadcastError reports a transfer that reached the network but whose
// outcome is unknown. The payout must not be retried automatically.
type BroadcastError struct {
	Hash string
	Err  error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("transfer %s broadcast but not confirmed: %v", e.Hash, e.Err)
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}

// Registry maps chain ids to ledgers.
type Registry struct {
	mu      sync.RWMutex
	ledgers map[int64]Ledger
}

func NewRegistry(ledgers ...Ledger) *Registry {
	r := &Registry{ledgers: make(map[int64]Ledger)}
	for _, l := range ledgers {
		r.Register(l)
	}
	return r
}

func (r *Registry) Register(l Ledger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[l.ChainID()] = l
}

// Get returns the ledger for chainID or ErrUnsupportedChain.
func (r *Registry) Get(chainID int64) (Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	return l, nil
}

// ChainIDs lists registered chains in ascending order.
func (r *Registry) ChainIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.ledgers))
	for id := range r.ledgers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return nil
}
