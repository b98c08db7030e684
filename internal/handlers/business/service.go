package business

import (
	"context"
	"errors"
	"time"

	"liquidityreward/internal/store"
	"liquidityreward/pkg/ledger"
	"liquidityreward/pkg/settlement"
	"liquidityreward/pkg/sources"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownChain        = errors.New("unknown chain")
	ErrCompetitionInactive = errors.New("competition is not active")
	ErrNoRewards           = errors.New("competition has no rewards")
)

// ChainProgram is a chain-wide daily incentive program.
type ChainProgram struct {
	Name          string
	ChainID       int64
	MonthlyBudget decimal.Decimal
	Sources       []sources.Source
}

// Notifier delivers operator messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Service runs the collection and settlement jobs.
type Service struct {
	store              *store.Store
	allocator          *Allocator
	ledgers            *ledger.Registry
	pipeline           *settlement.Pipeline
	notifier           Notifier
	chains             map[string]ChainProgram
	competitionSources []sources.Source
	sourceTimeout      time.Duration
}

type Options struct {
	Allocator          *Allocator
	Ledgers            *ledger.Registry
	Notifier           Notifier
	Chains             []ChainProgram
	CompetitionSources []sources.Source
	SourceTimeout      time.Duration
}

func NewService(st *store.Store, opts Options) *Service {
	if opts.Allocator == nil {
		opts.Allocator = defaultAllocator
	}
	if opts.Ledgers == nil {
		opts.Ledgers = ledger.NewRegistry()
	}
	chains := make(map[string]ChainProgram, len(opts.Chains))
	for _, c := range opts.Chains {
		chains[c.Name] = c
	}
	return &Service{
		store:              st,
		allocator:          opts.Allocator,
		ledgers:            opts.Ledgers,
		pipeline:           settlement.NewPipeline(st, nil),
		notifier:           opts.Notifier,
		chains:             chains,
		competitionSources: opts.CompetitionSources,
		sourceTimeout:      opts.SourceTimeout,
	}
}

// Store exposes the snapshot store used by the service.
func (s *Service) Store() *store.Store {
	return s.store
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Notify(ctx, text)
}
