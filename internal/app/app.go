// Package app assembles the reward service from settings.
package app

import (
	"context"
	"fmt"

	"liquidityreward/internal/handlers/business"
	"liquidityreward/internal/store"
	"liquidityreward/pkg/config"
	"liquidityreward/pkg/ledger"
	"liquidityreward/pkg/ledger/evm"
	"liquidityreward/pkg/ledger/solana"
	"liquidityreward/pkg/ledger/stellar"
	"liquidityreward/pkg/notify"
	"liquidityreward/pkg/sources"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewService wires ledgers, sources and the notifier around db.
func NewService(ctx context.Context, s *config.Settings, db *gorm.DB) (*business.Service, error) {
	ledgers, err := Ledgers(ctx, s)
	if err != nil {
		return nil, err
	}
	return business.NewService(store.New(db, clockwork.NewRealClock()), business.Options{
		Allocator:          business.NewAllocator(s.FullIncentiveTokens),
		Ledgers:            ledgers,
		Notifier:           notify.New(s.SlackWebhook),
		Chains:             ChainPrograms(s),
		CompetitionSources: CompetitionSources(s),
		SourceTimeout:      s.SourceTimeout,
	}), nil
}

// Ledgers registers a ledger for every chain with an endpoint configured.
// A configured chain without an operator key is an error.
func Ledgers(ctx context.Context, s *config.Settings) (*ledger.Registry, error) {
	registry := ledger.NewRegistry()

	for _, c := range s.Chains {
		if c.RPCURL == "" {
			continue
		}
		l, err := evm.Dial(ctx, evm.Config{
			Name:       c.Name,
			ChainID:    c.ChainID,
			RPCURL:     c.RPCURL,
			PrivateKey: c.PrivateKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%s ledger: %w", c.Name, err)
		}
		registry.Register(l)
		log.WithFields(log.Fields{"chain": c.Name, "operator": l.Address()}).Info("ledger registered")
	}

	if s.Stellar.Secret != "" {
		l, err := stellar.Dial(stellar.Config{HorizonURL: s.Stellar.HorizonURL, Secret: s.Stellar.Secret})
		if err != nil {
			return nil, fmt.Errorf("stellar ledger: %w", err)
		}
		registry.Register(l)
		log.WithFields(log.Fields{"chain": "stellar", "operator": l.Address()}).Info("ledger registered")
	}

	if s.Solana.RPCURL != "" {
		tokens := make([]solana.Token, 0, len(s.Solana.Tokens))
		for _, t := range s.Solana.Tokens {
			tokens = append(tokens, solana.Token{Mint: t.Mint, Decimals: t.Decimals})
		}
		l, err := solana.Dial(solana.Config{
			RPCURL:           s.Solana.RPCURL,
			PrivateKey:       s.Solana.PrivateKey,
			KeystoreDir:      s.Solana.KeystoreDir,
			KeystoreAddress:  s.Solana.KeystoreAddress,
			KeystorePassword: s.Solana.KeystorePassword,
			Tokens:           tokens,
		})
		if err != nil {
			return nil, fmt.Errorf("solana ledger: %w", err)
		}
		registry.Register(l)
		log.WithFields(log.Fields{"chain": "solana", "operator": l.Address()}).Info("ledger registered")
	}

	return registry, nil
}

// ChainPrograms builds the daily programs: one per EVM chain with pools, plus
// the Stellar Blend program when it has a budget.
func ChainPrograms(s *config.Settings) []business.ChainProgram {
	var programs []business.ChainProgram
	for _, c := range s.Chains {
		if len(c.Pools) == 0 {
			continue
		}
		programs = append(programs, business.ChainProgram{
			Name:          c.Name,
			ChainID:       c.ChainID,
			MonthlyBudget: c.MonthlyBudget,
			Sources:       []sources.Source{sources.NewDexScreener(c.Name, s.IncentiveToken, c.Dex, c.Pools)},
		})
	}
	if s.Stellar.MonthlyBudget.IsPositive() {
		programs = append(programs, business.ChainProgram{
			Name:          "stellar",
			ChainID:       ledger.ChainStellar,
			MonthlyBudget: s.Stellar.MonthlyBudget,
			Sources:       []sources.Source{sources.NewStellarExpert(s.Stellar.BlendContract)},
		})
	}
	return programs
}

// CompetitionSources reads competition pools on Celo.
func CompetitionSources(s *config.Settings) []sources.Source {
	if len(s.CompetitionPools) == 0 {
		return nil
	}
	return []sources.Source{sources.NewDexScreener("celo", s.IncentiveToken, "uniswap", s.CompetitionPools)}
}
