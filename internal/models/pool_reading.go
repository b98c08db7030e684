package models

import "github.com/shopspring/decimal"

// PoolReading is one project's liquidity measurement as reported by a source.
// TVL is authoritative; the split fields refine the allocation weighting.
type PoolReading struct {
	Token                 string           `json:"token"`
	Dex                   string           `json:"dex"`
	TVL                   decimal.Decimal  `json:"tvl"`
	IncentiveTokenTVL     *decimal.Decimal `json:"incentive_token_tvl,omitempty"`
	ParticipatingTokenTVL *decimal.Decimal `json:"participating_token_tvl,omitempty"`
	ChainID               *int64           `json:"chain_id,omitempty"`
}

// PoolKey identifies a reading inside one run.
func (p PoolReading) PoolKey() string {
	return p.Dex + "/" + p.Token
}

// PoolReward is a PoolReading with its computed share of the budget.
type PoolReward struct {
	PoolReading
	Reward decimal.Decimal `json:"reward"`
}
