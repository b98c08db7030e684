package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectRecord is the daily allocation snapshot of one project.
// Scope is the period key ("chain:<id>" or "reward:<id>"); together with
// dex, token and date it is unique, which is what makes a run idempotent.
type ProjectRecord struct {
	ID                    uint            `gorm:"primarykey" json:"id"`
	Scope                 string          `gorm:"size:32;not null;uniqueIndex:idx_record_scope_pool_date,priority:1" json:"scope"`
	ProjectDex            string          `gorm:"size:64;not null;uniqueIndex:idx_record_scope_pool_date,priority:2" json:"project_dex"`
	ProjectToken          string          `gorm:"size:128;not null;uniqueIndex:idx_record_scope_pool_date,priority:3" json:"project_token"`
	Date                  time.Time       `gorm:"not null;uniqueIndex:idx_record_scope_pool_date,priority:4;index" json:"date"`
	ProjectChainID        int64           `gorm:"not null;index" json:"project_chain_id"`
	RewardID              *uint           `gorm:"index" json:"reward_id"`
	TVL                   decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"tvl"`
	IncentiveTokenTVL     decimal.Decimal `gorm:"type:decimal(38,18)" json:"incentive_token_tvl"`
	ParticipatingTokenTVL decimal.Decimal `gorm:"type:decimal(38,18)" json:"participating_token_tvl"`
	Earnings              decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"earnings"`
	CurrentMonthEarnings  decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"current_month_earnings"`
	CreatedAt             time.Time       `json:"created_at" gorm:"autoCreateTime"`

	Reward *Reward `gorm:"foreignKey:RewardID" json:"reward,omitempty"`
}

func (ProjectRecord) TableName() string {
	return "project_record"
}

// PoolKey matches PoolReading.PoolKey.
func (r ProjectRecord) PoolKey() string {
	return r.ProjectDex + "/" + r.ProjectToken
}
