package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Competition groups one or more rewards over a date window.
type Competition struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Slug      string    `gorm:"size:64;not null;uniqueIndex" json:"slug"`
	Name      string    `gorm:"size:128" json:"name"`
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Rewards []Reward `gorm:"foreignKey:CompetitionID" json:"rewards"`
}

func (Competition) TableName() string {
	return "competition"
}

// IsActiveOn compares UTC calendar dates, inclusive on both ends.
func (c Competition) IsActiveOn(t time.Time) bool {
	day := t.UTC().Format("2006-01-02")
	return c.StartDate.UTC().Format("2006-01-02") <= day && day <= c.EndDate.UTC().Format("2006-01-02")
}

// Reward defines the per-period budget and the ledger it is paid on.
type Reward struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	CompetitionID uint            `gorm:"not null;uniqueIndex:idx_reward_competition_name" json:"competition_id"`
	Name          string          `gorm:"size:64;not null;uniqueIndex:idx_reward_competition_name" json:"name"`
	Value         decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"value"`
	TokenAddress  string          `gorm:"size:128;not null" json:"token_address"`
	ChainID       int64           `gorm:"not null" json:"chain_id"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`

	Competition *Competition `gorm:"foreignKey:CompetitionID" json:"competition,omitempty"`
}

func (Reward) TableName() string {
	return "reward"
}
