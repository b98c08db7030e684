package models

import "time"

// Project is a liquidity provider registered for a chain and dex.
type Project struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	Name          string    `gorm:"size:128;not null" json:"name"`
	Token         string    `gorm:"size:128;not null;uniqueIndex:idx_project_token_chain_dex" json:"token"`
	DisplayToken  string    `gorm:"size:128" json:"display_token"`
	ChainID       int64     `gorm:"not null;uniqueIndex:idx_project_token_chain_dex" json:"chain_id"`
	Dex           string    `gorm:"size:64;not null;uniqueIndex:idx_project_token_chain_dex" json:"dex"`
	PayoutAddress *string   `gorm:"size:128" json:"payout_address"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Project) TableName() string {
	return "project"
}
