package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payout is the intent to transfer one record's earnings.
// pending: !Processed && !IsProcessing; in-flight: IsProcessing; settled: Processed with Hash.
type Payout struct {
	ID              uint            `gorm:"primarykey" json:"id"`
	ProjectRecordID uint            `gorm:"not null;uniqueIndex" json:"project_record_id"`
	PayoutAddress   string          `gorm:"size:128;not null" json:"payout_address"`
	TokenAddress    string          `gorm:"size:128;not null" json:"token_address"`
	Value           decimal.Decimal `gorm:"type:decimal(38,18);not null" json:"value"`
	Processed       bool            `gorm:"not null;default:false" json:"processed"`
	IsProcessing    bool            `gorm:"not null;default:false" json:"is_processing"`
	Hash            *string         `gorm:"size:128" json:"hash"`
	ProcessingAt    *time.Time      `json:"processing_at"`
	ProcessedAt     *time.Time      `json:"processed_at"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	ProjectRecord *ProjectRecord `gorm:"foreignKey:ProjectRecordID" json:"project_record,omitempty"`
}

func (Payout) TableName() string {
	return "payout"
}
