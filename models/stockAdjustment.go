package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockAdjustment is a single-line correction document, posted on creation.
type StockAdjustment struct {
	ID           int             `gorm:"primary_key" json:"id"`
	AdjustmentNo string          `gorm:"size:32;uniqueIndex" json:"adjustment_no"`
	LocationId   int             `gorm:"not null;index" json:"location_id"`
	BatchLotId   int             `gorm:"not null;index" json:"batch_lot_id"`
	QtyDelta     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_delta"`
	Reason       MovementReason  `gorm:"size:20;not null" json:"reason"`
	Note         string          `gorm:"size:255" json:"note"`
	MovementId   int             `json:"movement_id"`
	PostedBy     string          `gorm:"size:100" json:"posted_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewStockAdjustment struct {
	LocationId int             `json:"location_id" validate:"required,gt=0"`
	BatchLotId int             `json:"batch_lot_id" validate:"required,gt=0"`
	QtyDelta   decimal.Decimal `json:"qty_delta"`
	Reason     MovementReason  `json:"reason" validate:"required,oneof=ADJUSTMENT WRITE_OFF"`
	Note       string          `json:"note" validate:"max=255"`
}
