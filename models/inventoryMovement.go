package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryMovement is one signed quantity delta for a (location, batch lot) pair.
// Stock on hand is the sum of these rows; rows are never updated or deleted.
type InventoryMovement struct {
	ID            int             `gorm:"primary_key" json:"id"`
	LocationId    int             `gorm:"not null;index:idx_movement_stock,priority:1" json:"location_id"`
	BatchLotId    int             `gorm:"not null;index:idx_movement_stock,priority:2" json:"batch_lot_id"`
	ProductId     int             `gorm:"not null;index" json:"product_id"`
	QtyChangeBase decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_change_base"`
	Reason        MovementReason  `gorm:"size:20;not null;index" json:"reason"`
	RefDocType    RefDocType      `gorm:"size:10;index:idx_movement_ref,priority:1" json:"ref_doc_type"`
	RefDocId      int             `gorm:"index:idx_movement_ref,priority:2" json:"ref_doc_id"`
	RefLineId     int             `json:"ref_line_id"`
	Note          string          `gorm:"size:255" json:"note"`
	ActorId       int             `json:"actor_id"`
	ActorName     string          `gorm:"size:100" json:"actor_name"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (m *InventoryMovement) BeforeCreate(tx *gorm.DB) error {
	if !m.Reason.IsValid() {
		return &ValidationError{Field: "reason", Detail: "unknown movement reason " + string(m.Reason)}
	}
	if m.QtyChangeBase.IsZero() {
		return &ValidationError{Field: "qty_change_base", Detail: "must not be zero", Err: ErrInvalidQuantity}
	}
	if m.LocationId <= 0 || m.BatchLotId <= 0 {
		return &ValidationError{Field: "location_id,batch_lot_id", Detail: "are required"}
	}
	return nil
}

func (m *InventoryMovement) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

func (m *InventoryMovement) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}
