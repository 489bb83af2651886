package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransferVoucher struct {
	ID             int            `gorm:"primary_key" json:"id"`
	TransferNo     string         `gorm:"size:32;uniqueIndex" json:"transfer_no"`
	FromLocationId int            `gorm:"not null;index" json:"from_location_id"`
	ToLocationId   int            `gorm:"not null;index" json:"to_location_id"`
	TransferDate   time.Time      `gorm:"not null" json:"transfer_date"`
	Status         TransferStatus `gorm:"size:20;not null;default:DRAFT;index" json:"status"`
	Note           string         `gorm:"type:text" json:"note"`
	DispatchedAt   *time.Time     `json:"dispatched_at"`
	ReceivedAt     *time.Time     `json:"received_at"`
	CancelledAt    *time.Time     `json:"cancelled_at"`
	Lines          []TransferLine `gorm:"foreignKey:TransferVoucherId" json:"lines"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type TransferLine struct {
	ID                int             `gorm:"primary_key" json:"id"`
	TransferVoucherId int             `gorm:"not null;index" json:"transfer_voucher_id"`
	BatchLotId        int             `gorm:"not null;index" json:"batch_lot_id"`
	ProductId         int             `gorm:"not null" json:"product_id"`
	QtyBase           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_base"`
}

type NewTransferVoucher struct {
	FromLocationId int               `json:"from_location_id" validate:"required,gt=0"`
	ToLocationId   int               `json:"to_location_id" validate:"required,gt=0,nefield=FromLocationId"`
	TransferDate   *time.Time        `json:"transfer_date"`
	Note           string            `json:"note"`
	Lines          []NewTransferLine `json:"lines" validate:"required,min=1,dive"`
}

type NewTransferLine struct {
	BatchLotId int             `json:"batch_lot_id" validate:"required,gt=0"`
	QtyBase    decimal.Decimal `json:"qty_base" validate:"gt=0"`
}

func CreateTransferVoucher(ctx context.Context, db *gorm.DB, input *NewTransferVoucher) (*TransferVoucher, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewValidationError(err)
	}
	if err := ensureExists[Location](ctx, db, "location", []int{input.FromLocationId, input.ToLocationId}); err != nil {
		return nil, err
	}
	lines := make([]TransferLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		lot, err := GetBatchLot(ctx, db, l.BatchLotId)
		if err != nil {
			return nil, err
		}
		lines = append(lines, TransferLine{BatchLotId: lot.ID, ProductId: lot.ProductId, QtyBase: l.QtyBase})
	}

	transferNo, err := GetDocNumberSource().Next(ctx, DocTypeTransferVoucher)
	if err != nil {
		return nil, err
	}
	transferDate := utils.Today()
	if input.TransferDate != nil {
		transferDate = utils.ToDate(*input.TransferDate)
	}
	voucher := TransferVoucher{
		TransferNo:     transferNo,
		FromLocationId: input.FromLocationId,
		ToLocationId:   input.ToLocationId,
		TransferDate:   transferDate,
		Status:         TransferStatusDraft,
		Note:           input.Note,
		Lines:          lines,
	}
	if err := db.WithContext(ctx).Create(&voucher).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

func GetTransferVoucher(ctx context.Context, db *gorm.DB, id int) (*TransferVoucher, error) {
	voucher, err := utils.FetchModel[TransferVoucher](ctx, db, id, "Lines")
	if err != nil {
		return nil, WrapNotFound(err, "transfer voucher", id)
	}
	return voucher, nil
}

// HasTransferIn reports whether the voucher line was already received into the destination.
func HasTransferIn(ctx context.Context, tx *gorm.DB, voucherId int, lineId int) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&InventoryMovement{}).
		Where("ref_doc_type = ? AND ref_doc_id = ? AND ref_line_id = ? AND reason = ?",
			RefDocTransferVoucher, voucherId, lineId, MovementReasonTransferIn).
		Count(&count).Error
	return count > 0, err
}
