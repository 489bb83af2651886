package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type VendorReturn struct {
	ID         int                `gorm:"primary_key" json:"id"`
	ReturnNo   string             `gorm:"size:32;uniqueIndex" json:"return_no"`
	LocationId int                `gorm:"not null;index" json:"location_id"`
	VendorName string             `gorm:"size:255" json:"vendor_name"`
	ReturnDate time.Time          `gorm:"not null" json:"return_date"`
	Status     DocumentStatus     `gorm:"size:20;not null;default:DRAFT;index" json:"status"`
	PostedAt   *time.Time         `json:"posted_at"`
	PostedBy   string             `gorm:"size:100" json:"posted_by"`
	Lines      []VendorReturnLine `gorm:"foreignKey:VendorReturnId" json:"lines"`
	CreatedAt  time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type VendorReturnLine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	VendorReturnId int             `gorm:"not null;index" json:"vendor_return_id"`
	BatchLotId     int             `gorm:"not null;index" json:"batch_lot_id"`
	ProductId      int             `gorm:"not null" json:"product_id"`
	QtyBase        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_base"`
	Reason         string          `gorm:"size:255" json:"reason"`
}

type NewVendorReturn struct {
	LocationId int                   `json:"location_id" validate:"required,gt=0"`
	VendorName string                `json:"vendor_name"`
	ReturnDate *time.Time            `json:"return_date"`
	Lines      []NewVendorReturnLine `json:"lines" validate:"required,min=1,dive"`
}

type NewVendorReturnLine struct {
	BatchLotId int             `json:"batch_lot_id" validate:"required,gt=0"`
	QtyBase    decimal.Decimal `json:"qty_base" validate:"gt=0"`
	Reason     string          `json:"reason" validate:"max=255"`
}

func CreateVendorReturn(ctx context.Context, db *gorm.DB, input *NewVendorReturn) (*VendorReturn, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewValidationError(err)
	}
	if err := ensureExists[Location](ctx, db, "location", []int{input.LocationId}); err != nil {
		return nil, err
	}
	lines := make([]VendorReturnLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		lot, err := GetBatchLot(ctx, db, l.BatchLotId)
		if err != nil {
			return nil, err
		}
		lines = append(lines, VendorReturnLine{BatchLotId: lot.ID, ProductId: lot.ProductId, QtyBase: l.QtyBase, Reason: l.Reason})
	}

	returnNo, err := GetDocNumberSource().Next(ctx, DocTypeVendorReturn)
	if err != nil {
		return nil, err
	}
	returnDate := utils.Today()
	if input.ReturnDate != nil {
		returnDate = utils.ToDate(*input.ReturnDate)
	}
	vr := VendorReturn{
		ReturnNo:   returnNo,
		LocationId: input.LocationId,
		VendorName: input.VendorName,
		ReturnDate: returnDate,
		Status:     DocumentStatusDraft,
		Lines:      lines,
	}
	if err := db.WithContext(ctx).Create(&vr).Error; err != nil {
		return nil, err
	}
	return &vr, nil
}

func GetVendorReturn(ctx context.Context, db *gorm.DB, id int) (*VendorReturn, error) {
	vr, err := utils.FetchModel[VendorReturn](ctx, db, id, "Lines")
	if err != nil {
		return nil, WrapNotFound(err, "vendor return", id)
	}
	return vr, nil
}
