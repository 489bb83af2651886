package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GoodsReceipt struct {
	ID              int                `gorm:"primary_key" json:"id"`
	GrnNo           string             `gorm:"size:32;uniqueIndex" json:"grn_no"`
	PurchaseOrderId *int               `gorm:"index" json:"purchase_order_id"`
	LocationId      int                `gorm:"not null;index" json:"location_id"`
	ReceivedDate    time.Time          `gorm:"not null" json:"received_date"`
	Status          DocumentStatus     `gorm:"size:20;not null;default:DRAFT;index" json:"status"`
	SupplierRef     string             `gorm:"size:100" json:"supplier_ref"`
	PostedAt        *time.Time         `json:"posted_at"`
	PostedBy        string             `gorm:"size:100" json:"posted_by"`
	Lines           []GoodsReceiptLine `gorm:"foreignKey:GoodsReceiptId" json:"lines"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type GoodsReceiptLine struct {
	ID                  int              `gorm:"primary_key" json:"id"`
	GoodsReceiptId      int              `gorm:"not null;index" json:"goods_receipt_id"`
	PurchaseOrderLineId *int             `gorm:"index" json:"purchase_order_line_id"`
	ProductId           int              `gorm:"not null;index" json:"product_id"`
	BatchNo             string           `gorm:"size:64;not null" json:"batch_no"`
	MfgDate             *time.Time       `json:"mfg_date"`
	ExpiryDate          time.Time        `gorm:"not null" json:"expiry_date"`
	Quantity            decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"quantity"`
	QuantityUom         string           `gorm:"size:32;not null" json:"quantity_uom"`
	TabletsPerStrip     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"tablets_per_strip"`
	StripsPerBox        *decimal.Decimal `gorm:"type:decimal(20,4)" json:"strips_per_box"`
	ConversionFactor    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"conversion_factor"`
	QtyPacks            decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"qty_packs"`
	QtyBase             decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"qty_base"`
	UnitCost            decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Mrp                 decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"mrp"`
	BatchLotId          *int             `gorm:"index" json:"batch_lot_id"`
}

// ConversionFor builds the UOM conversion for this line; packaging entered on the line wins
// over the product master.
func (l *GoodsReceiptLine) ConversionFor(p *Product) ConversionInput {
	in := p.ProductConversion(l.Quantity, l.QuantityUom)
	if l.TabletsPerStrip != nil {
		in.TabletsPerStrip = l.TabletsPerStrip
	}
	if l.StripsPerBox != nil {
		in.StripsPerBox = l.StripsPerBox
	}
	return in
}

type NewGoodsReceipt struct {
	PurchaseOrderId *int                  `json:"purchase_order_id"`
	LocationId      int                   `json:"location_id" validate:"required,gt=0"`
	ReceivedDate    *time.Time            `json:"received_date"`
	SupplierRef     string                `json:"supplier_ref"`
	Lines           []NewGoodsReceiptLine `json:"lines" validate:"required,min=1,dive"`
}

type NewGoodsReceiptLine struct {
	PurchaseOrderLineId *int             `json:"purchase_order_line_id"`
	ProductId           int              `json:"product_id" validate:"required,gt=0"`
	BatchNo             string           `json:"batch_no" validate:"required,max=64"`
	MfgDate             *time.Time       `json:"mfg_date"`
	ExpiryDate          time.Time        `json:"expiry_date" validate:"required"`
	Quantity            decimal.Decimal  `json:"quantity" validate:"gt=0"`
	QuantityUom         string           `json:"quantity_uom" validate:"required"`
	TabletsPerStrip     *decimal.Decimal `json:"tablets_per_strip"`
	StripsPerBox        *decimal.Decimal `json:"strips_per_box"`
	UnitCost            decimal.Decimal  `json:"unit_cost" validate:"gte=0"`
	Mrp                 decimal.Decimal  `json:"mrp" validate:"gte=0"`
}

// CreateGoodsReceipt stores a DRAFT receipt. Quantities are converted when posting.
func CreateGoodsReceipt(ctx context.Context, db *gorm.DB, input *NewGoodsReceipt) (*GoodsReceipt, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewValidationError(err)
	}
	if err := ensureExists[Location](ctx, db, "location", []int{input.LocationId}); err != nil {
		return nil, err
	}
	if input.PurchaseOrderId != nil {
		if err := ensureExists[PurchaseOrder](ctx, db, "purchase order", []int{*input.PurchaseOrderId}); err != nil {
			return nil, err
		}
	}
	productIds := make([]int, 0, len(input.Lines))
	for _, l := range input.Lines {
		productIds = append(productIds, l.ProductId)
		if l.PurchaseOrderLineId != nil && input.PurchaseOrderId == nil {
			return nil, &ValidationError{Field: "purchase_order_id", Detail: "is required when lines reference purchase order lines"}
		}
	}
	if err := ensureExists[Product](ctx, db, "product", productIds); err != nil {
		return nil, err
	}

	grnNo, err := GetDocNumberSource().Next(ctx, DocTypeGoodsReceipt)
	if err != nil {
		return nil, err
	}
	received := utils.Today()
	if input.ReceivedDate != nil {
		received = utils.ToDate(*input.ReceivedDate)
	}
	grn := GoodsReceipt{
		GrnNo:           grnNo,
		PurchaseOrderId: input.PurchaseOrderId,
		LocationId:      input.LocationId,
		ReceivedDate:    received,
		Status:          DocumentStatusDraft,
		SupplierRef:     input.SupplierRef,
	}
	for _, l := range input.Lines {
		grn.Lines = append(grn.Lines, GoodsReceiptLine{
			PurchaseOrderLineId: l.PurchaseOrderLineId,
			ProductId:           l.ProductId,
			BatchNo:             l.BatchNo,
			MfgDate:             l.MfgDate,
			ExpiryDate:          utils.ToDate(l.ExpiryDate),
			Quantity:            l.Quantity,
			QuantityUom:         l.QuantityUom,
			TabletsPerStrip:     l.TabletsPerStrip,
			StripsPerBox:        l.StripsPerBox,
			UnitCost:            l.UnitCost,
			Mrp:                 l.Mrp,
		})
	}
	if err := db.WithContext(ctx).Create(&grn).Error; err != nil {
		return nil, err
	}
	return &grn, nil
}

func GetGoodsReceipt(ctx context.Context, db *gorm.DB, id int) (*GoodsReceipt, error) {
	grn, err := utils.FetchModel[GoodsReceipt](ctx, db, id, "Lines")
	if err != nil {
		return nil, WrapNotFound(err, "goods receipt", id)
	}
	return grn, nil
}

// ReceivedBaseForLines sums qty_base of POSTED receipt lines per purchase order line.
func ReceivedBaseForLines(ctx context.Context, tx *gorm.DB, poLineIds []int) (map[int]decimal.Decimal, error) {
	out := make(map[int]decimal.Decimal)
	if len(poLineIds) == 0 {
		return out, nil
	}
	type row struct {
		PurchaseOrderLineId int
		QtyBase             decimal.Decimal
	}
	var rows []row
	err := tx.WithContext(ctx).
		Table("goods_receipt_lines").
		Select("goods_receipt_lines.purchase_order_line_id, goods_receipt_lines.qty_base").
		Joins("JOIN goods_receipts ON goods_receipts.id = goods_receipt_lines.goods_receipt_id").
		Where("goods_receipts.status = ? AND goods_receipt_lines.purchase_order_line_id IN ?", DocumentStatusPosted, poLineIds).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.PurchaseOrderLineId] = out[r.PurchaseOrderLineId].Add(r.QtyBase)
	}
	return out, nil
}
