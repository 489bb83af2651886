package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PurchaseOrder struct {
	ID         int                 `gorm:"primary_key" json:"id"`
	PoNo       string              `gorm:"size:32;uniqueIndex" json:"po_no"`
	VendorName string              `gorm:"size:255" json:"vendor_name"`
	LocationId int                 `gorm:"not null;index" json:"location_id"`
	OrderDate  time.Time           `gorm:"not null" json:"order_date"`
	Status     PurchaseOrderStatus `gorm:"size:20;not null;default:OPEN;index" json:"status"`
	Note       string              `gorm:"type:text" json:"note"`
	Lines      []PurchaseOrderLine `gorm:"foreignKey:PurchaseOrderId" json:"lines"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderLine struct {
	ID               int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId  int             `gorm:"not null;index" json:"purchase_order_id"`
	ProductId        int             `gorm:"not null;index" json:"product_id"`
	QtyPacksOrdered  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_packs_ordered"`
	QtyPacksReceived decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"qty_packs_received"`
	QtyBaseOrdered   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"qty_base_ordered"`
	QtyBaseReceived  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"qty_base_received"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
}

// IsFullyReceived reports cumulative receipt at or above the ordered quantity. Lines that have
// taken a receipt compare exact base units; qty_packs_received is rounded for display.
func (l *PurchaseOrderLine) IsFullyReceived() bool {
	if l.QtyBaseOrdered.IsPositive() {
		return l.QtyBaseReceived.GreaterThanOrEqual(l.QtyBaseOrdered)
	}
	return l.QtyPacksReceived.GreaterThanOrEqual(l.QtyPacksOrdered)
}

func (l *PurchaseOrderLine) anyReceived() bool {
	return l.QtyBaseReceived.IsPositive() || l.QtyPacksReceived.IsPositive()
}

type NewPurchaseOrder struct {
	VendorName string                 `json:"vendor_name"`
	LocationId int                    `json:"location_id" validate:"required,gt=0"`
	OrderDate  *time.Time             `json:"order_date"`
	Note       string                 `json:"note"`
	Lines      []NewPurchaseOrderLine `json:"lines" validate:"required,min=1,dive"`
}

type NewPurchaseOrderLine struct {
	ProductId       int             `json:"product_id" validate:"required,gt=0"`
	QtyPacksOrdered decimal.Decimal `json:"qty_packs_ordered" validate:"gt=0"`
	UnitCost        decimal.Decimal `json:"unit_cost" validate:"gte=0"`
}

func CreatePurchaseOrder(ctx context.Context, db *gorm.DB, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewValidationError(err)
	}
	productIds := make([]int, 0, len(input.Lines))
	for _, l := range input.Lines {
		productIds = append(productIds, l.ProductId)
	}
	if err := ensureExists[Product](ctx, db, "product", productIds); err != nil {
		return nil, err
	}
	if err := ensureExists[Location](ctx, db, "location", []int{input.LocationId}); err != nil {
		return nil, err
	}

	poNo, err := GetDocNumberSource().Next(ctx, DocTypePurchaseOrder)
	if err != nil {
		return nil, err
	}
	orderDate := utils.Today()
	if input.OrderDate != nil {
		orderDate = utils.ToDate(*input.OrderDate)
	}
	po := PurchaseOrder{
		PoNo:       poNo,
		VendorName: input.VendorName,
		LocationId: input.LocationId,
		OrderDate:  orderDate,
		Status:     PurchaseOrderStatusOpen,
		Note:       input.Note,
	}
	for _, l := range input.Lines {
		po.Lines = append(po.Lines, PurchaseOrderLine{
			ProductId:       l.ProductId,
			QtyPacksOrdered: l.QtyPacksOrdered,
			UnitCost:        l.UnitCost,
		})
	}
	if err := db.WithContext(ctx).Create(&po).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

func GetPurchaseOrder(ctx context.Context, db *gorm.DB, id int) (*PurchaseOrder, error) {
	po, err := utils.FetchModel[PurchaseOrder](ctx, db, id, "Lines")
	if err != nil {
		return nil, WrapNotFound(err, "purchase order", id)
	}
	return po, nil
}

// CancelPurchaseOrder closes an order that is not yet completed. Received stock is untouched.
func CancelPurchaseOrder(ctx context.Context, db *gorm.DB, id int) (*PurchaseOrder, error) {
	var po *PurchaseOrder
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		po, err = utils.FetchModelForUpdate[PurchaseOrder](ctx, tx, id)
		if err != nil {
			return WrapNotFound(err, "purchase order", id)
		}
		if po.Status == PurchaseOrderStatusCompleted || po.Status == PurchaseOrderStatusCancelled {
			return &InvalidStateError{Document: "purchase order", Id: id, Current: string(po.Status), Target: string(PurchaseOrderStatusCancelled)}
		}
		before := po.Status
		po.Status = PurchaseOrderStatusCancelled
		if err := tx.Model(po).UpdateColumn("status", po.Status).Error; err != nil {
			return err
		}
		RecordAudit(ctx, tx, AuditRecord{Table: "purchase_orders", RowId: id, Action: AuditActionCancel, Before: before, After: po.Status})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

// NextPurchaseOrderStatus derives the status from line receipt. It only moves forward:
// COMPLETED when every line is fully received, PARTIALLY_RECEIVED when some quantity arrived,
// otherwise the current status is kept.
func NextPurchaseOrderStatus(current PurchaseOrderStatus, lines []PurchaseOrderLine) PurchaseOrderStatus {
	if current == PurchaseOrderStatusCancelled || len(lines) == 0 {
		return current
	}
	allReceived := true
	anyReceived := false
	for i := range lines {
		if lines[i].anyReceived() {
			anyReceived = true
		}
		if !lines[i].IsFullyReceived() {
			allReceived = false
		}
	}
	next := current
	switch {
	case allReceived:
		next = PurchaseOrderStatusCompleted
	case anyReceived:
		next = PurchaseOrderStatusPartiallyReceived
	}
	if next.rank() < current.rank() {
		return current
	}
	return next
}

// ensureExists fails with NotFoundError naming the first missing id.
func ensureExists[T any](ctx context.Context, db *gorm.DB, entity string, ids []int) error {
	unq := utils.UniqueSlice(ids)
	if len(unq) == 0 {
		return nil
	}
	var found []int
	if err := db.WithContext(ctx).Model(new(T)).Where("id IN ?", unq).Pluck("id", &found).Error; err != nil {
		return err
	}
	if len(found) == len(unq) {
		return nil
	}
	seen := make(map[int]bool, len(found))
	for _, id := range found {
		seen[id] = true
	}
	for _, id := range unq {
		if !seen[id] {
			return &NotFoundError{Entity: entity, Id: id}
		}
	}
	return nil
}
