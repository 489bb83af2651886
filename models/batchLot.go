package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BatchLot struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	ProductId            int             `gorm:"not null;uniqueIndex:idx_batch_product_no,priority:1" json:"product_id"`
	Product              *Product        `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	BatchNo              string          `gorm:"size:64;not null;uniqueIndex:idx_batch_product_no,priority:2" json:"batch_no"`
	MfgDate              *time.Time      `json:"mfg_date"`
	ExpiryDate           time.Time       `gorm:"not null;index" json:"expiry_date"`
	Status               BatchLotStatus  `gorm:"size:16;not null;default:ACTIVE;index" json:"status"`
	PurchasePrice        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_price"`
	PurchasePricePerBase decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_price_per_base"`
	Mrp                  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"mrp"`
	InitialQtyBase       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"initial_qty_base"`
	InitialQtyEntered    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"initial_qty_entered"`
	InitialUom           string          `gorm:"size:32" json:"initial_uom"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave keeps expiry a pure date and flips ACTIVE lots past expiry to EXPIRED.
func (b *BatchLot) BeforeSave(tx *gorm.DB) error {
	b.BatchNo = strings.TrimSpace(b.BatchNo)
	if b.BatchNo == "" {
		return &ValidationError{Field: "batch_no", Detail: "is required"}
	}
	if b.ExpiryDate.IsZero() {
		return &ValidationError{Field: "expiry_date", Detail: "is required"}
	}
	b.ExpiryDate = utils.ToDate(b.ExpiryDate)
	if b.MfgDate != nil {
		d := utils.ToDate(*b.MfgDate)
		if d.After(b.ExpiryDate) {
			return &ValidationError{Field: "mfg_date", Detail: "is after expiry_date"}
		}
		b.MfgDate = &d
	}
	if b.Status == "" {
		b.Status = BatchLotStatusActive
	}
	if b.Status == BatchLotStatusActive && b.IsExpiredOn(utils.Today()) {
		b.Status = BatchLotStatusExpired
	}
	return nil
}

func (b *BatchLot) IsExpiredOn(day time.Time) bool {
	return utils.ToDate(b.ExpiryDate).Before(utils.ToDate(day))
}

// IsSellable reports whether the lot may be allocated to a sale or transfer.
func (b *BatchLot) IsSellable() bool {
	return b.Status == BatchLotStatusActive && !b.IsExpiredOn(utils.Today())
}

type BatchLotInput struct {
	ProductId         int
	BatchNo           string
	ExpiryDate        time.Time
	MfgDate           *time.Time
	InitialQtyBase    decimal.Decimal
	InitialQtyEntered decimal.Decimal
	InitialUom        string
}

// ResolveOrCreateBatchLot returns the (product, batch_no) lot, creating it when missing.
// The insert runs in a savepoint so a concurrent create of the same lot falls back to a re-read.
func ResolveOrCreateBatchLot(ctx context.Context, tx *gorm.DB, input BatchLotInput) (*BatchLot, bool, error) {
	batchNo := strings.TrimSpace(input.BatchNo)
	if batchNo == "" {
		return nil, false, &ValidationError{Field: "batch_no", Detail: "is required"}
	}

	existing, err := findBatchLot(ctx, tx, input.ProductId, batchNo)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err := checkBatchExpiry(existing, input.ExpiryDate); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	lot := BatchLot{
		ProductId:         input.ProductId,
		BatchNo:           batchNo,
		ExpiryDate:        input.ExpiryDate,
		MfgDate:           input.MfgDate,
		InitialQtyBase:    input.InitialQtyBase,
		InitialQtyEntered: input.InitialQtyEntered,
		InitialUom:        input.InitialUom,
	}
	createErr := tx.WithContext(ctx).Transaction(func(stx *gorm.DB) error {
		return stx.Create(&lot).Error
	})
	if createErr == nil {
		return &lot, true, nil
	}
	if !utils.IsDuplicateKeyErr(createErr) {
		return nil, false, createErr
	}

	existing, err = findBatchLot(ctx, tx, input.ProductId, batchNo)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, createErr
	}
	if err := checkBatchExpiry(existing, input.ExpiryDate); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func findBatchLot(ctx context.Context, tx *gorm.DB, productId int, batchNo string) (*BatchLot, error) {
	var lots []BatchLot
	err := tx.WithContext(ctx).
		Where("product_id = ? AND batch_no = ?", productId, batchNo).
		Limit(1).
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, nil
	}
	return &lots[0], nil
}

func checkBatchExpiry(lot *BatchLot, expiry time.Time) error {
	if expiry.IsZero() || utils.ToDate(expiry).Equal(utils.ToDate(lot.ExpiryDate)) {
		return nil
	}
	return &ValidationError{
		Field:  "expiry_date",
		Detail: "batch " + lot.BatchNo + " already recorded with expiry " + lot.ExpiryDate.Format("2006-01-02"),
	}
}

func GetBatchLot(ctx context.Context, db *gorm.DB, id int) (*BatchLot, error) {
	lot, err := utils.FetchModel[BatchLot](ctx, db, id, "Product")
	if err != nil {
		return nil, WrapNotFound(err, "batch lot", id)
	}
	return lot, nil
}

// ExpireBatchLots marks every ACTIVE lot whose expiry date has passed as EXPIRED
// and returns the lots it changed.
func ExpireBatchLots(ctx context.Context, db *gorm.DB) ([]BatchLot, error) {
	today := utils.Today()
	var expired []BatchLot
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Product").
			Where("status = ? AND expiry_date < ?", BatchLotStatusActive, today).
			Order("id").
			Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]int, 0, len(expired))
		for i := range expired {
			ids = append(ids, expired[i].ID)
			expired[i].Status = BatchLotStatusExpired
		}
		return tx.Model(&BatchLot{}).
			Where("id IN ? AND status = ?", ids, BatchLotStatusActive).
			UpdateColumn("status", BatchLotStatusExpired).Error
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
