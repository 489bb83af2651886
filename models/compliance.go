package models

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// H1RegisterEntry is the permanent register row written for each H1 sales line.
type H1RegisterEntry struct {
	ID             int             `gorm:"primary_key" json:"id"`
	SalesInvoiceId int             `gorm:"not null;index" json:"sales_invoice_id"`
	SalesLineId    int             `gorm:"not null;uniqueIndex" json:"sales_line_id"`
	InvoiceNo      string          `gorm:"size:32" json:"invoice_no"`
	EntryDate      time.Time       `gorm:"not null;index" json:"entry_date"`
	ProductId      int             `gorm:"not null;index" json:"product_id"`
	ProductName    string          `gorm:"size:255" json:"product_name"`
	BatchLotId     int             `json:"batch_lot_id"`
	BatchNo        string          `gorm:"size:64" json:"batch_no"`
	ExpiryDate     time.Time       `json:"expiry_date"`
	QtyBase        decimal.Decimal `gorm:"type:decimal(20,4)" json:"qty_base"`
	PatientName    string          `gorm:"size:255" json:"patient_name"`
	PatientPhone   string          `gorm:"size:20" json:"patient_phone"`
	PatientAddress string          `gorm:"type:text" json:"patient_address"`
	DoctorName     string          `gorm:"size:255" json:"doctor_name"`
	DoctorRegNo    string          `gorm:"size:64" json:"doctor_reg_no"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (e *H1RegisterEntry) BeforeUpdate(tx *gorm.DB) error {
	return ErrRegisterImmutable
}

func (e *H1RegisterEntry) BeforeDelete(tx *gorm.DB) error {
	return ErrRegisterImmutable
}

// NDPSDailyEntry is the per product, per day running balance of a narcotic drug.
type NDPSDailyEntry struct {
	ID         int             `gorm:"primary_key" json:"id"`
	ProductId  int             `gorm:"not null;uniqueIndex:idx_ndps_product_date,priority:1" json:"product_id"`
	EntryDate  time.Time       `gorm:"not null;uniqueIndex:idx_ndps_product_date,priority:2" json:"entry_date"`
	OpeningQty decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"opening_qty"`
	InQty      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"in_qty"`
	OutQty     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"out_qty"`
	ClosingQty decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"closing_qty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (NDPSDailyEntry) TableName() string {
	return "ndps_daily_entries"
}

// Recalculate sets closing from opening, in and out rather than adjusting it incrementally.
func (e *NDPSDailyEntry) Recalculate() {
	e.ClosingQty = e.OpeningQty.Add(e.InQty).Sub(e.OutQty)
}

// ReplayNDPSEntries chains entries chronologically: each day's opening is the previous day's
// closing, starting from seed. Entries are sorted in place.
func ReplayNDPSEntries(seed decimal.Decimal, entries []NDPSDailyEntry) []NDPSDailyEntry {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EntryDate.Before(entries[j].EntryDate)
	})
	prevClosing := seed
	for i := range entries {
		entries[i].OpeningQty = prevClosing
		entries[i].Recalculate()
		prevClosing = entries[i].ClosingQty
	}
	return entries
}

// UpsertNDPSDaily adds issued (out) or received (in) quantity to the (product, day) row.
// A new row starts with zero opening.
func UpsertNDPSDaily(ctx context.Context, tx *gorm.DB, productId int, day time.Time, inQty decimal.Decimal, outQty decimal.Decimal) (*NDPSDailyEntry, error) {
	day = utils.ToDate(day)
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&NDPSDailyEntry{ProductId: productId, EntryDate: day}).Error; err != nil {
		return nil, err
	}
	var entry NDPSDailyEntry
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND entry_date = ?", productId, day).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	entry.InQty = entry.InQty.Add(inQty)
	entry.OutQty = entry.OutQty.Add(outQty)
	entry.Recalculate()
	if err := tx.WithContext(ctx).Model(&entry).UpdateColumns(map[string]interface{}{
		"in_qty":      entry.InQty,
		"out_qty":     entry.OutQty,
		"closing_qty": entry.ClosingQty,
		"updated_at":  time.Now().UTC(),
	}).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func ListNDPSEntries(ctx context.Context, db *gorm.DB, productId int, start time.Time, end time.Time) ([]NDPSDailyEntry, error) {
	var entries []NDPSDailyEntry
	err := db.WithContext(ctx).
		Where("product_id = ? AND entry_date >= ? AND entry_date <= ?", productId, utils.ToDate(start), utils.ToDate(end)).
		Order("entry_date").
		Find(&entries).Error
	return entries, err
}

func ListH1Register(ctx context.Context, db *gorm.DB, start time.Time, end time.Time) ([]H1RegisterEntry, error) {
	var entries []H1RegisterEntry
	err := db.WithContext(ctx).
		Where("entry_date >= ? AND entry_date <= ?", utils.ToDate(start), utils.ToDate(end)).
		Order("entry_date, id").
		Find(&entries).Error
	return entries, err
}
