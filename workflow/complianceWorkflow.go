package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// writeComplianceEntries writes one H1 register row per H1 line and adds NDPS issues to the
// daily register on the invoice date. Runs inside the invoice posting transaction.
func writeComplianceEntries(ctx context.Context, tx *gorm.DB, invoice *models.SalesInvoice, lines []models.SalesLine, rx *models.Prescription) error {
	for _, l := range lines {
		switch l.Schedule {
		case models.ScheduleH1:
			if rx == nil {
				return &models.PrescriptionRequiredError{InvoiceId: invoice.ID, ProductIds: []int{l.ProductId}}
			}
			entry := models.H1RegisterEntry{
				SalesInvoiceId: invoice.ID,
				SalesLineId:    l.ID,
				InvoiceNo:      invoice.InvoiceNo,
				EntryDate:      utils.ToDate(invoice.InvoiceDate),
				ProductId:      l.ProductId,
				ProductName:    l.ProductName,
				BatchNo:        l.BatchNo,
				QtyBase:        l.QtyBase,
				PatientName:    rx.PatientName,
				PatientPhone:   rx.PatientPhone,
				PatientAddress: rx.PatientAddress,
				DoctorName:     rx.DoctorName,
				DoctorRegNo:    rx.DoctorRegNo,
			}
			if l.BatchLotId != nil {
				entry.BatchLotId = *l.BatchLotId
			}
			if l.ExpiryDate != nil {
				entry.ExpiryDate = *l.ExpiryDate
			}
			if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
				return err
			}
		case models.ScheduleNDPS:
			if _, err := models.UpsertNDPSDaily(ctx, tx, l.ProductId, invoice.InvoiceDate, decimal.Zero, l.QtyBase); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecomputeNDPSDaily re-chains the product's NDPS register between start and end. The day
// before the range seeds the opening balance from the latest earlier entry, zero if none.
func RecomputeNDPSDaily(ctx context.Context, db *gorm.DB, productId int, start time.Time, end time.Time) ([]models.NDPSDailyEntry, error) {
	if db == nil {
		db = config.GetDB()
	}
	start, end = utils.ToDate(start), utils.ToDate(end)
	if end.Before(start) {
		return nil, &models.ValidationError{Field: "end", Detail: "is before start"}
	}

	var entries []models.NDPSDailyEntry
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := utils.FetchModel[models.Product](ctx, tx, productId); err != nil {
			return models.WrapNotFound(err, "product", productId)
		}

		seed := decimal.Zero
		var previous []models.NDPSDailyEntry
		if err := tx.Where("product_id = ? AND entry_date < ?", productId, start).
			Order("entry_date DESC").Limit(1).Find(&previous).Error; err != nil {
			return err
		}
		if len(previous) > 0 {
			seed = previous[0].ClosingQty
		}

		if err := tx.Clauses(lockingClause()).
			Where("product_id = ? AND entry_date >= ? AND entry_date <= ?", productId, start, end).
			Order("entry_date").Find(&entries).Error; err != nil {
			return err
		}
		entries = models.ReplayNDPSEntries(seed, entries)
		for i := range entries {
			if err := tx.Model(&entries[i]).UpdateColumns(map[string]interface{}{
				"opening_qty": entries[i].OpeningQty,
				"closing_qty": entries[i].ClosingQty,
				"updated_at":  time.Now().UTC(),
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"field":      "Compliance",
		"product_id": productId,
		"start":      start.Format("2006-01-02"),
		"end":        end.Format("2006-01-02"),
		"entries":    len(entries),
	}).Info("ndps register recomputed")
	return entries, nil
}
