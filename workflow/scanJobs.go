package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScanResult counts what a scan job found and reported.
type ScanResult struct {
	Job      string `json:"job"`
	Found    int    `json:"found"`
	Notified int    `json:"notified"`
}

// NotifyLowStock reports the given products that are at or below their threshold at the location.
// Errors are logged; the caller's posting has already committed.
func NotifyLowStock(ctx context.Context, db *gorm.DB, locationId int, productIds []int, defaultThreshold decimal.Decimal) int {
	if len(productIds) == 0 {
		return 0
	}
	rows, err := models.LowStock(ctx, db, locationId, defaultThreshold)
	if err != nil {
		config.LogError(config.GetLogger(), "scanJobs.go", "NotifyLowStock", "LowStock", locationId, err)
		return 0
	}
	wanted := make(map[int]bool, len(productIds))
	for _, id := range productIds {
		wanted[id] = true
	}
	sink := models.GetNotificationSink()
	sent := 0
	for _, r := range rows {
		if !wanted[r.ProductId] {
			continue
		}
		sink.Notify(ctx, lowStockEvent(r))
		sent++
	}
	return sent
}

func lowStockEvent(r models.LowStockRow) models.NotificationEvent {
	threshold := r.Threshold
	return models.NotificationEvent{
		Kind:        models.NotificationLowStock,
		LocationId:  r.LocationId,
		ProductId:   r.ProductId,
		ProductName: r.ProductName,
		Stock:       r.StockBase,
		Threshold:   &threshold,
		Message:     fmt.Sprintf("%s is %s (%s on hand, threshold %s)", r.ProductName, r.Status, r.StockBase.String(), threshold.String()),
	}
}

// RunLowStockScan checks every active location.
func RunLowStockScan(ctx context.Context, db *gorm.DB) (ScanResult, error) {
	if db == nil {
		db = config.GetDB()
	}
	result := ScanResult{Job: "low-stock-scan"}
	var locations []models.Location
	if err := db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&locations).Error; err != nil {
		return result, err
	}
	threshold := models.LowStockDefault(ctx)
	sink := models.GetNotificationSink()
	for _, loc := range locations {
		rows, err := models.LowStock(ctx, db, loc.ID, threshold)
		if err != nil {
			return result, err
		}
		result.Found += len(rows)
		for _, r := range rows {
			sink.Notify(ctx, lowStockEvent(r))
			result.Notified++
		}
	}
	logScan(result)
	return result, nil
}

// RunNearExpiryScan reports stock expiring within the warning window. Lots inside the critical
// window are flagged in the message.
func RunNearExpiryScan(ctx context.Context, db *gorm.DB) (ScanResult, error) {
	if db == nil {
		db = config.GetDB()
	}
	result := ScanResult{Job: "near-expiry-scan"}
	warning := models.ExpiryWarningDays(ctx)
	critical := models.ExpiryCriticalDays(ctx)
	rows, err := models.NearExpiry(ctx, db, nil, warning)
	if err != nil {
		return result, err
	}
	result.Found = len(rows)
	sink := models.GetNotificationSink()
	for _, r := range rows {
		level := "warning"
		if r.DaysToExpiry <= critical {
			level = "critical"
		}
		expiry := r.ExpiryDate
		sink.Notify(ctx, models.NotificationEvent{
			Kind:        models.NotificationNearExpiry,
			LocationId:  r.LocationId,
			ProductId:   r.ProductId,
			ProductName: r.ProductName,
			BatchLotId:  r.BatchLotId,
			BatchNo:     r.BatchNo,
			Stock:       r.StockBase,
			ExpiryDate:  &expiry,
			Message:     fmt.Sprintf("%s batch %s expires in %d day(s) [%s]", r.ProductName, r.BatchNo, r.DaysToExpiry, level),
		})
		result.Notified++
	}
	logScan(result)
	return result, nil
}

// RunExpireBatchLots marks lots past expiry as EXPIRED and reports the ones still holding stock.
func RunExpireBatchLots(ctx context.Context, db *gorm.DB) (ScanResult, error) {
	if db == nil {
		db = config.GetDB()
	}
	result := ScanResult{Job: "expire-batch-lots"}
	lots, err := models.ExpireBatchLots(ctx, db)
	if err != nil {
		return result, err
	}
	result.Found = len(lots)
	sink := models.GetNotificationSink()
	for _, lot := range lots {
		stock, err := models.StockOnHandByBatch(ctx, db, lot.ID)
		if err != nil {
			return result, err
		}
		if !stock.IsPositive() {
			continue
		}
		expiry := lot.ExpiryDate
		event := models.NotificationEvent{
			Kind:       models.NotificationExpired,
			ProductId:  lot.ProductId,
			BatchLotId: lot.ID,
			BatchNo:    lot.BatchNo,
			Stock:      stock,
			ExpiryDate: &expiry,
			Message:    "batch " + lot.BatchNo + " expired on " + expiry.Format("2006-01-02"),
		}
		if lot.Product != nil {
			event.ProductName = lot.Product.Name
		}
		sink.Notify(ctx, event)
		result.Notified++
	}
	logScan(result)
	return result, nil
}

func logScan(result ScanResult) {
	config.GetLogger().WithFields(logrus.Fields{
		"field":    "Scan",
		"job":      result.Job,
		"found":    result.Found,
		"notified": result.Notified,
		"date":     utils.Today().Format("2006-01-02"),
	}).Info("scan finished")
}
