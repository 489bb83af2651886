package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PostStockAdjustment creates and posts a single-line adjustment. ADJUSTMENT may go either way;
// WRITE_OFF only removes stock.
func PostStockAdjustment(ctx context.Context, db *gorm.DB, input *models.NewStockAdjustment) (*models.StockAdjustment, error) {
	if db == nil {
		db = config.GetDB()
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, models.NewValidationError(err)
	}
	if input.QtyDelta.IsZero() {
		return nil, &models.ValidationError{Field: "qty_delta", Detail: "must not be zero", Err: models.ErrInvalidQuantity}
	}
	if input.Reason == models.MovementReasonWriteOff && input.QtyDelta.IsPositive() {
		return nil, &models.ValidationError{Field: "qty_delta", Detail: "write-off must be negative", Err: models.ErrInvalidQuantity}
	}
	settings := models.LoadPostingSettings(ctx)
	adjustmentNo, err := models.GetDocNumberSource().Next(ctx, models.DocTypeStockAdjustment)
	if err != nil {
		return nil, err
	}

	var adj models.StockAdjustment
	err = runPosting(ctx, db, "adjustment", input.BatchLotId, func(ctx context.Context, tx *gorm.DB) error {
		lots, err := models.LockBatchLots(ctx, tx, []int{input.BatchLotId})
		if err != nil {
			return err
		}
		if _, err := models.LockLocations(ctx, tx, []int{input.LocationId}); err != nil {
			return err
		}
		lot := lots[input.BatchLotId]

		adj = models.StockAdjustment{
			AdjustmentNo: adjustmentNo,
			LocationId:   input.LocationId,
			BatchLotId:   lot.ID,
			QtyDelta:     input.QtyDelta,
			Reason:       input.Reason,
			Note:         input.Note,
			PostedBy:     utils.GetActorFromContext(ctx).Label(),
		}
		if err := tx.Create(&adj).Error; err != nil {
			return err
		}
		movementId, err := models.WriteMovement(ctx, tx, models.MovementInput{
			LocationId:    adj.LocationId,
			BatchLotId:    adj.BatchLotId,
			QtyDelta:      adj.QtyDelta,
			Reason:        adj.Reason,
			RefDocType:    models.RefDocStockAdjustment,
			RefDocId:      adj.ID,
			Note:          adj.Note,
			AllowNegative: settings.AllowNegativeStock,
		})
		if err != nil {
			return err
		}
		adj.MovementId = movementId
		if err := tx.Model(&adj).UpdateColumn("movement_id", movementId).Error; err != nil {
			return err
		}
		return bookNDPSDelta(ctx, tx, lot.ProductId, utils.Today(), adj.QtyDelta)
	})
	if err != nil {
		return nil, err
	}
	return &adj, nil
}

// RecallBatchLot blocks a batch and removes its stock from every location with RECALL_BLOCK
// movements. A recall notification is sent after commit.
func RecallBatchLot(ctx context.Context, db *gorm.DB, batchLotId int, note string) (*models.BatchLot, error) {
	if db == nil {
		db = config.GetDB()
	}
	var (
		lot     *models.BatchLot
		removed = 0
		total   = decimal.Zero
	)
	err := runPosting(ctx, db, "recall", batchLotId, func(ctx context.Context, tx *gorm.DB) error {
		lots, err := models.LockBatchLots(ctx, tx, []int{batchLotId})
		if err != nil {
			return err
		}
		lot = lots[batchLotId]
		if lot.Status == models.BatchLotStatusBlocked {
			return &models.InvalidStateError{Document: "batch lot", Id: batchLotId, Current: string(lot.Status), Target: string(models.BatchLotStatusBlocked)}
		}

		rows, err := models.StockQuery(ctx, tx, models.StockFilter{BatchLotId: &batchLotId})
		if err != nil {
			return err
		}
		locationIds := make([]int, 0, len(rows))
		for _, r := range rows {
			locationIds = append(locationIds, r.LocationId)
		}
		if _, err := models.LockLocations(ctx, tx, locationIds); err != nil {
			return err
		}

		before := lot.Status
		if err := tx.Model(lot).UpdateColumn("status", models.BatchLotStatusBlocked).Error; err != nil {
			return err
		}
		lot.Status = models.BatchLotStatusBlocked

		for _, r := range rows {
			if !r.StockBase.IsPositive() {
				continue
			}
			if _, err := models.WriteMovement(ctx, tx, models.MovementInput{
				LocationId:    r.LocationId,
				BatchLotId:    batchLotId,
				QtyDelta:      r.StockBase.Neg(),
				Reason:        models.MovementReasonRecallBlock,
				RefDocType:    models.RefDocBatchRecall,
				RefDocId:      batchLotId,
				Note:          note,
				AllowNegative: true,
			}); err != nil {
				return err
			}
			removed++
			total = total.Add(r.StockBase)
		}
		if err := bookNDPSDelta(ctx, tx, lot.ProductId, utils.Today(), total.Neg()); err != nil {
			return err
		}
		models.RecordAudit(ctx, tx, models.AuditRecord{Table: "batch_lots", RowId: batchLotId, Action: models.AuditActionUpdate, Before: before, After: lot.Status})
		return nil
	})
	if err != nil {
		return nil, err
	}

	expiry := lot.ExpiryDate
	models.GetNotificationSink().Notify(ctx, models.NotificationEvent{
		Kind:       models.NotificationRecall,
		ProductId:  lot.ProductId,
		BatchLotId: lot.ID,
		BatchNo:    lot.BatchNo,
		ExpiryDate: &expiry,
		Message:    fmt.Sprintf("batch %s recalled, stock removed from %d location(s)", lot.BatchNo, removed),
	})
	return lot, nil
}
