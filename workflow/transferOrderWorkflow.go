package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PostTransferVoucher dispatches a DRAFT voucher: stock leaves the source location with one
// TRANSFER_OUT per line and the voucher is IN_TRANSIT until received.
func PostTransferVoucher(ctx context.Context, db *gorm.DB, voucherId int) (*models.TransferVoucher, error) {
	var voucher *models.TransferVoucher
	err := runPosting(ctx, db, "transfer", voucherId, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		voucher, err = lockTransferVoucher(ctx, tx, voucherId, models.TransferStatusInTransit, models.TransferStatusDraft)
		if err != nil {
			return err
		}

		lots, err := lockTransferStock(ctx, tx, voucher)
		if err != nil {
			return err
		}
		requested := make(map[int]decimal.Decimal)
		for _, l := range voucher.Lines {
			lot := lots[l.BatchLotId]
			if lot.Status == models.BatchLotStatusBlocked || lot.Status == models.BatchLotStatusReturned {
				return &models.ValidationError{Field: "batch_lot_id", Detail: "batch " + lot.BatchNo + " is " + string(lot.Status), Err: models.ErrBatchUnavailable}
			}
			requested[l.BatchLotId] = requested[l.BatchLotId].Add(l.QtyBase)
		}
		if err := verifyBatchStock(ctx, tx, voucher.FromLocationId, requested, lots); err != nil {
			return err
		}

		for _, l := range voucher.Lines {
			if _, err := models.WriteMovement(ctx, tx, models.MovementInput{
				LocationId: voucher.FromLocationId,
				BatchLotId: l.BatchLotId,
				QtyDelta:   l.QtyBase.Neg(),
				Reason:     models.MovementReasonTransferOut,
				RefDocType: models.RefDocTransferVoucher,
				RefDocId:   voucher.ID,
				RefLineId:  l.ID,
				Note:       voucher.TransferNo,
			}); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		return setTransferStatus(ctx, tx, voucher, models.TransferStatusInTransit, map[string]interface{}{"dispatched_at": &now})
	})
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

// ReceiveTransferVoucher books the IN_TRANSIT stock into the destination. A line that already
// has its TRANSFER_IN is skipped, so receiving a RECEIVED voucher again changes nothing.
func ReceiveTransferVoucher(ctx context.Context, db *gorm.DB, voucherId int) (*models.TransferVoucher, error) {
	var voucher *models.TransferVoucher
	err := runPosting(ctx, db, "transfer_receive", voucherId, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		voucher, err = lockTransferVoucher(ctx, tx, voucherId, models.TransferStatusReceived, models.TransferStatusInTransit, models.TransferStatusReceived)
		if err != nil {
			return err
		}
		if _, err := lockTransferStock(ctx, tx, voucher); err != nil {
			return err
		}

		for _, l := range voucher.Lines {
			received, err := models.HasTransferIn(ctx, tx, voucher.ID, l.ID)
			if err != nil {
				return err
			}
			if received {
				continue
			}
			if _, err := models.WriteMovement(ctx, tx, models.MovementInput{
				LocationId: voucher.ToLocationId,
				BatchLotId: l.BatchLotId,
				QtyDelta:   l.QtyBase,
				Reason:     models.MovementReasonTransferIn,
				RefDocType: models.RefDocTransferVoucher,
				RefDocId:   voucher.ID,
				RefLineId:  l.ID,
				Note:       voucher.TransferNo,
			}); err != nil {
				return err
			}
		}

		if voucher.Status == models.TransferStatusReceived {
			return nil
		}
		now := time.Now().UTC()
		return setTransferStatus(ctx, tx, voucher, models.TransferStatusReceived, map[string]interface{}{"received_at": &now})
	})
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

// CancelTransferVoucher cancels a DRAFT voucher outright. An IN_TRANSIT voucher gets its
// dispatched stock back at the source through ADJUSTMENT movements.
func CancelTransferVoucher(ctx context.Context, db *gorm.DB, voucherId int) (*models.TransferVoucher, error) {
	var voucher *models.TransferVoucher
	err := runPosting(ctx, db, "transfer_cancel", voucherId, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		voucher, err = lockTransferVoucher(ctx, tx, voucherId, models.TransferStatusCancelled, models.TransferStatusDraft, models.TransferStatusInTransit)
		if err != nil {
			return err
		}

		if voucher.Status == models.TransferStatusInTransit {
			if _, err := lockTransferStock(ctx, tx, voucher); err != nil {
				return err
			}
			for _, l := range voucher.Lines {
				if _, err := models.WriteMovement(ctx, tx, models.MovementInput{
					LocationId: voucher.FromLocationId,
					BatchLotId: l.BatchLotId,
					QtyDelta:   l.QtyBase,
					Reason:     models.MovementReasonAdjustment,
					RefDocType: models.RefDocTransferVoucher,
					RefDocId:   voucher.ID,
					RefLineId:  l.ID,
					Note:       "cancel " + voucher.TransferNo,
				}); err != nil {
					return err
				}
			}
		}

		now := time.Now().UTC()
		return setTransferStatus(ctx, tx, voucher, models.TransferStatusCancelled, map[string]interface{}{"cancelled_at": &now})
	})
	if err != nil {
		return nil, err
	}
	return voucher, nil
}

// lockTransferVoucher locks the voucher, loads its lines and rejects a current status outside allowed.
func lockTransferVoucher(ctx context.Context, tx *gorm.DB, voucherId int, target models.TransferStatus, allowed ...models.TransferStatus) (*models.TransferVoucher, error) {
	voucher, err := utils.FetchModelForUpdate[models.TransferVoucher](ctx, tx, voucherId)
	if err != nil {
		return nil, models.WrapNotFound(err, "transfer voucher", voucherId)
	}
	ok := false
	for _, s := range allowed {
		if voucher.Status == s {
			ok = true
		}
	}
	if !ok {
		return nil, &models.InvalidStateError{Document: "transfer voucher", Id: voucherId, Current: string(voucher.Status), Target: string(target)}
	}
	if err := tx.Where("transfer_voucher_id = ?", voucherId).Order("id").Find(&voucher.Lines).Error; err != nil {
		return nil, err
	}
	return voucher, nil
}

// lockTransferStock locks the voucher's batches and both locations, in that order.
func lockTransferStock(ctx context.Context, tx *gorm.DB, voucher *models.TransferVoucher) (map[int]*models.BatchLot, error) {
	lots, err := models.LockBatchLots(ctx, tx, idsOf(voucher.Lines, func(l models.TransferLine) int { return l.BatchLotId }))
	if err != nil {
		return nil, err
	}
	if _, err := models.LockLocations(ctx, tx, []int{voucher.FromLocationId, voucher.ToLocationId}); err != nil {
		return nil, err
	}
	return lots, nil
}

func setTransferStatus(ctx context.Context, tx *gorm.DB, voucher *models.TransferVoucher, status models.TransferStatus, extra map[string]interface{}) error {
	before := voucher.Status
	cols := map[string]interface{}{"status": status}
	for k, v := range extra {
		cols[k] = v
	}
	if err := tx.WithContext(ctx).Model(voucher).UpdateColumns(cols).Error; err != nil {
		return err
	}
	voucher.Status = status
	if t, ok := extra["dispatched_at"].(*time.Time); ok {
		voucher.DispatchedAt = t
	}
	if t, ok := extra["received_at"].(*time.Time); ok {
		voucher.ReceivedAt = t
	}
	if t, ok := extra["cancelled_at"].(*time.Time); ok {
		voucher.CancelledAt = t
	}
	models.RecordAudit(ctx, tx, models.AuditRecord{Table: "transfer_vouchers", RowId: voucher.ID, Action: models.AuditActionUpdate, Before: before, After: status})
	return nil
}
