package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PostVendorReturn sends stock back to the supplier. A batch with nothing left in any location
// afterwards is marked RETURNED.
func PostVendorReturn(ctx context.Context, db *gorm.DB, returnId int) (*models.VendorReturn, error) {
	var vr *models.VendorReturn
	err := runPosting(ctx, db, "vendor_return", returnId, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		vr, err = utils.FetchModelForUpdate[models.VendorReturn](ctx, tx, returnId)
		if err != nil {
			return models.WrapNotFound(err, "vendor return", returnId)
		}
		if vr.Status == models.DocumentStatusPosted {
			return &models.AlreadyPostedError{Document: "vendor return", Id: returnId}
		}
		if vr.Status != models.DocumentStatusDraft {
			return &models.InvalidStateError{Document: "vendor return", Id: returnId, Current: string(vr.Status), Target: string(models.DocumentStatusPosted)}
		}
		if err := tx.Where("vendor_return_id = ?", returnId).Order("id").Find(&vr.Lines).Error; err != nil {
			return err
		}

		lots, err := models.LockBatchLots(ctx, tx, idsOf(vr.Lines, func(l models.VendorReturnLine) int { return l.BatchLotId }))
		if err != nil {
			return err
		}
		if _, err := models.LockLocations(ctx, tx, []int{vr.LocationId}); err != nil {
			return err
		}
		requested := make(map[int]decimal.Decimal)
		for _, l := range vr.Lines {
			requested[l.BatchLotId] = requested[l.BatchLotId].Add(l.QtyBase)
		}
		if err := verifyBatchStock(ctx, tx, vr.LocationId, requested, lots); err != nil {
			return err
		}

		for _, l := range vr.Lines {
			if _, err := models.WriteMovement(ctx, tx, models.MovementInput{
				LocationId: vr.LocationId,
				BatchLotId: l.BatchLotId,
				QtyDelta:   l.QtyBase.Neg(),
				Reason:     models.MovementReasonReturnVendor,
				RefDocType: models.RefDocVendorReturn,
				RefDocId:   vr.ID,
				RefLineId:  l.ID,
				Note:       l.Reason,
			}); err != nil {
				return err
			}
			if err := bookNDPSDelta(ctx, tx, lots[l.BatchLotId].ProductId, vr.ReturnDate, l.QtyBase.Neg()); err != nil {
				return err
			}
		}

		for id, lot := range lots {
			total, err := models.StockOnHandByBatch(ctx, tx, id)
			if err != nil {
				return err
			}
			if !total.IsZero() || lot.Status == models.BatchLotStatusReturned {
				continue
			}
			if err := tx.Model(lot).UpdateColumn("status", models.BatchLotStatusReturned).Error; err != nil {
				return err
			}
			lot.Status = models.BatchLotStatusReturned
		}

		now := time.Now().UTC()
		vr.Status = models.DocumentStatusPosted
		vr.PostedAt = &now
		vr.PostedBy = utils.GetActorFromContext(ctx).Label()
		if err := tx.Model(vr).UpdateColumns(map[string]interface{}{
			"status":    vr.Status,
			"posted_at": vr.PostedAt,
			"posted_by": vr.PostedBy,
		}).Error; err != nil {
			return err
		}
		models.RecordAudit(ctx, tx, models.AuditRecord{Table: "vendor_returns", RowId: vr.ID, Action: models.AuditActionPost, Before: models.DocumentStatusDraft, After: vr.Status})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vr, nil
}
