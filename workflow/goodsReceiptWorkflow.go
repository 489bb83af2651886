package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PostGoodsReceipt posts a DRAFT receipt: batches are resolved, quantities converted to base
// units, PURCHASE movements written and the purchase order advanced. Any failing line aborts
// the whole receipt.
func PostGoodsReceipt(ctx context.Context, db *gorm.DB, grnId int) (*models.GoodsReceipt, error) {
	var grn *models.GoodsReceipt
	err := runPosting(ctx, db, "grn", grnId, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		grn, err = postGoodsReceipt(ctx, tx, grnId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return grn, nil
}

func postGoodsReceipt(ctx context.Context, tx *gorm.DB, grnId int) (*models.GoodsReceipt, error) {
	logger := config.GetLogger()

	grn, err := utils.FetchModelForUpdate[models.GoodsReceipt](ctx, tx, grnId)
	if err != nil {
		return nil, models.WrapNotFound(err, "goods receipt", grnId)
	}
	if grn.Status != models.DocumentStatusDraft {
		return nil, &models.AlreadyPostedError{Document: "goods receipt", Id: grnId}
	}
	if err := tx.Where("goods_receipt_id = ?", grnId).Order("id").Find(&grn.Lines).Error; err != nil {
		return nil, err
	}
	if len(grn.Lines) == 0 {
		return nil, &models.ValidationError{Field: "lines", Detail: "goods receipt has no lines"}
	}

	var (
		po      *models.PurchaseOrder
		poLines map[int]*models.PurchaseOrderLine
	)
	if grn.PurchaseOrderId != nil {
		po, poLines, err = lockPurchaseOrder(ctx, tx, *grn.PurchaseOrderId)
		if err != nil {
			return nil, err
		}
	}

	products, err := loadProducts(ctx, tx, productIdsOfReceipt(grn.Lines))
	if err != nil {
		return nil, err
	}

	// convert and resolve batches before any stock is written
	lotIds := make([]int, 0, len(grn.Lines))
	for i := range grn.Lines {
		line := &grn.Lines[i]
		product := products[line.ProductId]
		qtyBase, factor, err := models.ConvertToBase(line.ConversionFor(product))
		if err != nil {
			config.LogError(logger, "goodsReceiptWorkflow.go", "postGoodsReceipt", "ConvertToBase", line, err)
			return nil, err
		}
		if !qtyBase.IsPositive() {
			return nil, &models.ValidationError{Field: "quantity", Detail: "must be greater than zero", Err: models.ErrInvalidQuantity}
		}
		line.QtyBase = qtyBase
		line.ConversionFactor = factor
		line.QtyPacks = qtyBase.Div(product.UnitsPerPack).Round(utils.AmountPlaces)

		lot, _, err := models.ResolveOrCreateBatchLot(ctx, tx, models.BatchLotInput{
			ProductId:         line.ProductId,
			BatchNo:           line.BatchNo,
			ExpiryDate:        line.ExpiryDate,
			MfgDate:           line.MfgDate,
			InitialQtyBase:    qtyBase,
			InitialQtyEntered: line.Quantity,
			InitialUom:        line.QuantityUom,
		})
		if err != nil {
			return nil, err
		}
		line.BatchLotId = &lot.ID
		lotIds = append(lotIds, lot.ID)
	}

	lots, err := models.LockBatchLots(ctx, tx, lotIds)
	if err != nil {
		return nil, err
	}
	if _, err := models.LockLocations(ctx, tx, []int{grn.LocationId}); err != nil {
		return nil, err
	}

	if po != nil {
		if err := applyReceiptToOrder(ctx, tx, grn, poLines, products); err != nil {
			return nil, err
		}
	}

	for i := range grn.Lines {
		line := &grn.Lines[i]
		product := products[line.ProductId]
		lot := lots[*line.BatchLotId]

		_, err := models.WriteMovement(ctx, tx, models.MovementInput{
			LocationId: grn.LocationId,
			BatchLotId: lot.ID,
			QtyDelta:   line.QtyBase,
			Reason:     models.MovementReasonPurchase,
			RefDocType: models.RefDocGoodsReceipt,
			RefDocId:   grn.ID,
			RefLineId:  line.ID,
			Note:       grn.GrnNo,
		})
		if err != nil {
			return nil, err
		}

		if err := tx.Model(line).UpdateColumns(map[string]interface{}{
			"qty_base":          line.QtyBase,
			"qty_packs":         line.QtyPacks,
			"conversion_factor": line.ConversionFactor,
			"batch_lot_id":      lot.ID,
		}).Error; err != nil {
			return nil, err
		}
		if err := applyReceiptPrices(ctx, tx, product, lot, line); err != nil {
			return nil, err
		}
		if product.Schedule == models.ScheduleNDPS {
			if _, err := models.UpsertNDPSDaily(ctx, tx, product.ID, grn.ReceivedDate, line.QtyBase, decimal.Zero); err != nil {
				return nil, err
			}
		}
	}

	if po != nil {
		next := models.NextPurchaseOrderStatus(po.Status, valuesOf(poLines))
		if next != po.Status {
			if err := tx.Model(po).UpdateColumn("status", next).Error; err != nil {
				return nil, err
			}
			po.Status = next
		}
	}

	now := time.Now().UTC()
	actor := utils.GetActorFromContext(ctx)
	before := grn.Status
	grn.Status = models.DocumentStatusPosted
	grn.PostedAt = &now
	grn.PostedBy = actor.Label()
	if err := tx.Model(grn).UpdateColumns(map[string]interface{}{
		"status":    grn.Status,
		"posted_at": grn.PostedAt,
		"posted_by": grn.PostedBy,
	}).Error; err != nil {
		return nil, err
	}
	models.RecordAudit(ctx, tx, models.AuditRecord{Table: "goods_receipts", RowId: grn.ID, Action: models.AuditActionPost, Before: before, After: grn.Status})
	return grn, nil
}

// lockPurchaseOrder locks the order row and loads its lines. Cancelled orders take no receipts.
func lockPurchaseOrder(ctx context.Context, tx *gorm.DB, poId int) (*models.PurchaseOrder, map[int]*models.PurchaseOrderLine, error) {
	po, err := utils.FetchModelForUpdate[models.PurchaseOrder](ctx, tx, poId)
	if err != nil {
		return nil, nil, models.WrapNotFound(err, "purchase order", poId)
	}
	if po.Status == models.PurchaseOrderStatusCancelled {
		return nil, nil, &models.InvalidStateError{Document: "purchase order", Id: poId, Current: string(po.Status), Target: "receive"}
	}
	var lines []models.PurchaseOrderLine
	if err := tx.Where("purchase_order_id = ?", poId).Order("id").Find(&lines).Error; err != nil {
		return nil, nil, err
	}
	byId := make(map[int]*models.PurchaseOrderLine, len(lines))
	for i := range lines {
		byId[lines[i].ID] = &lines[i]
	}
	return po, byId, nil
}

// applyReceiptToOrder checks cumulative receipt per order line against the ordered quantity in
// base units and stores the new received quantity. Previously posted receipts are summed from
// the receipt lines, not from the stored counter.
func applyReceiptToOrder(ctx context.Context, tx *gorm.DB, grn *models.GoodsReceipt, poLines map[int]*models.PurchaseOrderLine, products map[int]*models.Product) error {
	lineIds := make([]int, 0, len(grn.Lines))
	for _, l := range grn.Lines {
		if l.PurchaseOrderLineId != nil {
			lineIds = append(lineIds, *l.PurchaseOrderLineId)
		}
	}
	received, err := models.ReceivedBaseForLines(ctx, tx, lineIds)
	if err != nil {
		return err
	}

	touched := make(map[int]bool)
	for _, l := range grn.Lines {
		if l.PurchaseOrderLineId == nil {
			continue
		}
		poLineId := *l.PurchaseOrderLineId
		poLine, ok := poLines[poLineId]
		if !ok {
			return &models.ValidationError{Field: "purchase_order_line_id", Detail: "line does not belong to the purchase order"}
		}
		if poLine.ProductId != l.ProductId {
			return &models.ValidationError{Field: "product_id", Detail: "does not match the purchase order line"}
		}
		orderedBase := poLine.QtyPacksOrdered.Mul(products[l.ProductId].UnitsPerPack)
		already := received[poLineId]
		if already.Add(l.QtyBase).GreaterThan(orderedBase) {
			return &models.QuantityExceedsOrderError{
				PurchaseOrderLineId: poLineId,
				Ordered:             orderedBase,
				AlreadyReceived:     already,
				Attempted:           l.QtyBase,
			}
		}
		received[poLineId] = already.Add(l.QtyBase)
		poLine.QtyBaseOrdered = orderedBase
		touched[poLineId] = true
	}

	for poLineId := range touched {
		poLine := poLines[poLineId]
		poLine.QtyBaseReceived = received[poLineId]
		poLine.QtyPacksReceived = poLine.QtyBaseReceived.Div(products[poLine.ProductId].UnitsPerPack).Round(utils.AmountPlaces)
		if err := tx.Model(poLine).UpdateColumns(map[string]interface{}{
			"qty_base_ordered":   poLine.QtyBaseOrdered,
			"qty_base_received":  poLine.QtyBaseReceived,
			"qty_packs_received": poLine.QtyPacksReceived,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// applyReceiptPrices keeps the latest purchase cost and MRP on the product and the batch.
// unit_cost is per entered unit; the pack price is derived through the base quantity.
func applyReceiptPrices(ctx context.Context, tx *gorm.DB, product *models.Product, lot *models.BatchLot, line *models.GoodsReceiptLine) error {
	productCols := map[string]interface{}{}
	lotCols := map[string]interface{}{}

	if line.UnitCost.IsPositive() && line.QtyBase.IsPositive() {
		perBase := line.Quantity.Mul(line.UnitCost).Div(line.QtyBase).Round(utils.AmountPlaces)
		perPack := perBase.Mul(product.UnitsPerPack).Round(utils.AmountPlaces)
		productCols["last_purchase_cost"] = perPack
		lotCols["purchase_price"] = perPack
		lotCols["purchase_price_per_base"] = perBase
		product.LastPurchaseCost = perPack
		lot.PurchasePrice = perPack
		lot.PurchasePricePerBase = perBase
	}
	if line.Mrp.IsPositive() {
		productCols["mrp"] = line.Mrp
		lotCols["mrp"] = line.Mrp
		product.Mrp = line.Mrp
		lot.Mrp = line.Mrp
	}
	if len(productCols) > 0 {
		if err := tx.WithContext(ctx).Model(product).UpdateColumns(productCols).Error; err != nil {
			return err
		}
	}
	if len(lotCols) > 0 {
		if err := tx.WithContext(ctx).Model(lot).UpdateColumns(lotCols).Error; err != nil {
			return err
		}
	}
	return nil
}

func productIdsOfReceipt(lines []models.GoodsReceiptLine) []int {
	ids := make([]int, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductId)
	}
	return ids
}

func valuesOf(m map[int]*models.PurchaseOrderLine) []models.PurchaseOrderLine {
	out := make([]models.PurchaseOrderLine, 0, len(m))
	for _, l := range m {
		out = append(out, *l)
	}
	return out
}
