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

// PostSalesInvoice posts a DRAFT invoice. Lines without a batch are allocated FEFO and may be
// split over several batches; every line becomes one SALE movement. Products at or below their
// threshold after the sale are reported to the notification sink once the transaction commits.
func PostSalesInvoice(ctx context.Context, db *gorm.DB, invoiceId int) (*models.SalesInvoice, error) {
	if db == nil {
		db = config.GetDB()
	}
	settings := models.LoadPostingSettings(ctx)

	var invoice *models.SalesInvoice
	err := runPosting(ctx, db, "invoice", invoiceId, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		invoice, err = postSalesInvoice(ctx, tx, invoiceId, settings)
		return err
	})
	if err != nil {
		return nil, err
	}

	productIds := make([]int, 0, len(invoice.Lines))
	for _, l := range invoice.Lines {
		productIds = append(productIds, l.ProductId)
	}
	NotifyLowStock(ctx, db, invoice.LocationId, productIds, settings.LowStockDefault)
	return invoice, nil
}

// plannedLine is one persisted sales line after FEFO splitting.
type plannedLine struct {
	line       models.SalesLine
	batchLotId int
}

func postSalesInvoice(ctx context.Context, tx *gorm.DB, invoiceId int, settings models.PostingSettings) (*models.SalesInvoice, error) {
	invoice, err := utils.FetchModelForUpdate[models.SalesInvoice](ctx, tx, invoiceId)
	if err != nil {
		return nil, models.WrapNotFound(err, "sales invoice", invoiceId)
	}
	switch invoice.Status {
	case models.DocumentStatusDraft:
	case models.DocumentStatusPosted:
		return nil, &models.AlreadyPostedError{Document: "sales invoice", Id: invoiceId}
	default:
		return nil, &models.InvalidStateError{Document: "sales invoice", Id: invoiceId, Current: string(invoice.Status), Target: string(models.DocumentStatusPosted)}
	}

	var lines []models.SalesLine
	if err := tx.Where("sales_invoice_id = ?", invoiceId).Order("id").Find(&lines).Error; err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &models.ValidationError{Field: "lines", Detail: "sales invoice has no lines"}
	}
	var prescriptions []models.Prescription
	if err := tx.Where("sales_invoice_id = ?", invoiceId).Limit(1).Find(&prescriptions).Error; err != nil {
		return nil, err
	}
	var rx *models.Prescription
	if len(prescriptions) > 0 {
		rx = &prescriptions[0]
	}

	products, err := loadProducts(ctx, tx, idsOf(lines, func(l models.SalesLine) int { return l.ProductId }))
	if err != nil {
		return nil, err
	}
	if err := requirePrescription(invoiceId, lines, products, rx); err != nil {
		return nil, err
	}

	planned, err := planSalesLines(ctx, tx, invoice.LocationId, lines)
	if err != nil {
		return nil, err
	}

	lotIds := make([]int, 0, len(planned))
	for _, p := range planned {
		lotIds = append(lotIds, p.batchLotId)
	}
	lots, err := models.LockBatchLots(ctx, tx, lotIds)
	if err != nil {
		return nil, err
	}
	if _, err := models.LockLocations(ctx, tx, []int{invoice.LocationId}); err != nil {
		return nil, err
	}
	if !settings.AllowNegativeStock {
		if err := verifyStockUnderLock(ctx, tx, invoice.LocationId, planned, lots); err != nil {
			return nil, err
		}
	}

	taxMethod := invoice.TaxMethod
	if taxMethod == "" {
		taxMethod = settings.DefaultTaxMethod
	}
	inclusive := taxMethod == models.TaxMethodInclusive

	gross, discount, tax, net := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	posted := make([]models.SalesLine, 0, len(planned))
	for i := range planned {
		line := planned[i].line
		product := products[line.ProductId]
		lot := lots[planned[i].batchLotId]

		taxPercent := product.TaxPercent(settings.DefaultTaxRate)
		if line.TaxPercent != nil {
			taxPercent = *line.TaxPercent
		}
		lineGross := line.QtyBase.Mul(line.Rate)
		discountAmount := utils.CalculateDiscountAmount(lineGross, line.Discount, line.DiscountType)
		lt := utils.CalculateLineTax(line.QtyBase, line.Rate, discountAmount, taxPercent, inclusive)

		expiry := lot.ExpiryDate
		line.BatchLotId = &lot.ID
		line.TaxPercent = &taxPercent
		line.TaxableAmount = lt.Taxable
		line.TaxAmount = lt.TaxAmount
		line.LineTotal = lt.LineTotal
		line.ProductName = product.Name
		line.Schedule = product.Schedule
		line.BatchNo = lot.BatchNo
		line.ExpiryDate = &expiry
		line.Mrp = lot.Mrp
		if line.Mrp.IsZero() {
			line.Mrp = product.Mrp
		}
		if err := tx.Save(&line).Error; err != nil {
			return nil, err
		}

		_, err := models.WriteMovement(ctx, tx, models.MovementInput{
			LocationId:    invoice.LocationId,
			BatchLotId:    lot.ID,
			QtyDelta:      line.QtyBase.Neg(),
			Reason:        models.MovementReasonSale,
			RefDocType:    models.RefDocSalesInvoice,
			RefDocId:      invoice.ID,
			RefLineId:     line.ID,
			Note:          invoice.InvoiceNo,
			AllowNegative: settings.AllowNegativeStock,
		})
		if err != nil {
			return nil, err
		}

		gross = gross.Add(lt.Gross)
		discount = discount.Add(lt.Discount)
		tax = tax.Add(lt.TaxAmount)
		net = net.Add(lt.LineTotal)
		posted = append(posted, line)
	}

	if err := writeComplianceEntries(ctx, tx, invoice, posted, rx); err != nil {
		return nil, err
	}

	rounded, roundOff := utils.RoundOff(net)
	now := time.Now().UTC()
	invoice.Status = models.DocumentStatusPosted
	invoice.TaxMethod = taxMethod
	invoice.GrossAmount = gross
	invoice.DiscountAmount = discount
	invoice.TaxAmount = tax
	invoice.RoundOff = roundOff
	invoice.NetTotal = rounded
	invoice.PostedAt = &now
	invoice.PostedBy = utils.GetActorFromContext(ctx).Label()
	if err := tx.Model(invoice).UpdateColumns(map[string]interface{}{
		"status":          invoice.Status,
		"tax_method":      invoice.TaxMethod,
		"gross_amount":    invoice.GrossAmount,
		"discount_amount": invoice.DiscountAmount,
		"tax_amount":      invoice.TaxAmount,
		"round_off":       invoice.RoundOff,
		"net_total":       invoice.NetTotal,
		"posted_at":       invoice.PostedAt,
		"posted_by":       invoice.PostedBy,
	}).Error; err != nil {
		return nil, err
	}
	if err := models.RefreshPaymentStatus(ctx, tx, invoice); err != nil {
		return nil, err
	}
	invoice.Lines = posted
	invoice.Prescription = rx
	models.RecordAudit(ctx, tx, models.AuditRecord{Table: "sales_invoices", RowId: invoice.ID, Action: models.AuditActionPost, Before: models.DocumentStatusDraft, After: invoice})
	return invoice, nil
}

func requirePrescription(invoiceId int, lines []models.SalesLine, products map[int]*models.Product, rx *models.Prescription) error {
	if rx != nil {
		return nil
	}
	var missing []int
	for _, l := range lines {
		if products[l.ProductId].Schedule.RequiresPrescription() {
			missing = append(missing, l.ProductId)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &models.PrescriptionRequiredError{InvoiceId: invoiceId, ProductIds: utils.UniqueSlice(missing)}
}

// planSalesLines resolves the batch of every line. Explicit batches are checked for product and
// status; the rest are split FEFO over sellable stock at the location. The first allocation
// keeps the original line row, further ones become new lines with a prorated amount discount.
func planSalesLines(ctx context.Context, tx *gorm.DB, locationId int, lines []models.SalesLine) ([]plannedLine, error) {
	var fefoProducts []int
	explicit := make([]int, 0)
	for _, l := range lines {
		if l.BatchLotId == nil {
			fefoProducts = append(fefoProducts, l.ProductId)
		} else {
			explicit = append(explicit, *l.BatchLotId)
		}
	}
	fefoProducts = utils.UniqueSlice(fefoProducts)

	explicitLots := make(map[int]models.BatchLot)
	if len(explicit) > 0 {
		var rows []models.BatchLot
		if err := tx.WithContext(ctx).Where("id IN ?", utils.UniqueSlice(explicit)).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			explicitLots[r.ID] = r
		}
	}

	candidates, err := loadFefoCandidates(ctx, tx, locationId, fefoProducts)
	if err != nil {
		return nil, err
	}
	pool := NewFefoPool(locationId, candidates)

	planned := make([]plannedLine, 0, len(lines))
	for _, l := range lines {
		if l.BatchLotId == nil {
			continue
		}
		lot, ok := explicitLots[*l.BatchLotId]
		if !ok {
			return nil, &models.NotFoundError{Entity: "batch lot", Id: *l.BatchLotId}
		}
		if lot.ProductId != l.ProductId {
			return nil, &models.ValidationError{Field: "batch_lot_id", Detail: "batch " + lot.BatchNo + " belongs to a different product"}
		}
		if !lot.IsSellable() {
			return nil, &models.ValidationError{Field: "batch_lot_id", Detail: "batch " + lot.BatchNo + " is " + string(lot.Status) + " or expired", Err: models.ErrBatchUnavailable}
		}
		pool.Reserve(l.ProductId, lot.ID, l.QtyBase)
	}

	for _, l := range lines {
		if l.BatchLotId != nil {
			planned = append(planned, plannedLine{line: l, batchLotId: *l.BatchLotId})
			continue
		}
		allocations, err := pool.Allocate(l.ProductId, l.QtyBase)
		if err != nil {
			return nil, err
		}
		planned = append(planned, splitSalesLine(l, allocations)...)
	}
	return planned, nil
}

func splitSalesLine(l models.SalesLine, allocations []FefoAllocation) []plannedLine {
	out := make([]plannedLine, 0, len(allocations))
	amountDiscount := l.DiscountType != "P"
	discountLeft := l.Discount
	for i, a := range allocations {
		part := l
		if i > 0 {
			part.ID = 0
		}
		part.QtyBase = a.Qty
		if amountDiscount && len(allocations) > 1 {
			if i == len(allocations)-1 {
				part.Discount = discountLeft
			} else {
				part.Discount = l.Discount.Mul(a.Qty).Div(l.QtyBase).Round(utils.AmountPlaces)
				discountLeft = discountLeft.Sub(part.Discount)
			}
		}
		batchLotId := a.BatchLotId
		part.BatchLotId = &batchLotId
		out = append(out, plannedLine{line: part, batchLotId: batchLotId})
	}
	return out
}

// verifyStockUnderLock re-reads balances after the batch and location locks are held.
func verifyStockUnderLock(ctx context.Context, tx *gorm.DB, locationId int, planned []plannedLine, lots map[int]*models.BatchLot) error {
	requested := make(map[int]decimal.Decimal)
	for _, p := range planned {
		requested[p.batchLotId] = requested[p.batchLotId].Add(p.line.QtyBase)
	}
	return verifyBatchStock(ctx, tx, locationId, requested, lots)
}

// CancelSalesInvoice returns the stock of a POSTED invoice with one ADJUSTMENT per line.
// Register entries stay; NDPS stock coming back is booked as received on the cancel date.
func CancelSalesInvoice(ctx context.Context, db *gorm.DB, invoiceId int) (*models.SalesInvoice, error) {
	var invoice *models.SalesInvoice
	err := runPosting(ctx, db, "invoice_cancel", invoiceId, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		invoice, err = utils.FetchModelForUpdate[models.SalesInvoice](ctx, tx, invoiceId)
		if err != nil {
			return models.WrapNotFound(err, "sales invoice", invoiceId)
		}
		if invoice.Status != models.DocumentStatusPosted {
			return &models.InvalidStateError{Document: "sales invoice", Id: invoiceId, Current: string(invoice.Status), Target: string(models.DocumentStatusCancelled)}
		}
		if err := tx.Where("sales_invoice_id = ?", invoiceId).Order("id").Find(&invoice.Lines).Error; err != nil {
			return err
		}

		lotIds := make([]int, 0, len(invoice.Lines))
		for _, l := range invoice.Lines {
			if l.BatchLotId != nil {
				lotIds = append(lotIds, *l.BatchLotId)
			}
		}
		if _, err := models.LockBatchLots(ctx, tx, lotIds); err != nil {
			return err
		}
		if _, err := models.LockLocations(ctx, tx, []int{invoice.LocationId}); err != nil {
			return err
		}

		today := utils.Today()
		for _, l := range invoice.Lines {
			if l.BatchLotId == nil || !l.QtyBase.IsPositive() {
				continue
			}
			_, err := models.WriteMovement(ctx, tx, models.MovementInput{
				LocationId: invoice.LocationId,
				BatchLotId: *l.BatchLotId,
				QtyDelta:   l.QtyBase,
				Reason:     models.MovementReasonAdjustment,
				RefDocType: models.RefDocSalesInvoice,
				RefDocId:   invoice.ID,
				RefLineId:  l.ID,
				Note:       "cancel " + invoice.InvoiceNo,
			})
			if err != nil {
				return err
			}
			if l.Schedule == models.ScheduleNDPS {
				if _, err := models.UpsertNDPSDaily(ctx, tx, l.ProductId, today, l.QtyBase, decimal.Zero); err != nil {
					return err
				}
			}
		}

		now := time.Now().UTC()
		invoice.Status = models.DocumentStatusCancelled
		invoice.CancelledAt = &now
		if err := tx.Model(invoice).UpdateColumns(map[string]interface{}{
			"status":       invoice.Status,
			"cancelled_at": invoice.CancelledAt,
		}).Error; err != nil {
			return err
		}
		models.RecordAudit(ctx, tx, models.AuditRecord{Table: "sales_invoices", RowId: invoice.ID, Action: models.AuditActionCancel, Before: models.DocumentStatusPosted, After: invoice.Status})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}
