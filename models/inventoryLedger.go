package models

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type MovementInput struct {
	LocationId int
	BatchLotId int
	QtyDelta   decimal.Decimal
	Reason     MovementReason
	RefDocType RefDocType
	RefDocId   int
	RefLineId  int
	Note       string
	// AllowNegative skips the sufficiency check for outgoing movements.
	AllowNegative bool
}

// SumMovements adds signed deltas exactly. Order does not matter.
func SumMovements(deltas []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range deltas {
		total = total.Add(d)
	}
	return total
}

// StockOnHand is the sum of every movement for the pair; no rows means zero.
func StockOnHand(ctx context.Context, db *gorm.DB, locationId int, batchLotId int) (decimal.Decimal, error) {
	var deltas []decimal.Decimal
	err := db.WithContext(ctx).
		Model(&InventoryMovement{}).
		Where("location_id = ? AND batch_lot_id = ?", locationId, batchLotId).
		Pluck("qty_change_base", &deltas).Error
	if err != nil {
		return decimal.Zero, err
	}
	return SumMovements(deltas), nil
}

// StockOnHandByBatch returns the total across all locations.
func StockOnHandByBatch(ctx context.Context, db *gorm.DB, batchLotId int) (decimal.Decimal, error) {
	var deltas []decimal.Decimal
	err := db.WithContext(ctx).
		Model(&InventoryMovement{}).
		Where("batch_lot_id = ?", batchLotId).
		Pluck("qty_change_base", &deltas).Error
	if err != nil {
		return decimal.Zero, err
	}
	return SumMovements(deltas), nil
}

// LockBatchLots takes row locks on batch lots in ascending id order.
func LockBatchLots(ctx context.Context, tx *gorm.DB, ids []int) (map[int]*BatchLot, error) {
	rows, err := utils.LockModelsForUpdate[BatchLot](ctx, tx, ids)
	if err != nil {
		return nil, WrapNotFound(err, "batch lot", firstMissing(ids, rows, func(b BatchLot) int { return b.ID }))
	}
	out := make(map[int]*BatchLot, len(rows))
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// LockLocations takes row locks on locations in ascending id order.
func LockLocations(ctx context.Context, tx *gorm.DB, ids []int) (map[int]*Location, error) {
	rows, err := utils.LockModelsForUpdate[Location](ctx, tx, ids)
	if err != nil {
		return nil, WrapNotFound(err, "location", firstMissing(ids, rows, func(l Location) int { return l.ID }))
	}
	out := make(map[int]*Location, len(rows))
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

func firstMissing[T any](ids []int, rows []T, idOf func(T) int) int {
	found := make(map[int]bool, len(rows))
	for _, r := range rows {
		found[idOf(r)] = true
	}
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	for _, id := range sorted {
		if !found[id] {
			return id
		}
	}
	return 0
}

// WriteMovement appends one ledger row. The batch and location rows are locked first
// (already-held locks are re-entrant within the transaction), and an outgoing delta is checked
// against the balance read under that lock. The audit record is written in a savepoint and
// its failure never fails the movement.
func WriteMovement(ctx context.Context, tx *gorm.DB, in MovementInput) (int, error) {
	if in.QtyDelta.IsZero() {
		return 0, &ValidationError{Field: "qty_delta", Detail: "must not be zero", Err: ErrInvalidQuantity}
	}
	if !in.Reason.IsValid() {
		return 0, &ValidationError{Field: "reason", Detail: "unknown movement reason " + string(in.Reason)}
	}

	lots, err := LockBatchLots(ctx, tx, []int{in.BatchLotId})
	if err != nil {
		return 0, err
	}
	if _, err := LockLocations(ctx, tx, []int{in.LocationId}); err != nil {
		return 0, err
	}
	lot := lots[in.BatchLotId]

	if in.QtyDelta.IsNegative() && !in.AllowNegative {
		balance, err := StockOnHand(ctx, tx, in.LocationId, in.BatchLotId)
		if err != nil {
			return 0, err
		}
		if balance.Add(in.QtyDelta).IsNegative() {
			return 0, &InsufficientStockError{
				LocationId: in.LocationId,
				BatchLotId: in.BatchLotId,
				BatchNo:    lot.BatchNo,
				ProductId:  lot.ProductId,
				Requested:  in.QtyDelta.Neg(),
				Available:  balance,
			}
		}
	}

	actor := utils.GetActorFromContext(ctx)
	movement := InventoryMovement{
		LocationId:    in.LocationId,
		BatchLotId:    in.BatchLotId,
		ProductId:     lot.ProductId,
		QtyChangeBase: in.QtyDelta,
		Reason:        in.Reason,
		RefDocType:    in.RefDocType,
		RefDocId:      in.RefDocId,
		RefLineId:     in.RefLineId,
		Note:          in.Note,
		ActorId:       actor.ID,
		ActorName:     actor.Label(),
		CorrelationId: utils.CorrelationIdOrNew(ctx),
	}
	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		return 0, err
	}
	config.LedgerMovementsTotal.WithLabelValues(string(in.Reason)).Inc()

	RecordAudit(ctx, tx, AuditRecord{
		Table:  "inventory_movements",
		RowId:  movement.ID,
		Action: AuditActionCreate,
		After:  movement,
	})
	return movement.ID, nil
}

// RecordAudit runs the audit sink inside a savepoint; errors are logged and swallowed.
func RecordAudit(ctx context.Context, tx *gorm.DB, rec AuditRecord) {
	sink := GetAuditSink()
	if sink == nil {
		return
	}
	err := tx.WithContext(ctx).Transaction(func(stx *gorm.DB) error {
		return sink.Record(ctx, stx, rec)
	})
	if err != nil {
		config.AuditFailuresTotal.Inc()
		config.GetLogger().WithFields(logrus.Fields{
			"field":          "Audit",
			"table":          rec.Table,
			"row_id":         rec.RowId,
			"action":         rec.Action,
			"correlation_id": utils.CorrelationIdOrNew(ctx),
		}).Error("audit record failed: " + err.Error())
	}
}

// ClassifyStock buckets a quantity against the low-stock threshold.
func ClassifyStock(qty decimal.Decimal, lowThreshold decimal.Decimal) StockStatus {
	switch {
	case !qty.IsPositive():
		return StockStatusOutOfStock
	case qty.LessThanOrEqual(lowThreshold):
		return StockStatusLowStock
	}
	return StockStatusInStock
}

// IsExpiring is independent of ClassifyStock: a lot can be LOW_STOCK and expiring.
func IsExpiring(expiry time.Time, warningDays int) bool {
	today := utils.Today()
	limit := today.AddDate(0, 0, warningDays)
	return !utils.ToDate(expiry).After(limit)
}

/* derived views */

type StockFilter struct {
	LocationId *int
	ProductId  *int
	BatchLotId *int
	// IncludeZero keeps pairs whose movements net to zero.
	IncludeZero bool
}

type StockRow struct {
	LocationId   int             `json:"location_id"`
	LocationName string          `json:"location_name"`
	BatchLotId   int             `json:"batch_lot_id"`
	BatchNo      string          `json:"batch_no"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	BatchStatus  BatchLotStatus  `json:"batch_status"`
	ProductId    int             `json:"product_id"`
	ProductName  string          `json:"product_name"`
	StockBase    decimal.Decimal `json:"stock_base"`
}

type movementKey struct {
	LocationId int
	BatchLotId int
}

type movementAmount struct {
	LocationId    int
	BatchLotId    int
	ProductId     int
	QtyChangeBase decimal.Decimal
}

func sumByPair(ctx context.Context, db *gorm.DB, filter StockFilter) (map[movementKey]decimal.Decimal, map[movementKey]int, error) {
	q := db.WithContext(ctx).Model(&InventoryMovement{}).
		Select("location_id, batch_lot_id, product_id, qty_change_base")
	if filter.LocationId != nil {
		q = q.Where("location_id = ?", *filter.LocationId)
	}
	if filter.ProductId != nil {
		q = q.Where("product_id = ?", *filter.ProductId)
	}
	if filter.BatchLotId != nil {
		q = q.Where("batch_lot_id = ?", *filter.BatchLotId)
	}
	var amounts []movementAmount
	if err := q.Scan(&amounts).Error; err != nil {
		return nil, nil, err
	}
	sums := make(map[movementKey]decimal.Decimal)
	products := make(map[movementKey]int)
	for _, a := range amounts {
		k := movementKey{a.LocationId, a.BatchLotId}
		sums[k] = sums[k].Add(a.QtyChangeBase)
		products[k] = a.ProductId
	}
	return sums, products, nil
}

// StockQuery lists per (location, batch) balances with their product and batch details.
func StockQuery(ctx context.Context, db *gorm.DB, filter StockFilter) ([]StockRow, error) {
	sums, _, err := sumByPair(ctx, db, filter)
	if err != nil {
		return nil, err
	}
	batchIds := make([]int, 0, len(sums))
	locationIds := make([]int, 0, len(sums))
	for k, qty := range sums {
		if qty.IsZero() && !filter.IncludeZero {
			continue
		}
		batchIds = append(batchIds, k.BatchLotId)
		locationIds = append(locationIds, k.LocationId)
	}
	lots, err := loadBatchLots(ctx, db, batchIds)
	if err != nil {
		return nil, err
	}
	locations, err := loadLocations(ctx, db, locationIds)
	if err != nil {
		return nil, err
	}

	rows := make([]StockRow, 0, len(batchIds))
	for k, qty := range sums {
		if qty.IsZero() && !filter.IncludeZero {
			continue
		}
		row := StockRow{LocationId: k.LocationId, BatchLotId: k.BatchLotId, StockBase: qty}
		if loc, ok := locations[k.LocationId]; ok {
			row.LocationName = loc.Name
		}
		if lot, ok := lots[k.BatchLotId]; ok {
			row.BatchNo = lot.BatchNo
			row.ExpiryDate = lot.ExpiryDate
			row.BatchStatus = lot.Status
			row.ProductId = lot.ProductId
			if lot.Product != nil {
				row.ProductName = lot.Product.Name
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].LocationId != rows[j].LocationId {
			return rows[i].LocationId < rows[j].LocationId
		}
		return rows[i].BatchLotId < rows[j].BatchLotId
	})
	return rows, nil
}

type ProductStock struct {
	ProductId   int             `json:"product_id"`
	ProductName string          `json:"product_name"`
	StockBase   decimal.Decimal `json:"stock_base"`
	Threshold   decimal.Decimal `json:"threshold"`
	Status      StockStatus     `json:"status"`
}

// GlobalInventory aggregates stock per product across every location.
func GlobalInventory(ctx context.Context, db *gorm.DB, defaultThreshold decimal.Decimal) ([]ProductStock, error) {
	return productTotals(ctx, db, StockFilter{}, defaultThreshold)
}

type LowStockRow struct {
	LocationId int `json:"location_id"`
	ProductStock
}

// LowStock returns products at the location whose stock is at or below their threshold.
// A product's reorder_level overrides the location-wide default.
func LowStock(ctx context.Context, db *gorm.DB, locationId int, defaultThreshold decimal.Decimal) ([]LowStockRow, error) {
	totals, err := productTotals(ctx, db, StockFilter{LocationId: &locationId}, defaultThreshold)
	if err != nil {
		return nil, err
	}
	rows := make([]LowStockRow, 0)
	for _, t := range totals {
		if t.StockBase.LessThanOrEqual(t.Threshold) {
			rows = append(rows, LowStockRow{LocationId: locationId, ProductStock: t})
		}
	}
	return rows, nil
}

func productTotals(ctx context.Context, db *gorm.DB, filter StockFilter, defaultThreshold decimal.Decimal) ([]ProductStock, error) {
	sums, products, err := sumByPair(ctx, db, filter)
	if err != nil {
		return nil, err
	}
	totals := make(map[int]decimal.Decimal)
	for k, qty := range sums {
		pid := products[k]
		totals[pid] = totals[pid].Add(qty)
	}
	productIds := make([]int, 0, len(totals))
	for pid := range totals {
		productIds = append(productIds, pid)
	}
	sort.Ints(productIds)

	var productRows []Product
	if len(productIds) > 0 {
		if err := db.WithContext(ctx).Where("id IN ?", productIds).Find(&productRows).Error; err != nil {
			return nil, err
		}
	}
	byId := make(map[int]Product, len(productRows))
	for _, p := range productRows {
		byId[p.ID] = p
	}

	out := make([]ProductStock, 0, len(productIds))
	for _, pid := range productIds {
		p := byId[pid]
		threshold := defaultThreshold
		if p.ReorderLevel != nil {
			threshold = *p.ReorderLevel
		}
		out = append(out, ProductStock{
			ProductId:   pid,
			ProductName: p.Name,
			StockBase:   totals[pid],
			Threshold:   threshold,
			Status:      ClassifyStock(totals[pid], threshold),
		})
	}
	return out, nil
}

type NearExpiryRow struct {
	LocationId   int             `json:"location_id"`
	BatchLotId   int             `json:"batch_lot_id"`
	BatchNo      string          `json:"batch_no"`
	ProductId    int             `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	DaysToExpiry int             `json:"days_to_expiry"`
	StockBase    decimal.Decimal `json:"stock_base"`
}

// NearExpiry lists (location, batch) pairs with positive stock expiring within days from today.
func NearExpiry(ctx context.Context, db *gorm.DB, locationId *int, days int) ([]NearExpiryRow, error) {
	today := utils.Today()
	limit := today.AddDate(0, 0, days)

	var lots []BatchLot
	if err := db.WithContext(ctx).Preload("Product").
		Where("expiry_date >= ? AND expiry_date <= ?", today, limit).
		Order("expiry_date, id").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return []NearExpiryRow{}, nil
	}
	lotIds := make([]int, 0, len(lots))
	for _, l := range lots {
		lotIds = append(lotIds, l.ID)
	}

	q := db.WithContext(ctx).Model(&InventoryMovement{}).
		Select("location_id, batch_lot_id, product_id, qty_change_base").
		Where("batch_lot_id IN ?", lotIds)
	if locationId != nil {
		q = q.Where("location_id = ?", *locationId)
	}
	var amounts []movementAmount
	if err := q.Scan(&amounts).Error; err != nil {
		return nil, err
	}
	sums := make(map[movementKey]decimal.Decimal)
	for _, a := range amounts {
		k := movementKey{a.LocationId, a.BatchLotId}
		sums[k] = sums[k].Add(a.QtyChangeBase)
	}

	rows := make([]NearExpiryRow, 0)
	for _, lot := range lots {
		keys := make([]movementKey, 0)
		for k := range sums {
			if k.BatchLotId == lot.ID {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].LocationId < keys[j].LocationId })
		for _, k := range keys {
			qty := sums[k]
			if !qty.IsPositive() {
				continue
			}
			row := NearExpiryRow{
				LocationId:   k.LocationId,
				BatchLotId:   lot.ID,
				BatchNo:      lot.BatchNo,
				ProductId:    lot.ProductId,
				ExpiryDate:   lot.ExpiryDate,
				DaysToExpiry: int(utils.ToDate(lot.ExpiryDate).Sub(today).Hours() / 24),
				StockBase:    qty,
			}
			if lot.Product != nil {
				row.ProductName = lot.Product.Name
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func loadBatchLots(ctx context.Context, db *gorm.DB, ids []int) (map[int]BatchLot, error) {
	out := make(map[int]BatchLot)
	ids = utils.UniqueSlice(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var lots []BatchLot
	if err := db.WithContext(ctx).Preload("Product").Where("id IN ?", ids).Find(&lots).Error; err != nil {
		return nil, err
	}
	for _, l := range lots {
		out[l.ID] = l
	}
	return out, nil
}

func loadLocations(ctx context.Context, db *gorm.DB, ids []int) (map[int]Location, error) {
	out := make(map[int]Location)
	ids = utils.UniqueSlice(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var locations []Location
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&locations).Error; err != nil {
		return nil, err
	}
	for _, l := range locations {
		out[l.ID] = l
	}
	return out, nil
}
