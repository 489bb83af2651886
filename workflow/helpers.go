package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// loadProducts reads the products referenced by a document. A missing id is a NotFoundError.
func loadProducts(ctx context.Context, tx *gorm.DB, ids []int) (map[int]*models.Product, error) {
	unq := utils.UniqueSlice(ids)
	var rows []models.Product
	if len(unq) > 0 {
		if err := tx.WithContext(ctx).Where("id IN ?", unq).Find(&rows).Error; err != nil {
			return nil, err
		}
	}
	out := make(map[int]*models.Product, len(rows))
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	for _, id := range unq {
		if _, ok := out[id]; !ok {
			return nil, &models.NotFoundError{Entity: "product", Id: id}
		}
	}
	return out, nil
}

// bookNDPSDelta records a stock change of an NDPS product in the daily register: a positive
// delta as received, a negative one as issued. Other schedules are ignored.
func bookNDPSDelta(ctx context.Context, tx *gorm.DB, productId int, day time.Time, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	products, err := loadProducts(ctx, tx, []int{productId})
	if err != nil {
		return err
	}
	if products[productId].Schedule != models.ScheduleNDPS {
		return nil
	}
	in, out := decimal.Zero, decimal.Zero
	if delta.IsPositive() {
		in = delta
	} else {
		out = delta.Neg()
	}
	_, err = models.UpsertNDPSDaily(ctx, tx, productId, day, in, out)
	return err
}

func idsOf[T any](lines []T, idOf func(T) int) []int {
	ids := make([]int, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, idOf(l))
	}
	return ids
}

func lockingClause() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// verifyBatchStock fails on the first batch (ascending id) whose requested total exceeds the
// balance at the location. Callers hold the batch and location locks.
func verifyBatchStock(ctx context.Context, tx *gorm.DB, locationId int, requested map[int]decimal.Decimal, lots map[int]*models.BatchLot) error {
	ids := make([]int, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		available, err := models.StockOnHand(ctx, tx, locationId, id)
		if err != nil {
			return err
		}
		if available.LessThan(requested[id]) {
			e := &models.InsufficientStockError{
				LocationId: locationId,
				BatchLotId: id,
				Requested:  requested[id],
				Available:  available,
			}
			if lot, ok := lots[id]; ok {
				e.BatchNo = lot.BatchNo
				e.ProductId = lot.ProductId
			}
			return e
		}
	}
	return nil
}
