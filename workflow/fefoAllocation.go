package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FefoCandidate is a sellable batch with stock at the selling location.
type FefoCandidate struct {
	BatchLotId int
	BatchNo    string
	ProductId  int
	ExpiryDate time.Time
	Available  decimal.Decimal
}

type FefoAllocation struct {
	BatchLotId int
	Qty        decimal.Decimal
}

// FefoPool hands out stock first-expiry-first-out. Allocations across lines of the same
// document draw down the same pool.
type FefoPool struct {
	locationId int
	byProduct  map[int][]*FefoCandidate
}

func NewFefoPool(locationId int, candidates []FefoCandidate) *FefoPool {
	pool := &FefoPool{locationId: locationId, byProduct: make(map[int][]*FefoCandidate)}
	for i := range candidates {
		c := candidates[i]
		pool.byProduct[c.ProductId] = append(pool.byProduct[c.ProductId], &c)
	}
	for _, list := range pool.byProduct {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].ExpiryDate.Equal(list[j].ExpiryDate) {
				return list[i].ExpiryDate.Before(list[j].ExpiryDate)
			}
			return list[i].BatchLotId < list[j].BatchLotId
		})
	}
	return pool
}

// Reserve takes qty from a specific batch, as for a line with an explicit batch.
// It never fails; the ledger check under lock is authoritative for explicit batches.
func (p *FefoPool) Reserve(productId int, batchLotId int, qty decimal.Decimal) {
	for _, c := range p.byProduct[productId] {
		if c.BatchLotId == batchLotId {
			c.Available = c.Available.Sub(qty)
			return
		}
	}
}

// Allocate splits qty over batches in expiry order. Nothing is taken when the total available
// is short.
func (p *FefoPool) Allocate(productId int, qty decimal.Decimal) ([]FefoAllocation, error) {
	list := p.byProduct[productId]
	total := decimal.Zero
	for _, c := range list {
		if c.Available.IsPositive() {
			total = total.Add(c.Available)
		}
	}
	if total.LessThan(qty) {
		return nil, &models.InsufficientStockError{
			LocationId: p.locationId,
			ProductId:  productId,
			Requested:  qty,
			Available:  total,
		}
	}

	remaining := qty
	out := make([]FefoAllocation, 0, 1)
	for _, c := range list {
		if !remaining.IsPositive() {
			break
		}
		if !c.Available.IsPositive() {
			continue
		}
		take := decimal.Min(c.Available, remaining)
		c.Available = c.Available.Sub(take)
		remaining = remaining.Sub(take)
		out = append(out, FefoAllocation{BatchLotId: c.BatchLotId, Qty: take})
	}
	return out, nil
}

// loadFefoCandidates reads sellable batches of the products with positive stock at the location.
func loadFefoCandidates(ctx context.Context, tx *gorm.DB, locationId int, productIds []int) ([]FefoCandidate, error) {
	out := make([]FefoCandidate, 0)
	for _, pid := range productIds {
		productId := pid
		rows, err := models.StockQuery(ctx, tx, models.StockFilter{LocationId: &locationId, ProductId: &productId})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if !r.StockBase.IsPositive() {
				continue
			}
			lot := models.BatchLot{Status: r.BatchStatus, ExpiryDate: r.ExpiryDate}
			if !lot.IsSellable() {
				continue
			}
			out = append(out, FefoCandidate{
				BatchLotId: r.BatchLotId,
				BatchNo:    r.BatchNo,
				ProductId:  r.ProductId,
				ExpiryDate: r.ExpiryDate,
				Available:  r.StockBase,
			})
		}
	}
	return out, nil
}
