package workflow_test

import (
	"testing"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPostGoodsReceiptAgainstOrder(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	loc := createLocation(t, db, "Main")
	p := createProduct(t, db, "Amoxicillin 500", models.ScheduleH)

	po, err := models.CreatePurchaseOrder(ctx, db, &models.NewPurchaseOrder{
		VendorName: "Cipla Agency",
		LocationId: loc.ID,
		Lines:      []models.NewPurchaseOrderLine{{ProductId: p.ID, QtyPacksOrdered: dec("10"), UnitCost: dec("100")}},
	})
	require.NoError(t, err)
	poLineId := po.Lines[0].ID

	grn, err := models.CreateGoodsReceipt(ctx, db, &models.NewGoodsReceipt{
		PurchaseOrderId: &po.ID,
		LocationId:      loc.ID,
		Lines: []models.NewGoodsReceiptLine{{
			PurchaseOrderLineId: &poLineId,
			ProductId:           p.ID,
			BatchNo:             "AMX-1",
			ExpiryDate:          testToday.AddDate(1, 0, 0),
			Quantity:            dec("2"),
			QuantityUom:         "Box",
			UnitCost:            dec("500"),
			Mrp:                 dec("120"),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusDraft, grn.Status)

	posted, err := workflow.PostGoodsReceipt(ctx, db, grn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusPosted, posted.Status)
	assert.Equal(t, "counter", posted.PostedBy)
	require.Len(t, posted.Lines, 1)
	line := posted.Lines[0]
	assertDecimal(t, "100", line.QtyBase)
	assertDecimal(t, "50", line.ConversionFactor)
	assertDecimal(t, "10", line.QtyPacks)
	require.NotNil(t, line.BatchLotId)

	assertDecimal(t, "100", stockOf(t, db, loc.ID, *line.BatchLotId))

	reloadedPo, err := models.GetPurchaseOrder(ctx, db, po.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseOrderStatusCompleted, reloadedPo.Status)
	assertDecimal(t, "10", reloadedPo.Lines[0].QtyPacksReceived)
	assertDecimal(t, "100", reloadedPo.Lines[0].QtyBaseReceived)
	assertDecimal(t, "100", reloadedPo.Lines[0].QtyBaseOrdered)

	var product models.Product
	require.NoError(t, db.First(&product, p.ID).Error)
	assertDecimal(t, "100", product.LastPurchaseCost, "cost per strip")
	assertDecimal(t, "120", product.Mrp)

	lot, err := models.GetBatchLot(ctx, db, *line.BatchLotId)
	require.NoError(t, err)
	assertDecimal(t, "10", lot.PurchasePricePerBase)

	_, err = workflow.PostGoodsReceipt(ctx, db, grn.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyPosted)
}

func TestPostGoodsReceiptOverReceiptAbortsWholeReceipt(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	loc := createLocation(t, db, "Main")
	p := createProduct(t, db, "Cetirizine", models.ScheduleOTC)
	other := createProduct(t, db, "Paracetamol", models.ScheduleOTC)

	po, err := models.CreatePurchaseOrder(ctx, db, &models.NewPurchaseOrder{
		LocationId: loc.ID,
		Lines:      []models.NewPurchaseOrderLine{{ProductId: p.ID, QtyPacksOrdered: dec("3")}},
	})
	require.NoError(t, err)
	poLineId := po.Lines[0].ID

	grn, err := models.CreateGoodsReceipt(ctx, db, &models.NewGoodsReceipt{
		PurchaseOrderId: &po.ID,
		LocationId:      loc.ID,
		Lines: []models.NewGoodsReceiptLine{
			{ProductId: other.ID, BatchNo: "PCM-9", ExpiryDate: testToday.AddDate(2, 0, 0), Quantity: dec("5"), QuantityUom: "strip"},
			{PurchaseOrderLineId: &poLineId, ProductId: p.ID, BatchNo: "CTZ-1", ExpiryDate: testToday.AddDate(1, 0, 0), Quantity: dec("4"), QuantityUom: "strip"},
		},
	})
	require.NoError(t, err)

	_, err = workflow.PostGoodsReceipt(ctx, db, grn.ID)
	var exceeds *models.QuantityExceedsOrderError
	require.ErrorAs(t, err, &exceeds)
	assert.Equal(t, poLineId, exceeds.PurchaseOrderLineId)
	assertDecimal(t, "30", exceeds.Ordered)
	assertDecimal(t, "40", exceeds.Attempted)

	assert.Zero(t, movementCount(t, db))
	var lots int64
	require.NoError(t, db.Model(&models.BatchLot{}).Count(&lots).Error)
	assert.Zero(t, lots)

	reloaded, err := models.GetGoodsReceipt(ctx, db, grn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusDraft, reloaded.Status)
}

func TestPostGoodsReceiptPartialThenComplete(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	loc := createLocation(t, db, "Main")
	p := createProduct(t, db, "Losartan", models.ScheduleH)

	po, err := models.CreatePurchaseOrder(ctx, db, &models.NewPurchaseOrder{
		LocationId: loc.ID,
		Lines:      []models.NewPurchaseOrderLine{{ProductId: p.ID, QtyPacksOrdered: dec("6")}},
	})
	require.NoError(t, err)
	poLineId := po.Lines[0].ID

	receipt := func(strips string) *models.GoodsReceipt {
		grn, err := models.CreateGoodsReceipt(ctx, db, &models.NewGoodsReceipt{
			PurchaseOrderId: &po.ID,
			LocationId:      loc.ID,
			Lines: []models.NewGoodsReceiptLine{{
				PurchaseOrderLineId: &poLineId, ProductId: p.ID, BatchNo: "LS-1",
				ExpiryDate: testToday.AddDate(1, 0, 0), Quantity: dec(strips), QuantityUom: "strip",
			}},
		})
		require.NoError(t, err)
		return grn
	}

	_, err = workflow.PostGoodsReceipt(ctx, db, receipt("4").ID)
	require.NoError(t, err)
	reloaded, err := models.GetPurchaseOrder(ctx, db, po.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseOrderStatusPartiallyReceived, reloaded.Status)

	_, err = workflow.PostGoodsReceipt(ctx, db, receipt("2").ID)
	require.NoError(t, err)
	reloaded, err = models.GetPurchaseOrder(ctx, db, po.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseOrderStatusCompleted, reloaded.Status)

	lot := findLot(t, db, p.ID, "LS-1")
	assertDecimal(t, "60", stockOf(t, db, loc.ID, lot.ID))
}

func TestPostGoodsReceiptUnevenPackRatioCompletesExactly(t *testing.T) {
	tests := []struct {
		name         string
		unitsPerPack string
		receipts     int
	}{
		{"three per strip", "3", 3},
		{"fifteen per strip", "15", 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _ := openTestDB(t)
			ctx := testContext()
			loc := createLocation(t, db, "Main")
			p := &models.Product{
				Name:         "Ondansetron " + tt.unitsPerPack,
				BaseUnit:     "tablet",
				PackUnit:     "strip",
				UnitsPerPack: dec(tt.unitsPerPack),
			}
			require.NoError(t, models.CreateProduct(ctx, db, p))

			po, err := models.CreatePurchaseOrder(ctx, db, &models.NewPurchaseOrder{
				LocationId: loc.ID,
				Lines:      []models.NewPurchaseOrderLine{{ProductId: p.ID, QtyPacksOrdered: dec("1")}},
			})
			require.NoError(t, err)
			poLineId := po.Lines[0].ID

			receiveTablet := func() error {
				grn, err := models.CreateGoodsReceipt(ctx, db, &models.NewGoodsReceipt{
					PurchaseOrderId: &po.ID,
					LocationId:      loc.ID,
					Lines: []models.NewGoodsReceiptLine{{
						PurchaseOrderLineId: &poLineId, ProductId: p.ID, BatchNo: "OND-1",
						ExpiryDate: testToday.AddDate(1, 0, 0), Quantity: dec("1"), QuantityUom: "tablet",
					}},
				})
				require.NoError(t, err)
				_, err = workflow.PostGoodsReceipt(ctx, db, grn.ID)
				return err
			}

			for i := 1; i < tt.receipts; i++ {
				require.NoError(t, receiveTablet(), "receipt %d", i)
			}
			reloaded, err := models.GetPurchaseOrder(ctx, db, po.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PurchaseOrderStatusPartiallyReceived, reloaded.Status)

			require.NoError(t, receiveTablet(), "last receipt is within the order")
			reloaded, err = models.GetPurchaseOrder(ctx, db, po.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PurchaseOrderStatusCompleted, reloaded.Status)
			assertDecimal(t, "1", reloaded.Lines[0].QtyPacksReceived)
			assertDecimal(t, tt.unitsPerPack, reloaded.Lines[0].QtyBaseReceived)

			err = receiveTablet()
			var exceeds *models.QuantityExceedsOrderError
			require.ErrorAs(t, err, &exceeds)
			assertDecimal(t, tt.unitsPerPack, exceeds.Ordered)
			assertDecimal(t, tt.unitsPerPack, exceeds.AlreadyReceived)
			assertDecimal(t, "1", exceeds.Attempted)

			lot := findLot(t, db, p.ID, "OND-1")
			assertDecimal(t, tt.unitsPerPack, stockOf(t, db, loc.ID, lot.ID))
		})
	}
}

func TestPostGoodsReceiptNDPSUpdatesRegister(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	loc := createLocation(t, db, "Main")
	p := createProduct(t, db, "Tramadol", models.ScheduleNDPS)

	grn, err := models.CreateGoodsReceipt(ctx, db, &models.NewGoodsReceipt{
		LocationId: loc.ID,
		Lines: []models.NewGoodsReceiptLine{{
			ProductId: p.ID, BatchNo: "TR-1", ExpiryDate: testToday.AddDate(1, 0, 0),
			Quantity: dec("3"), QuantityUom: "strip",
		}},
	})
	require.NoError(t, err)
	_, err = workflow.PostGoodsReceipt(ctx, db, grn.ID)
	require.NoError(t, err)

	entries, err := models.ListNDPSEntries(ctx, db, p.ID, testToday, testToday)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assertDecimal(t, "30", entries[0].InQty)
	assertDecimal(t, "30", entries[0].ClosingQty)
}

func findLot(t *testing.T, db *gorm.DB, productId int, batchNo string) *models.BatchLot {
	t.Helper()
	var lot models.BatchLot
	require.NoError(t, db.Where("product_id = ? AND batch_no = ?", productId, batchNo).First(&lot).Error)
	return &lot
}
