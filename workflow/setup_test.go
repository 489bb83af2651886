package workflow_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/pharmacy_backend/appctx"
	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testToday = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

type counterDocNumbers struct {
	mu sync.Mutex
	n  map[models.DocType]int
}

func (c *counterDocNumbers) Next(_ context.Context, docType models.DocType) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = make(map[models.DocType]int)
	}
	c.n[docType]++
	return fmt.Sprintf("%s%06d", docType, c.n[docType]), nil
}

func openTestDB(t *testing.T) (*gorm.DB, *models.MemoryNotificationSink) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.MigrateTable(db))

	sink := &models.MemoryNotificationSink{}
	previousToday := utils.Today
	utils.Today = func() time.Time { return testToday }
	models.SetSettingsProvider(models.StaticSettings{
		models.SettingLowStockDefault:    "10",
		models.SettingExpiryWarningDays:  "90",
		models.SettingExpiryCriticalDays: "30",
	})
	models.SetDocNumberSource(&counterDocNumbers{})
	models.SetNotificationSink(sink)

	t.Cleanup(func() {
		utils.Today = previousToday
		models.SetSettingsProvider(models.DBSettings{})
		models.SetDocNumberSource(nil)
		models.SetNotificationSink(nil)
		_ = sqlDB.Close()
	})
	return db, sink
}

func testContext() context.Context {
	ctx := utils.SetActorInContext(context.Background(), appctx.Actor{ID: 3, Username: "counter"})
	return utils.SetCorrelationIdInContext(ctx, "workflow-test")
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(v int) *int {
	return &v
}

func createLocation(t *testing.T, db *gorm.DB, name string) *models.Location {
	t.Helper()
	loc := &models.Location{Name: name}
	require.NoError(t, models.CreateLocation(testContext(), db, loc))
	return loc
}

// createProduct makes a tablet product sold by the strip of 10, 5 strips to a box.
func createProduct(t *testing.T, db *gorm.DB, name string, schedule models.ProductSchedule) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:            name,
		Schedule:        schedule,
		BaseUnit:        "tablet",
		PackUnit:        "strip",
		UnitsPerPack:    dec("10"),
		TabletsPerStrip: decPtr("10"),
		StripsPerBox:    decPtr("5"),
		Mrp:             dec("45"),
	}
	require.NoError(t, models.CreateProduct(testContext(), db, p))
	return p
}

func createLot(t *testing.T, db *gorm.DB, productId int, batchNo string, expiry time.Time) *models.BatchLot {
	t.Helper()
	lot, _, err := models.ResolveOrCreateBatchLot(testContext(), db, models.BatchLotInput{
		ProductId:  productId,
		BatchNo:    batchNo,
		ExpiryDate: expiry,
	})
	require.NoError(t, err)
	return lot
}

// stockIn books opening stock straight into the ledger.
func stockIn(t *testing.T, db *gorm.DB, locationId int, lotId int, qty string) {
	t.Helper()
	_, err := models.WriteMovement(testContext(), db, models.MovementInput{
		LocationId: locationId,
		BatchLotId: lotId,
		QtyDelta:   dec(qty),
		Reason:     models.MovementReasonPurchase,
		RefDocType: models.RefDocGoodsReceipt,
		RefDocId:   999,
	})
	require.NoError(t, err)
}

func stockOf(t *testing.T, db *gorm.DB, locationId int, lotId int) decimal.Decimal {
	t.Helper()
	qty, err := models.StockOnHand(testContext(), db, locationId, lotId)
	require.NoError(t, err)
	return qty
}

func movementCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.InventoryMovement{}).Count(&n).Error)
	return n
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}
