package models_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPostingSettingsFromProvider(t *testing.T) {
	ctx := context.Background()
	models.SetSettingsProvider(models.StaticSettings{
		models.SettingLowStockDefault:    "25",
		models.SettingAllowNegativeStock: "true",
		models.SettingDefaultTaxRate:     "12",
		models.SettingTaxMethod:          " Inclusive ",
		models.SettingExpiryWarningDays:  "not-a-number",
	})
	t.Cleanup(func() { models.SetSettingsProvider(models.DBSettings{}) })

	s := models.LoadPostingSettings(ctx)
	assert.True(t, s.AllowNegativeStock)
	assert.True(t, s.LowStockDefault.Equal(dec("25")))
	assert.True(t, s.DefaultTaxRate.Equal(dec("12")))
	assert.Equal(t, models.TaxMethodInclusive, s.DefaultTaxMethod)

	assert.Equal(t, 90, models.ExpiryWarningDays(ctx))
	assert.Equal(t, 30, models.ExpiryCriticalDays(ctx))
}

func TestDBDocNumberSource(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	src := models.DBDocNumberSource{DB: db}

	first, err := src.Next(ctx, models.DocTypeGoodsReceipt)
	require.NoError(t, err)
	second, err := src.Next(ctx, models.DocTypeGoodsReceipt)
	require.NoError(t, err)
	invoice, err := src.Next(ctx, models.DocTypeSalesInvoice)
	require.NoError(t, err)

	assert.Equal(t, "GRN000001", first)
	assert.Equal(t, "GRN000002", second)
	assert.Equal(t, "INV000001", invoice)
}

type failingAuditSink struct{}

func (failingAuditSink) Record(context.Context, *gorm.DB, models.AuditRecord) error {
	return errors.New("audit store down")
}

func TestAuditFailureDoesNotFailMovement(t *testing.T) {
	db, _ := openTestDB(t)
	loc := createLocation(t, db, "Main")
	p := createTabletProduct(t, db, "Pantoprazole", models.ScheduleH)
	lot := createLot(t, db, p.ID, "PT-1", testToday.AddDate(1, 0, 0))

	receive(t, db, loc.ID, lot.ID, "10")
	var audits int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("entity_type = ?", "inventory_movements").Count(&audits).Error)
	assert.EqualValues(t, 1, audits)

	models.SetAuditSink(failingAuditSink{})
	t.Cleanup(func() { models.SetAuditSink(models.GormAuditSink{}) })
	receive(t, db, loc.ID, lot.ID, "5")

	stock, err := models.StockOnHand(testContext(), db, loc.ID, lot.ID)
	require.NoError(t, err)
	assert.True(t, stock.Equal(dec("15")))
}

func TestHTTPStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&models.NotFoundError{Entity: "product", Id: 1}, http.StatusNotFound},
		{&models.ValidationError{Field: "qty", Detail: "bad"}, http.StatusBadRequest},
		{&models.InsufficientStockError{LocationId: 1, BatchLotId: 2}, http.StatusBadRequest},
		{&models.PrescriptionRequiredError{InvoiceId: 1}, http.StatusBadRequest},
		{&models.QuantityExceedsOrderError{PurchaseOrderLineId: 1}, http.StatusBadRequest},
		{&models.AlreadyPostedError{Document: "grn", Id: 1}, http.StatusConflict},
		{&models.InvalidStateError{Document: "grn", Id: 1}, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", models.ErrLedgerImmutable), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, models.HTTPStatusFor(tt.err), tt.err.Error())
	}
}
