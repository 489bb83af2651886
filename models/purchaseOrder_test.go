package models_test

import (
	"testing"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poLines(received ...string) []models.PurchaseOrderLine {
	lines := make([]models.PurchaseOrderLine, 0, len(received))
	for _, r := range received {
		lines = append(lines, models.PurchaseOrderLine{QtyPacksOrdered: dec("10"), QtyPacksReceived: dec(r)})
	}
	return lines
}

func TestNextPurchaseOrderStatus(t *testing.T) {
	tests := []struct {
		name    string
		current models.PurchaseOrderStatus
		lines   []models.PurchaseOrderLine
		want    models.PurchaseOrderStatus
	}{
		{"nothing received", models.PurchaseOrderStatusOpen, poLines("0", "0"), models.PurchaseOrderStatusOpen},
		{"some received", models.PurchaseOrderStatusOpen, poLines("4", "0"), models.PurchaseOrderStatusPartiallyReceived},
		{"all received", models.PurchaseOrderStatusPartiallyReceived, poLines("10", "10"), models.PurchaseOrderStatusCompleted},
		{"never moves back", models.PurchaseOrderStatusCompleted, poLines("0", "0"), models.PurchaseOrderStatusCompleted},
		{"partial stays partial", models.PurchaseOrderStatusPartiallyReceived, poLines("0", "0"), models.PurchaseOrderStatusPartiallyReceived},
		{"base units decide once received", models.PurchaseOrderStatusPartiallyReceived, []models.PurchaseOrderLine{
			{QtyPacksOrdered: dec("1"), QtyPacksReceived: dec("0.9999"), QtyBaseOrdered: dec("3"), QtyBaseReceived: dec("3")},
		}, models.PurchaseOrderStatusCompleted},
		{"tiny base receipt counts", models.PurchaseOrderStatusOpen, []models.PurchaseOrderLine{
			{QtyPacksOrdered: dec("1"), QtyBaseOrdered: dec("30000"), QtyBaseReceived: dec("1")},
		}, models.PurchaseOrderStatusPartiallyReceived},
		{"cancelled is final", models.PurchaseOrderStatusCancelled, poLines("10", "10"), models.PurchaseOrderStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.NextPurchaseOrderStatus(tt.current, tt.lines))
		})
	}
}

func TestPaymentStatusFor(t *testing.T) {
	assert.Equal(t, models.PaymentStatusCredit, models.PaymentStatusFor(decimal.Zero, dec("100")))
	assert.Equal(t, models.PaymentStatusPartial, models.PaymentStatusFor(dec("40"), dec("100")))
	assert.Equal(t, models.PaymentStatusPaid, models.PaymentStatusFor(dec("100"), dec("100")))
	assert.Equal(t, models.PaymentStatusPaid, models.PaymentStatusFor(dec("120"), dec("100")))
}

func TestCreateAndCancelPurchaseOrder(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	loc := createLocation(t, db, "Main")
	p := createTabletProduct(t, db, "Metformin", models.ScheduleH)

	_, err := models.CreatePurchaseOrder(ctx, db, &models.NewPurchaseOrder{LocationId: loc.ID})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = models.CreatePurchaseOrder(ctx, db, &models.NewPurchaseOrder{
		LocationId: loc.ID,
		Lines:      []models.NewPurchaseOrderLine{{ProductId: 999, QtyPacksOrdered: dec("1")}},
	})
	assert.ErrorIs(t, err, models.ErrNotFound)

	po, err := models.CreatePurchaseOrder(ctx, db, &models.NewPurchaseOrder{
		VendorName: "Sun Distributors",
		LocationId: loc.ID,
		Lines:      []models.NewPurchaseOrderLine{{ProductId: p.ID, QtyPacksOrdered: dec("10"), UnitCost: dec("32.5")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "PO000001", po.PoNo)
	assert.Equal(t, models.PurchaseOrderStatusOpen, po.Status)
	require.Len(t, po.Lines, 1)

	cancelled, err := models.CancelPurchaseOrder(ctx, db, po.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseOrderStatusCancelled, cancelled.Status)

	_, err = models.CancelPurchaseOrder(ctx, db, po.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}
