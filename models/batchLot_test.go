package models_test

import (
	"testing"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOrCreateBatchLot(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	p := createTabletProduct(t, db, "Azithromycin", models.ScheduleH)
	expiry := testToday.AddDate(1, 0, 0)

	first := createLot(t, db, p.ID, " AZ-01 ", expiry)
	assert.Equal(t, "AZ-01", first.BatchNo)
	assert.Equal(t, models.BatchLotStatusActive, first.Status)

	again, created, err := models.ResolveOrCreateBatchLot(ctx, db, models.BatchLotInput{ProductId: p.ID, BatchNo: "AZ-01", ExpiryDate: expiry})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = models.ResolveOrCreateBatchLot(ctx, db, models.BatchLotInput{ProductId: p.ID, BatchNo: "AZ-01", ExpiryDate: expiry.AddDate(0, 1, 0)})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, _, err = models.ResolveOrCreateBatchLot(ctx, db, models.BatchLotInput{ProductId: p.ID, BatchNo: "  ", ExpiryDate: expiry})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestBatchLotPastExpiryIsStoredExpired(t *testing.T) {
	db, _ := openTestDB(t)
	p := createTabletProduct(t, db, "Old Stock", models.ScheduleOTC)

	lot := createLot(t, db, p.ID, "OLD", testToday.AddDate(0, 0, -1))
	assert.Equal(t, models.BatchLotStatusExpired, lot.Status)
	assert.False(t, lot.IsSellable())

	today := createLot(t, db, p.ID, "TODAY", testToday)
	assert.Equal(t, models.BatchLotStatusActive, today.Status)
	assert.True(t, today.IsSellable())
}

func TestExpireBatchLots(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	p := createTabletProduct(t, db, "Vitamin C", models.ScheduleOTC)
	lot := createLot(t, db, p.ID, "VC-1", testToday.AddDate(0, 0, 5))
	fresh := createLot(t, db, p.ID, "VC-2", testToday.AddDate(0, 6, 0))

	expired, err := models.ExpireBatchLots(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, expired)

	restore := setToday(testToday.AddDate(0, 0, 6))
	defer restore()

	expired, err = models.ExpireBatchLots(ctx, db)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, lot.ID, expired[0].ID)

	reloaded, err := models.GetBatchLot(ctx, db, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchLotStatusExpired, reloaded.Status)
	assert.Equal(t, p.ID, reloaded.Product.ID)

	still, err := models.GetBatchLot(ctx, db, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchLotStatusActive, still.Status)
}

func TestGetBatchLotNotFound(t *testing.T) {
	db, _ := openTestDB(t)
	_, err := models.GetBatchLot(testContext(), db, 404)
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 404, nf.Id)
}
