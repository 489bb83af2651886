package workflow_test

import (
	"testing"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fefoCandidates() []workflow.FefoCandidate {
	return []workflow.FefoCandidate{
		{BatchLotId: 30, ProductId: 1, ExpiryDate: testToday.AddDate(0, 6, 0), Available: dec("10")},
		{BatchLotId: 12, ProductId: 1, ExpiryDate: testToday.AddDate(0, 2, 0), Available: dec("4")},
		{BatchLotId: 11, ProductId: 1, ExpiryDate: testToday.AddDate(0, 2, 0), Available: dec("3")},
		{BatchLotId: 40, ProductId: 2, ExpiryDate: testToday.AddDate(0, 1, 0), Available: dec("100")},
	}
}

func TestFefoPoolAllocatesEarliestExpiryFirst(t *testing.T) {
	pool := workflow.NewFefoPool(1, fefoCandidates())

	got, err := pool.Allocate(1, dec("9"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 11, got[0].BatchLotId, "same expiry falls back to batch id")
	assertDecimal(t, "3", got[0].Qty)
	assert.Equal(t, 12, got[1].BatchLotId)
	assertDecimal(t, "4", got[1].Qty)
	assert.Equal(t, 30, got[2].BatchLotId)
	assertDecimal(t, "2", got[2].Qty)

	// the pool is shared by later lines of the same document
	got, err = pool.Allocate(1, dec("8"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assertDecimal(t, "8", got[0].Qty)
}

func TestFefoPoolShortTakesNothing(t *testing.T) {
	pool := workflow.NewFefoPool(7, fefoCandidates())

	_, err := pool.Allocate(1, dec("18"))
	var short *models.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 7, short.LocationId)
	assert.Equal(t, 1, short.ProductId)
	assertDecimal(t, "17", short.Available)

	got, err := pool.Allocate(1, dec("17"))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = pool.Allocate(3, dec("1"))
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
}

func TestFefoPoolReserveExplicitBatch(t *testing.T) {
	pool := workflow.NewFefoPool(1, fefoCandidates())
	pool.Reserve(1, 11, dec("3"))
	pool.Reserve(1, 99, dec("5"))

	got, err := pool.Allocate(1, dec("5"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 12, got[0].BatchLotId)
	assert.Equal(t, 30, got[1].BatchLotId)
	assertDecimal(t, "1", got[1].Qty)
}

func TestNotificationBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{4, 40 * time.Second},
		{12, 10 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, workflow.NotificationBackoff(5*time.Second, tt.attempt), "attempt %d", tt.attempt)
	}
}
