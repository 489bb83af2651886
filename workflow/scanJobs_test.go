package workflow_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/mmdatafocus/pharmacy_backend/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLowStockScan(t *testing.T) {
	db, sink := openTestDB(t)
	ctx := testContext()
	store := createLocation(t, db, "Main")
	branch := createLocation(t, db, "Branch")
	low := createProduct(t, db, "Zinc", models.ScheduleOTC)
	plenty := createProduct(t, db, "Multivitamin", models.ScheduleOTC)
	lowLot := createLot(t, db, low.ID, "ZN-1", testToday.AddDate(1, 0, 0))
	plentyLot := createLot(t, db, plenty.ID, "MV-1", testToday.AddDate(1, 0, 0))
	stockIn(t, db, store.ID, lowLot.ID, "6")
	stockIn(t, db, store.ID, plentyLot.ID, "90")
	stockIn(t, db, branch.ID, plentyLot.ID, "4")

	result, err := workflow.RunLowStockScan(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "low-stock-scan", result.Job)
	assert.Equal(t, 2, result.Found)
	assert.Equal(t, 2, result.Notified)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, store.ID, events[0].LocationId)
	assert.Equal(t, low.ID, events[0].ProductId)
	assert.Equal(t, branch.ID, events[1].LocationId)
	assert.Equal(t, plenty.ID, events[1].ProductId)
	for _, e := range events {
		assert.Equal(t, models.NotificationLowStock, e.Kind)
		require.NotNil(t, e.Threshold)
		assertDecimal(t, "10", *e.Threshold)
	}
}

func TestRunNearExpiryScan(t *testing.T) {
	db, sink := openTestDB(t)
	ctx := testContext()
	loc := createLocation(t, db, "Main")
	p := createProduct(t, db, "Insulin", models.ScheduleH)
	critical := createLot(t, db, p.ID, "IN-20", testToday.AddDate(0, 0, 20))
	warning := createLot(t, db, p.ID, "IN-60", testToday.AddDate(0, 0, 60))
	later := createLot(t, db, p.ID, "IN-200", testToday.AddDate(0, 0, 200))
	createLot(t, db, p.ID, "IN-10", testToday.AddDate(0, 0, 10))
	stockIn(t, db, loc.ID, critical.ID, "5")
	stockIn(t, db, loc.ID, warning.ID, "5")
	stockIn(t, db, loc.ID, later.ID, "5")

	result, err := workflow.RunNearExpiryScan(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Found)

	byBatch := map[string]models.NotificationEvent{}
	for _, e := range sink.Events() {
		assert.Equal(t, models.NotificationNearExpiry, e.Kind)
		byBatch[e.BatchNo] = e
	}
	require.Contains(t, byBatch, "IN-20")
	require.Contains(t, byBatch, "IN-60")
	assert.True(t, strings.HasSuffix(byBatch["IN-20"].Message, "[critical]"))
	assert.True(t, strings.HasSuffix(byBatch["IN-60"].Message, "[warning]"))
}

func TestRunExpireBatchLots(t *testing.T) {
	db, sink := openTestDB(t)
	ctx := testContext()
	loc := createLocation(t, db, "Main")
	p := createProduct(t, db, "Eye Drops", models.ScheduleOTC)
	stocked := createLot(t, db, p.ID, "ED-1", testToday.AddDate(0, 0, 3))
	createLot(t, db, p.ID, "ED-2", testToday.AddDate(0, 0, 4))
	stockIn(t, db, loc.ID, stocked.ID, "7")

	utils.Today = func() time.Time { return testToday.AddDate(0, 0, 5) }

	result, err := workflow.RunExpireBatchLots(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Found)
	assert.Equal(t, 1, result.Notified)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.NotificationExpired, events[0].Kind)
	assert.Equal(t, "ED-1", events[0].BatchNo)
	assert.Equal(t, "Eye Drops", events[0].ProductName)
	assertDecimal(t, "7", events[0].Stock)

	reloaded, err := models.GetBatchLot(ctx, db, stocked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchLotStatusExpired, reloaded.Status)
}

func TestScheduledJobs(t *testing.T) {
	jobs := workflow.ScheduledJobs()
	require.Len(t, jobs, 3)
	for _, name := range []string{"expire-batch-lots", "low-stock-scan", "near-expiry-scan"} {
		job, ok := jobs[name]
		require.True(t, ok, name)
		assert.Equal(t, name, job.Name)
		assert.NotEmpty(t, job.Schedule)
		assert.NotNil(t, job.Run)
	}

	t.Setenv("CRON_LOW_STOCK_SCAN", "*/15 * * * *")
	assert.Equal(t, "*/15 * * * *", workflow.ScheduledJobs()["low-stock-scan"].Schedule)
}

func TestRunScheduledJob(t *testing.T) {
	db, sink := openTestDB(t)
	loc := createLocation(t, db, "Main")
	p := createProduct(t, db, "Cough Syrup", models.ScheduleOTC)
	lot := createLot(t, db, p.ID, "CS-1", testToday.AddDate(1, 0, 0))
	stockIn(t, db, loc.ID, lot.ID, "2")

	result, err := workflow.RunScheduledJob(context.Background(), db, workflow.ScheduledJobs()["low-stock-scan"])
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
	require.Len(t, sink.Events(), 1)

	c, err := workflow.StartScheduler(context.Background(), db)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 3)
	<-c.Stop().Done()
}
