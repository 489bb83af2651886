package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/mmdatafocus/pharmacy_backend/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func queueNotification(t *testing.T, db *gorm.DB, kind models.NotificationKind, batchNo string) models.NotificationOutbox {
	t.Helper()
	models.OutboxNotificationSink{DB: db}.Notify(testContext(), models.NotificationEvent{
		Kind:    kind,
		BatchNo: batchNo,
		Stock:   dec("3"),
		Message: "batch " + batchNo,
	})
	var row models.NotificationOutbox
	require.NoError(t, db.Order("id DESC").First(&row).Error)
	return row
}

func reloadOutbox(t *testing.T, db *gorm.DB, id int) models.NotificationOutbox {
	t.Helper()
	var row models.NotificationOutbox
	require.NoError(t, db.First(&row, id).Error)
	return row
}

func TestOutboxDispatcherPublishesPending(t *testing.T) {
	db, _ := openTestDB(t)
	row := queueNotification(t, db, models.NotificationRecall, "VS-13")
	assert.Equal(t, models.OutboxStatusPending, row.PublishStatus)
	assert.Equal(t, "workflow-test", row.CorrelationId)

	var published []models.NotificationEvent
	var attrs map[string]string
	d := workflow.NewOutboxDispatcher(db, config.GetLogger())
	d.Publish = func(_ context.Context, event models.NotificationEvent, attributes map[string]string) (string, error) {
		published = append(published, event)
		attrs = attributes
		return "msg-1", nil
	}

	sent, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, published, 1)
	assert.Equal(t, "VS-13", published[0].BatchNo)
	assert.Equal(t, string(models.NotificationRecall), attrs["kind"])
	assert.Equal(t, "workflow-test", attrs["correlation_id"])

	row = reloadOutbox(t, db, row.ID)
	assert.Equal(t, models.OutboxStatusSent, row.PublishStatus)
	assert.Equal(t, 1, row.PublishAttempts)
	require.NotNil(t, row.PubSubMessageId)
	assert.Equal(t, "msg-1", *row.PubSubMessageId)
	assert.NotNil(t, row.PublishedAt)
	assert.Nil(t, row.LockedBy)

	sent, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, published, 1)
}

func TestOutboxDispatcherRetriesThenDead(t *testing.T) {
	db, _ := openTestDB(t)
	row := queueNotification(t, db, models.NotificationExpired, "EX-1")

	calls := 0
	d := workflow.NewOutboxDispatcher(db, config.GetLogger())
	d.MaxAttempts = 2
	d.InitialBackoff = time.Minute
	d.Publish = func(context.Context, models.NotificationEvent, map[string]string) (string, error) {
		calls++
		return "", errors.New("topic unavailable")
	}

	sent, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	row = reloadOutbox(t, db, row.ID)
	assert.Equal(t, models.OutboxStatusFailed, row.PublishStatus)
	assert.Equal(t, 1, row.PublishAttempts)
	require.NotNil(t, row.LastPublishError)
	assert.Equal(t, "topic unavailable", *row.LastPublishError)
	require.NotNil(t, row.NextAttemptAt)
	assert.True(t, row.NextAttemptAt.After(time.Now().UTC()))

	// not due yet
	_, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, db.Model(&models.NotificationOutbox{}).Where("id = ?", row.ID).
		UpdateColumn("next_attempt_at", time.Now().UTC().Add(-time.Minute)).Error)
	_, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	row = reloadOutbox(t, db, row.ID)
	assert.Equal(t, models.OutboxStatusDead, row.PublishStatus)
	assert.Equal(t, 2, row.PublishAttempts)
	assert.Nil(t, row.NextAttemptAt)
}

func TestOutboxDispatcherReclaimsStaleProcessing(t *testing.T) {
	db, _ := openTestDB(t)
	row := queueNotification(t, db, models.NotificationLowStock, "LS-1")
	stale := time.Now().UTC().Add(-time.Hour)
	owner := "crashed-dispatcher"
	require.NoError(t, db.Model(&models.NotificationOutbox{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
		"publish_status":   models.OutboxStatusProcessing,
		"locked_at":        stale,
		"locked_by":        owner,
		"publish_attempts": 1,
	}).Error)

	d := workflow.NewOutboxDispatcher(db, config.GetLogger())
	d.Publish = func(context.Context, models.NotificationEvent, map[string]string) (string, error) {
		return "msg-2", nil
	}
	sent, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	row = reloadOutbox(t, db, row.ID)
	assert.Equal(t, models.OutboxStatusSent, row.PublishStatus)
	assert.Equal(t, 2, row.PublishAttempts)
}

func TestRecallQueuesOutboxRowOnlyAfterCommit(t *testing.T) {
	db, _ := openTestDB(t)
	models.SetNotificationSink(models.OutboxNotificationSink{DB: db})
	ctx := testContext()
	loc := createLocation(t, db, "Main")
	p := createProduct(t, db, "Ranitidine", models.ScheduleOTC)
	lot := createLot(t, db, p.ID, "RN-7", testToday.AddDate(1, 0, 0))
	stockIn(t, db, loc.ID, lot.ID, "12")

	countOutbox := func() int64 {
		var n int64
		require.NoError(t, db.Model(&models.NotificationOutbox{}).Count(&n).Error)
		return n
	}

	_, err := workflow.RecallBatchLot(ctx, db, lot.ID, "supplier notice")
	require.NoError(t, err)
	require.EqualValues(t, 1, countOutbox())

	var row models.NotificationOutbox
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, models.NotificationRecall, row.Kind)
	assert.Equal(t, models.OutboxStatusPending, row.PublishStatus)
	assert.Equal(t, "workflow-test", row.CorrelationId)

	_, err = workflow.RecallBatchLot(ctx, db, lot.ID, "again")
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.EqualValues(t, 1, countOutbox(), "a failed posting queues nothing")
}
