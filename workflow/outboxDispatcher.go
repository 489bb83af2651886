package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishFunc delivers one notification payload and returns the broker message id.
type PublishFunc func(ctx context.Context, event models.NotificationEvent, attributes map[string]string) (string, error)

// PublishToPubSub sends the event to NOTIFICATION_TOPIC.
func PublishToPubSub(ctx context.Context, event models.NotificationEvent, attributes map[string]string) (string, error) {
	return config.PublishJSON(ctx, config.NotificationTopic(), event, attributes)
}

// OutboxDispatcher moves notification_outboxes rows to Pub/Sub. Rows are claimed in a short
// transaction, published outside it and retried with exponential backoff until MaxAttempts,
// after which they are DEAD.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      PublishFunc

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        PublishToPubSub,
		BatchSize:      50,
		PollInterval:   2 * time.Second,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    10,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := d.DispatchOnce(ctx); err != nil && d.Logger != nil {
			config.LogError(d.Logger, "outboxDispatcher.go", "Run", "DispatchOnce", d.DispatcherID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. Returns the number of rows sent.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	db := d.DB
	if db == nil {
		return 0, nil
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.NotificationOutbox
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// PENDING / FAILED rows that are due, or PROCESSING rows whose claimer went away
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxStatusPending, models.OutboxStatusFailed}, now, models.OutboxStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxStatusDead
				if err := tx.Model(&models.NotificationOutbox{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.NotificationOutbox{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxStatusProcessing,
				"locked_at":          claimed[i].LockedAt,
				"locked_by":          claimed[i].LockedBy,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range claimed {
		if rec.PublishStatus == models.OutboxStatusDead {
			continue
		}
		var event models.NotificationEvent
		if err := json.Unmarshal(rec.Payload, &event); err != nil {
			d.markPublishFailed(ctx, rec, err, d.MaxAttempts)
			continue
		}
		attributes := map[string]string{
			"kind":           string(rec.Kind),
			"correlation_id": rec.CorrelationId,
		}
		pubID, pubErr := d.Publish(ctx, event, attributes)
		if pubErr != nil {
			d.markPublishFailed(ctx, rec, pubErr, rec.PublishAttempts)
			continue
		}
		d.markPublishSent(ctx, rec.ID, pubID)
		sent++
	}
	return sent, nil
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, pubsubMsgID string) {
	now := time.Now().UTC()
	id := pubsubMsgID
	_ = d.DB.WithContext(ctx).Model(&models.NotificationOutbox{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &id,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.NotificationOutbox, err error, attempt int) {
	db := d.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := err.Error()

	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = db.Model(&models.NotificationOutbox{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxStatusDead,
				"last_publish_error": &msg,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":          "OutboxDispatcher",
				"record_id":      rec.ID,
				"kind":           rec.Kind,
				"attempt":        attempt,
				"correlation_id": rec.CorrelationId,
			}).Error("notification moved to DEAD after max attempts: " + msg)
		}
		return
	}

	next := now.Add(NotificationBackoff(d.InitialBackoff, attempt))
	_ = db.Model(&models.NotificationOutbox{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"record_id":       rec.ID,
			"kind":            rec.Kind,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Warn("notification publish failed: " + msg)
	}
}

// NotificationBackoff doubles initial per previous attempt, capped at ten minutes.
func NotificationBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return backoff
}
