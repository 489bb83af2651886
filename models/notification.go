package models

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type NotificationEvent struct {
	Kind        NotificationKind `json:"kind"`
	LocationId  int              `json:"location_id,omitempty"`
	ProductId   int              `json:"product_id,omitempty"`
	ProductName string           `json:"product_name,omitempty"`
	BatchLotId  int              `json:"batch_lot_id,omitempty"`
	BatchNo     string           `json:"batch_no,omitempty"`
	Stock       decimal.Decimal  `json:"stock"`
	Threshold   *decimal.Decimal `json:"threshold,omitempty"`
	ExpiryDate  *time.Time       `json:"expiry_date,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// NotificationSink dispatches low-stock / expiry / recall events. Notify must not block the caller
// on delivery and never fails the caller.
type NotificationSink interface {
	Notify(ctx context.Context, event NotificationEvent)
}

const (
	OutboxStatusPending    = "PENDING"
	OutboxStatusProcessing = "PROCESSING"
	OutboxStatusSent       = "SENT"
	OutboxStatusFailed     = "FAILED"
	OutboxStatusDead       = "DEAD"
)

// NotificationOutbox stores events until the dispatcher publishes them to Pub/Sub.
type NotificationOutbox struct {
	ID               int              `gorm:"primary_key;index:idx_notification_dispatch,priority:3" json:"id"`
	Kind             NotificationKind `gorm:"size:20;index" json:"kind"`
	Payload          []byte           `json:"payload"`
	PublishStatus    string           `gorm:"size:20;not null;default:'PENDING';index:idx_notification_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int              `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time       `gorm:"index:idx_notification_dispatch,priority:2" json:"next_attempt_at"`
	PublishedAt      *time.Time       `json:"published_at"`
	PubSubMessageId  *string          `gorm:"size:255" json:"pubsub_message_id"`
	LastPublishError *string          `gorm:"type:text" json:"last_publish_error"`
	LockedAt         *time.Time       `gorm:"index" json:"locked_at"`
	LockedBy         *string          `gorm:"size:100" json:"locked_by"`
	CorrelationId    string           `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// OutboxNotificationSink writes the event to notification_outboxes; delivery is asynchronous.
type OutboxNotificationSink struct {
	DB *gorm.DB
}

func (s OutboxNotificationSink) Notify(ctx context.Context, event NotificationEvent) {
	db := s.DB
	if db == nil {
		db = config.GetDB()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		config.LogError(config.GetLogger(), "Notification", "Notify", "marshal event", event, err)
		return
	}
	row := NotificationOutbox{
		Kind:          event.Kind,
		Payload:       payload,
		PublishStatus: OutboxStatusPending,
		CorrelationId: utils.CorrelationIdOrNew(ctx),
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		config.LogError(config.GetLogger(), "Notification", "Notify", "write outbox", event, err)
	}
}

// LogNotificationSink only logs events. Used when Pub/Sub is not configured.
type LogNotificationSink struct{}

func (LogNotificationSink) Notify(ctx context.Context, event NotificationEvent) {
	config.GetLogger().WithFields(logrus.Fields{
		"field":          "Notification",
		"kind":           event.Kind,
		"location_id":    event.LocationId,
		"product_id":     event.ProductId,
		"batch_lot_id":   event.BatchLotId,
		"correlation_id": utils.CorrelationIdOrNew(ctx),
	}).Warn(event.Message)
}

// MemoryNotificationSink collects events in memory.
type MemoryNotificationSink struct {
	mu     sync.Mutex
	events []NotificationEvent
}

func (m *MemoryNotificationSink) Notify(_ context.Context, event NotificationEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MemoryNotificationSink) Events() []NotificationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]NotificationEvent(nil), m.events...)
}
