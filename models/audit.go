package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionPost   AuditAction = "post"
	AuditActionCancel AuditAction = "cancel"
)

type AuditRecord struct {
	Table  string
	RowId  int
	Action AuditAction
	Before any
	After  any
}

// AuditSink records a change. Callers treat it as best effort.
type AuditSink interface {
	Record(ctx context.Context, tx *gorm.DB, rec AuditRecord) error
}

type AuditLog struct {
	ID            int            `gorm:"primary_key" json:"id"`
	ActorId       int            `gorm:"index" json:"actor_id"`
	ActorName     string         `gorm:"size:100" json:"actor_name"`
	EntityType    string         `gorm:"size:64;index:idx_audit_row,priority:1" json:"entity_type"`
	EntityId      int            `gorm:"index:idx_audit_row,priority:2" json:"entity_id"`
	Action        AuditAction    `gorm:"size:20" json:"action"`
	BeforeData    datatypes.JSON `json:"before_data"`
	AfterData     datatypes.JSON `json:"after_data"`
	CorrelationId string         `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// GormAuditSink writes audit_logs rows on the caller's transaction.
type GormAuditSink struct{}

func (GormAuditSink) Record(ctx context.Context, tx *gorm.DB, rec AuditRecord) error {
	before, err := auditJSON(rec.Before)
	if err != nil {
		return err
	}
	after, err := auditJSON(rec.After)
	if err != nil {
		return err
	}
	actor := utils.GetActorFromContext(ctx)
	row := AuditLog{
		ActorId:       actor.ID,
		ActorName:     actor.Label(),
		EntityType:    rec.Table,
		EntityId:      rec.RowId,
		Action:        rec.Action,
		BeforeData:    before,
		AfterData:     after,
		CorrelationId: utils.CorrelationIdOrNew(ctx),
	}
	return tx.WithContext(ctx).Create(&row).Error
}

func auditJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON("null"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
