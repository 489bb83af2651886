package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID               int              `gorm:"primary_key" json:"id"`
	Code             *string          `gorm:"size:64;uniqueIndex" json:"code"`
	Name             string           `gorm:"size:255;not null" json:"name" validate:"required"`
	Schedule         ProductSchedule  `gorm:"size:8;not null;default:OTC;index" json:"schedule"`
	BaseUnit         string           `gorm:"size:32;not null" json:"base_unit" validate:"required"`
	PackUnit         string           `gorm:"size:32;not null" json:"pack_unit" validate:"required"`
	UnitsPerPack     decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:1" json:"units_per_pack"`
	TabletsPerStrip  *decimal.Decimal `gorm:"type:decimal(20,4)" json:"tablets_per_strip"`
	StripsPerBox     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"strips_per_box"`
	BaseUnitStep     decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:1" json:"base_unit_step"`
	ReorderLevel     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"reorder_level"`
	Mrp              decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"mrp"`
	GstPercent       *decimal.Decimal `gorm:"type:decimal(7,4)" json:"gst_percent"`
	LastPurchaseCost decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"last_purchase_cost"`
	IsActive         *bool            `gorm:"not null;default:true" json:"is_active"`
	BatchLots        []BatchLot       `gorm:"foreignKey:ProductId;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave enforces the packaging invariants on every write.
func (p *Product) BeforeSave(tx *gorm.DB) error {
	if p.Schedule == "" {
		p.Schedule = ScheduleOTC
	}
	if !p.Schedule.IsValid() {
		return &ValidationError{Field: "schedule", Detail: "unknown schedule " + string(p.Schedule)}
	}
	if p.BaseUnitStep.IsZero() {
		p.BaseUnitStep = decimal.NewFromInt(1)
	}
	if !p.UnitsPerPack.IsPositive() {
		return &ValidationError{Field: "units_per_pack", Detail: "must be greater than zero"}
	}
	if !p.BaseUnitStep.IsPositive() {
		return &ValidationError{Field: "base_unit_step", Detail: "must be greater than zero"}
	}
	if p.ReorderLevel != nil && p.ReorderLevel.IsNegative() {
		return &ValidationError{Field: "reorder_level", Detail: "must not be negative"}
	}
	if p.TabletsPerStrip != nil && !p.TabletsPerStrip.IsPositive() {
		return &ValidationError{Field: "tablets_per_strip", Detail: "must be greater than zero"}
	}
	if p.StripsPerBox != nil && !p.StripsPerBox.IsPositive() {
		return &ValidationError{Field: "strips_per_box", Detail: "must be greater than zero"}
	}
	if p.Code != nil {
		code := strings.TrimSpace(*p.Code)
		if code == "" {
			p.Code = nil
		} else {
			p.Code = &code
		}
	}
	if p.IsActive == nil {
		p.IsActive = utils.NewTrue()
	}
	return nil
}

// TaxPercent returns the product GST rate, falling back to the configured default.
func (p *Product) TaxPercent(defaultRate decimal.Decimal) decimal.Decimal {
	if p.GstPercent != nil {
		return *p.GstPercent
	}
	return defaultRate
}

type Location struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name" validate:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *Location) BeforeSave(tx *gorm.DB) error {
	if l.IsActive == nil {
		l.IsActive = utils.NewTrue()
	}
	return nil
}

func CreateProduct(ctx context.Context, db *gorm.DB, p *Product) error {
	if err := utils.ValidateStruct(p); err != nil {
		return NewValidationError(err)
	}
	return db.WithContext(ctx).Create(p).Error
}

func CreateLocation(ctx context.Context, db *gorm.DB, l *Location) error {
	if err := utils.ValidateStruct(l); err != nil {
		return NewValidationError(err)
	}
	return db.WithContext(ctx).Create(l).Error
}
