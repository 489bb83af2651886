package models

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SettingLowStockDefault    = "inventory.low_stock_default"
	SettingExpiryWarningDays  = "inventory.expiry_warning_days"
	SettingExpiryCriticalDays = "inventory.expiry_critical_days"
	SettingAllowNegativeStock = "inventory.allow_negative_stock"
	SettingDefaultTaxRate     = "tax.default_rate"
	SettingTaxMethod          = "tax.method"
)

// SettingsProvider supplies configurable thresholds as strings.
// Implementations must return def when the key is absent.
type SettingsProvider interface {
	Get(ctx context.Context, key string, def string) string
}

type Setting struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DBSettings reads the settings table through a short Redis cache,
// then falls back to SETTING_<KEY> env vars and finally to the default.
type DBSettings struct{}

func (DBSettings) Get(ctx context.Context, key string, def string) string {
	if v, ok := utils.RetrieveCachedSetting(ctx, key); ok {
		return v
	}

	db := config.GetDB()
	if db != nil {
		var s Setting
		err := db.WithContext(ctx).Where(&Setting{Key: key}).Limit(1).Find(&s).Error
		if err != nil {
			config.LogError(config.GetLogger(), "Settings", "Get", "settings lookup", key, err)
		} else if s.Key != "" {
			utils.StoreCachedSetting(ctx, key, s.Value)
			return s.Value
		}
	}

	if v, ok := config.SettingFromEnv(key); ok {
		return v
	}
	return def
}

// StaticSettings is an in-memory provider, used by tests and the CLI.
type StaticSettings map[string]string

func (s StaticSettings) Get(_ context.Context, key string, def string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

func SetSetting(ctx context.Context, db *gorm.DB, key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return &ValidationError{Field: "key", Detail: "is required"}
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Setting{Key: key, Value: value}).Error
	if err != nil {
		return err
	}
	return utils.ClearCachedSetting(ctx, key)
}

/* typed getters; unparseable values fall back to the default */

func settingDecimal(ctx context.Context, key string, def decimal.Decimal) decimal.Decimal {
	raw := GetSettingsProvider().Get(ctx, key, "")
	if raw == "" {
		return def
	}
	v, err := utils.ParseDecimal(raw)
	if err != nil {
		return def
	}
	return v
}

func settingInt(ctx context.Context, key string, def int) int {
	raw := strings.TrimSpace(GetSettingsProvider().Get(ctx, key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func settingBool(ctx context.Context, key string, def bool) bool {
	raw := strings.TrimSpace(GetSettingsProvider().Get(ctx, key, ""))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func LowStockDefault(ctx context.Context) decimal.Decimal {
	return settingDecimal(ctx, SettingLowStockDefault, decimal.NewFromInt(10))
}

func ExpiryWarningDays(ctx context.Context) int {
	return settingInt(ctx, SettingExpiryWarningDays, 90)
}

func ExpiryCriticalDays(ctx context.Context) int {
	return settingInt(ctx, SettingExpiryCriticalDays, 30)
}

func AllowNegativeStock(ctx context.Context) bool {
	return settingBool(ctx, SettingAllowNegativeStock, false)
}

func DefaultTaxRate(ctx context.Context) decimal.Decimal {
	return settingDecimal(ctx, SettingDefaultTaxRate, decimal.Zero)
}

func DefaultTaxMethod(ctx context.Context) TaxMethod {
	raw := strings.ToLower(strings.TrimSpace(GetSettingsProvider().Get(ctx, SettingTaxMethod, "")))
	if raw == string(TaxMethodInclusive) {
		return TaxMethodInclusive
	}
	return TaxMethodExclusive
}

// PostingSettings is the settings snapshot a posting reads once, before its transaction opens.
type PostingSettings struct {
	AllowNegativeStock bool
	DefaultTaxRate     decimal.Decimal
	DefaultTaxMethod   TaxMethod
	LowStockDefault    decimal.Decimal
}

func LoadPostingSettings(ctx context.Context) PostingSettings {
	return PostingSettings{
		AllowNegativeStock: AllowNegativeStock(ctx),
		DefaultTaxRate:     DefaultTaxRate(ctx),
		DefaultTaxMethod:   DefaultTaxMethod(ctx),
		LowStockDefault:    LowStockDefault(ctx),
	}
}
