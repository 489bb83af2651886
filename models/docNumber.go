package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocType string

const (
	DocTypePurchaseOrder   DocType = "PO"
	DocTypeGoodsReceipt    DocType = "GRN"
	DocTypeSalesInvoice    DocType = "INV"
	DocTypeTransferVoucher DocType = "TRF"
	DocTypeVendorReturn    DocType = "VRN"
	DocTypeStockAdjustment DocType = "ADJ"
)

const defaultDocNumberPadding = 6

// DocNumberSource hands out formatted, strictly increasing document numbers.
type DocNumberSource interface {
	Next(ctx context.Context, docType DocType) (string, error)
}

// TransactionNumberSeries holds the next number per document type.
type TransactionNumberSeries struct {
	DocType   DocType   `gorm:"primaryKey;size:10" json:"doc_type"`
	Prefix    string    `gorm:"size:10" json:"prefix"`
	Padding   int       `gorm:"not null;default:6" json:"padding"`
	NextValue int64     `gorm:"not null;default:1" json:"next_value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func formatDocNumber(prefix string, padding int, n int64) string {
	if padding <= 0 {
		padding = defaultDocNumberPadding
	}
	return fmt.Sprintf("%s%0*d", prefix, padding, n)
}

// DBDocNumberSource increments transaction_number_series under a row lock.
type DBDocNumberSource struct {
	DB *gorm.DB
}

func (s DBDocNumberSource) Next(ctx context.Context, docType DocType) (string, error) {
	db := s.DB
	if db == nil {
		db = config.GetDB()
	}
	var number string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		series, err := lockSeries(ctx, tx, docType)
		if err != nil {
			return err
		}
		number = formatDocNumber(series.Prefix, series.Padding, series.NextValue)
		return tx.Model(&TransactionNumberSeries{}).
			Where("doc_type = ?", docType).
			Update("next_value", series.NextValue+1).Error
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// lockSeries returns the locked series row, creating it on first use.
func lockSeries(ctx context.Context, tx *gorm.DB, docType DocType) (*TransactionNumberSeries, error) {
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&TransactionNumberSeries{DocType: docType, Prefix: string(docType), Padding: defaultDocNumberPadding, NextValue: 1}).Error; err != nil {
		return nil, err
	}
	var series TransactionNumberSeries
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("doc_type = ?", docType).
		First(&series).Error
	if err != nil {
		return nil, err
	}
	return &series, nil
}

// RedisDocNumberSource uses INCR on DocNumber:<type>. A missing key is seeded from the
// database series so numbering continues where the table left off.
type RedisDocNumberSource struct {
	DB *gorm.DB
}

func redisDocNumberKey(docType DocType) string {
	return "DocNumber:" + string(docType)
}

func (s RedisDocNumberSource) Next(ctx context.Context, docType DocType) (string, error) {
	if config.GetRedisDB() == nil {
		return "", errors.New("redis not connected")
	}
	db := s.DB
	if db == nil {
		db = config.GetDB()
	}

	var series TransactionNumberSeries
	err := db.WithContext(ctx).Where("doc_type = ?", docType).Limit(1).Find(&series).Error
	if err != nil {
		return "", err
	}
	if series.DocType == "" {
		series = TransactionNumberSeries{DocType: docType, Prefix: string(docType), Padding: defaultDocNumberPadding, NextValue: 1}
	}

	key := redisDocNumberKey(docType)
	if _, err := config.SetRedisValueNX(ctx, key, strconv.FormatInt(series.NextValue-1, 10)); err != nil {
		return "", err
	}
	n, err := config.IncrRedisCounter(ctx, key)
	if err != nil {
		return "", err
	}
	return formatDocNumber(series.Prefix, series.Padding, n), nil
}
