package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SalesInvoice struct {
	ID             int             `gorm:"primary_key" json:"id"`
	InvoiceNo      string          `gorm:"size:32;uniqueIndex" json:"invoice_no"`
	LocationId     int             `gorm:"not null;index" json:"location_id"`
	InvoiceDate    time.Time       `gorm:"not null;index" json:"invoice_date"`
	CustomerName   string          `gorm:"size:255" json:"customer_name"`
	Status         DocumentStatus  `gorm:"size:20;not null;default:DRAFT;index" json:"status"`
	PaymentStatus  PaymentStatus   `gorm:"size:20;not null;default:CREDIT" json:"payment_status"`
	TaxMethod      TaxMethod       `gorm:"size:10" json:"tax_method"`
	GrossAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gross_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	RoundOff       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"round_off"`
	NetTotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_total"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	PostedAt       *time.Time      `json:"posted_at"`
	PostedBy       string          `gorm:"size:100" json:"posted_by"`
	CancelledAt    *time.Time      `json:"cancelled_at"`
	Lines          []SalesLine     `gorm:"foreignKey:SalesInvoiceId" json:"lines"`
	Payments       []Payment       `gorm:"foreignKey:SalesInvoiceId" json:"payments,omitempty"`
	Prescription   *Prescription   `gorm:"foreignKey:SalesInvoiceId" json:"prescription,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// SalesLine snapshots product and batch details at post time so the printed invoice and the
// registers survive later master-data edits.
type SalesLine struct {
	ID             int              `gorm:"primary_key" json:"id"`
	SalesInvoiceId int              `gorm:"not null;index" json:"sales_invoice_id"`
	ProductId      int              `gorm:"not null;index" json:"product_id"`
	BatchLotId     *int             `gorm:"index" json:"batch_lot_id"`
	QtyBase        decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"qty_base"`
	Rate           decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"rate"`
	Discount       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"discount"`
	DiscountType   string           `gorm:"size:1" json:"discount_type"`
	TaxPercent     *decimal.Decimal `gorm:"type:decimal(7,4)" json:"tax_percent"`
	TaxableAmount  decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"taxable_amount"`
	TaxAmount      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	LineTotal      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	ProductName    string           `gorm:"size:255" json:"product_name"`
	Schedule       ProductSchedule  `gorm:"size:8" json:"schedule"`
	BatchNo        string           `gorm:"size:64" json:"batch_no"`
	ExpiryDate     *time.Time       `json:"expiry_date"`
	Mrp            decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"mrp"`
}

type Payment struct {
	ID             int             `gorm:"primary_key" json:"id"`
	SalesInvoiceId int             `gorm:"not null;index" json:"sales_invoice_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Mode           string          `gorm:"size:20" json:"mode"`
	Reference      string          `gorm:"size:100" json:"reference"`
	PaidAt         time.Time       `json:"paid_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type Prescription struct {
	ID               int        `gorm:"primary_key" json:"id"`
	SalesInvoiceId   int        `gorm:"not null;uniqueIndex" json:"sales_invoice_id"`
	PatientName      string     `gorm:"size:255;not null" json:"patient_name"`
	PatientPhone     string     `gorm:"size:20" json:"patient_phone"`
	PatientAddress   string     `gorm:"type:text" json:"patient_address"`
	DoctorName       string     `gorm:"size:255;not null" json:"doctor_name"`
	DoctorRegNo      string     `gorm:"size:64" json:"doctor_reg_no"`
	PrescriptionDate *time.Time `json:"prescription_date"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentStatusFor derives the payment status from the amount paid against the net total.
func PaymentStatusFor(paid decimal.Decimal, netTotal decimal.Decimal) PaymentStatus {
	switch {
	case !paid.IsPositive():
		return PaymentStatusCredit
	case paid.GreaterThanOrEqual(netTotal):
		return PaymentStatusPaid
	}
	return PaymentStatusPartial
}

type NewSalesInvoice struct {
	LocationId   int            `json:"location_id" validate:"required,gt=0"`
	InvoiceDate  *time.Time     `json:"invoice_date"`
	CustomerName string         `json:"customer_name"`
	TaxMethod    TaxMethod      `json:"tax_method" validate:"omitempty,oneof=inclusive exclusive"`
	Lines        []NewSalesLine `json:"lines" validate:"required,min=1,dive"`
}

type NewSalesLine struct {
	ProductId    int              `json:"product_id" validate:"required,gt=0"`
	BatchLotId   *int             `json:"batch_lot_id"`
	QtyBase      decimal.Decimal  `json:"qty_base" validate:"gt=0"`
	Rate         decimal.Decimal  `json:"rate" validate:"gte=0"`
	Discount     decimal.Decimal  `json:"discount" validate:"gte=0"`
	DiscountType string           `json:"discount_type" validate:"omitempty,oneof=P A"`
	TaxPercent   *decimal.Decimal `json:"tax_percent"`
}

func CreateSalesInvoice(ctx context.Context, db *gorm.DB, input *NewSalesInvoice) (*SalesInvoice, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewValidationError(err)
	}
	if err := ensureExists[Location](ctx, db, "location", []int{input.LocationId}); err != nil {
		return nil, err
	}
	productIds := make([]int, 0, len(input.Lines))
	for _, l := range input.Lines {
		productIds = append(productIds, l.ProductId)
		if l.TaxPercent != nil && l.TaxPercent.IsNegative() {
			return nil, &ValidationError{Field: "tax_percent", Detail: "must not be negative"}
		}
		if l.BatchLotId != nil {
			lot, err := GetBatchLot(ctx, db, *l.BatchLotId)
			if err != nil {
				return nil, err
			}
			if lot.ProductId != l.ProductId {
				return nil, &ValidationError{Field: "batch_lot_id", Detail: "batch " + lot.BatchNo + " belongs to a different product"}
			}
		}
	}
	if err := ensureExists[Product](ctx, db, "product", productIds); err != nil {
		return nil, err
	}

	invoiceNo, err := GetDocNumberSource().Next(ctx, DocTypeSalesInvoice)
	if err != nil {
		return nil, err
	}
	invoiceDate := utils.Today()
	if input.InvoiceDate != nil {
		invoiceDate = utils.ToDate(*input.InvoiceDate)
	}
	invoice := SalesInvoice{
		InvoiceNo:     invoiceNo,
		LocationId:    input.LocationId,
		InvoiceDate:   invoiceDate,
		CustomerName:  input.CustomerName,
		Status:        DocumentStatusDraft,
		PaymentStatus: PaymentStatusCredit,
		TaxMethod:     input.TaxMethod,
	}
	for _, l := range input.Lines {
		invoice.Lines = append(invoice.Lines, SalesLine{
			ProductId:    l.ProductId,
			BatchLotId:   l.BatchLotId,
			QtyBase:      l.QtyBase,
			Rate:         l.Rate,
			Discount:     l.Discount,
			DiscountType: l.DiscountType,
			TaxPercent:   l.TaxPercent,
		})
	}
	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func GetSalesInvoice(ctx context.Context, db *gorm.DB, id int) (*SalesInvoice, error) {
	invoice, err := utils.FetchModel[SalesInvoice](ctx, db, id, "Lines", "Payments", "Prescription")
	if err != nil {
		return nil, WrapNotFound(err, "sales invoice", id)
	}
	return invoice, nil
}

type NewPrescription struct {
	PatientName      string     `json:"patient_name" validate:"required"`
	PatientPhone     string     `json:"patient_phone"`
	PatientAddress   string     `json:"patient_address"`
	DoctorName       string     `json:"doctor_name" validate:"required"`
	DoctorRegNo      string     `json:"doctor_reg_no"`
	PrescriptionDate *time.Time `json:"prescription_date"`
}

// AttachPrescription links (or replaces) the prescription of a draft invoice.
func AttachPrescription(ctx context.Context, db *gorm.DB, invoiceId int, input *NewPrescription) (*Prescription, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewValidationError(err)
	}
	phone := strings.TrimSpace(input.PatientPhone)
	if phone != "" {
		normalized, err := utils.NormalizePhoneNumber(phone, utils.CountryCode)
		if err != nil {
			return nil, &ValidationError{Field: "patient_phone", Detail: err.Error()}
		}
		phone = normalized
	}

	var rx Prescription
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := utils.FetchModelForUpdate[SalesInvoice](ctx, tx, invoiceId)
		if err != nil {
			return WrapNotFound(err, "sales invoice", invoiceId)
		}
		if invoice.Status != DocumentStatusDraft {
			return &InvalidStateError{Document: "sales invoice", Id: invoiceId, Current: string(invoice.Status), Target: "attach prescription"}
		}
		if err := tx.Where("sales_invoice_id = ?", invoiceId).Limit(1).Find(&rx).Error; err != nil {
			return err
		}
		rx.SalesInvoiceId = invoiceId
		rx.PatientName = input.PatientName
		rx.PatientPhone = phone
		rx.PatientAddress = input.PatientAddress
		rx.DoctorName = input.DoctorName
		rx.DoctorRegNo = input.DoctorRegNo
		if input.PrescriptionDate != nil {
			d := utils.ToDate(*input.PrescriptionDate)
			rx.PrescriptionDate = &d
		}
		return tx.Save(&rx).Error
	})
	if err != nil {
		return nil, err
	}
	return &rx, nil
}

type NewPayment struct {
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Mode      string          `json:"mode" validate:"required,max=20"`
	Reference string          `json:"reference"`
	PaidAt    *time.Time      `json:"paid_at"`
}

// AddInvoicePayment records a payment; on a posted invoice the payment status is recomputed.
func AddInvoicePayment(ctx context.Context, db *gorm.DB, invoiceId int, input *NewPayment) (*SalesInvoice, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewValidationError(err)
	}
	var invoice *SalesInvoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = utils.FetchModelForUpdate[SalesInvoice](ctx, tx, invoiceId)
		if err != nil {
			return WrapNotFound(err, "sales invoice", invoiceId)
		}
		if invoice.Status == DocumentStatusCancelled {
			return &InvalidStateError{Document: "sales invoice", Id: invoiceId, Current: string(invoice.Status), Target: "add payment"}
		}
		paidAt := time.Now().UTC()
		if input.PaidAt != nil {
			paidAt = input.PaidAt.UTC()
		}
		payment := Payment{
			SalesInvoiceId: invoiceId,
			Amount:         input.Amount,
			Mode:           input.Mode,
			Reference:      input.Reference,
			PaidAt:         paidAt,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return RefreshPaymentStatus(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// RefreshPaymentStatus sums linked payments and stores paid amount and status.
// Draft invoices have no net total yet and keep CREDIT until posting.
func RefreshPaymentStatus(ctx context.Context, tx *gorm.DB, invoice *SalesInvoice) error {
	var amounts []decimal.Decimal
	if err := tx.WithContext(ctx).Model(&Payment{}).
		Where("sales_invoice_id = ?", invoice.ID).
		Pluck("amount", &amounts).Error; err != nil {
		return err
	}
	paid := decimal.Zero
	for _, a := range amounts {
		paid = paid.Add(a)
	}
	invoice.PaidAmount = paid
	if invoice.Status == DocumentStatusPosted {
		invoice.PaymentStatus = PaymentStatusFor(invoice.PaidAmount, invoice.NetTotal)
	}
	return tx.Model(invoice).UpdateColumns(map[string]interface{}{
		"paid_amount":    invoice.PaidAmount,
		"payment_status": invoice.PaymentStatus,
	}).Error
}
