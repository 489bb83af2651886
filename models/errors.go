package models

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity         = errors.New("quantity must not be negative")
	ErrMissingPackagingInfo    = errors.New("packaging info required for conversion")
	ErrUnsupportedConversion   = errors.New("unsupported unit conversion")
	ErrInvalidConversionFactor = errors.New("conversion factor must be greater than zero")

	ErrAlreadyPosted        = errors.New("document already posted")
	ErrPrescriptionRequired = errors.New("prescription required for scheduled drug")
	ErrInvalidState         = errors.New("invalid state transition")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrQuantityExceedsOrder = errors.New("received quantity exceeds ordered quantity")

	ErrNotFound          = errors.New("record not found")
	ErrLedgerImmutable   = errors.New("inventory movements are append-only")
	ErrRegisterImmutable = errors.New("register entries cannot be changed")
	ErrValidation        = errors.New("validation failed")
	ErrBatchUnavailable  = errors.New("batch lot is not available for sale")
)

type InsufficientStockError struct {
	LocationId int
	BatchLotId int
	BatchNo    string
	ProductId  int
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Error() string {
	target := fmt.Sprintf("batch %d", e.BatchLotId)
	if e.BatchNo != "" {
		target = fmt.Sprintf("batch %s (%d)", e.BatchNo, e.BatchLotId)
	} else if e.BatchLotId == 0 {
		target = fmt.Sprintf("product %d", e.ProductId)
	}
	return fmt.Sprintf("%s: %s at location %d requested %s, available %s, short %s",
		ErrInsufficientStock, target, e.LocationId,
		e.Requested.String(), e.Available.String(), e.Shortfall().String())
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// QuantityExceedsOrderError quantities are in base units.
type QuantityExceedsOrderError struct {
	PurchaseOrderLineId int
	Ordered             decimal.Decimal
	AlreadyReceived     decimal.Decimal
	Attempted           decimal.Decimal
}

func (e *QuantityExceedsOrderError) Error() string {
	return fmt.Sprintf("%s: purchase order line %d ordered %s base units, received %s, attempted %s",
		ErrQuantityExceedsOrder, e.PurchaseOrderLineId,
		e.Ordered.String(), e.AlreadyReceived.String(), e.Attempted.String())
}

func (e *QuantityExceedsOrderError) Unwrap() error {
	return ErrQuantityExceedsOrder
}

type InvalidStateError struct {
	Document string
	Id       int
	Current  string
	Target   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s %d cannot move from %s to %s", ErrInvalidState, e.Document, e.Id, e.Current, e.Target)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// AlreadyPostedError wraps ErrAlreadyPosted with the document identity.
type AlreadyPostedError struct {
	Document string
	Id       int
}

func (e *AlreadyPostedError) Error() string {
	return fmt.Sprintf("%s: %s %d", ErrAlreadyPosted, e.Document, e.Id)
}

func (e *AlreadyPostedError) Unwrap() error {
	return ErrAlreadyPosted
}

type NotFoundError struct {
	Entity string
	Id     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.Id)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

type ValidationError struct {
	Field  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, e.Detail)
}

// Unwrap exposes both ErrValidation and the underlying cause (e.g. ErrInvalidQuantity).
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// PrescriptionRequiredError lists the lines that need a prescription.
type PrescriptionRequiredError struct {
	InvoiceId  int
	ProductIds []int
}

func (e *PrescriptionRequiredError) Error() string {
	return fmt.Sprintf("%s: invoice %d products %v", ErrPrescriptionRequired, e.InvoiceId, e.ProductIds)
}

func (e *PrescriptionRequiredError) Unwrap() error {
	return ErrPrescriptionRequired
}

// WrapNotFound maps gorm/utils not-found errors to a NotFoundError.
func WrapNotFound(err error, entity string, id int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return &NotFoundError{Entity: entity, Id: id}
	}
	return err
}

// NewValidationError converts go-playground validator output into a ValidationError.
func NewValidationError(err error) error {
	if err == nil {
		return nil
	}
	fields := utils.ProcessValidationErrors(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	field := ""
	if len(keys) == 1 {
		field = keys[0]
	}
	return &ValidationError{Field: field, Detail: strings.Join(parts, ", "), Err: err}
}

// HTTPStatusFor maps the error taxonomy onto response codes.
func HTTPStatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrMissingPackagingInfo),
		errors.Is(err, ErrUnsupportedConversion),
		errors.Is(err, ErrInvalidConversionFactor),
		errors.Is(err, ErrPrescriptionRequired),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrQuantityExceedsOrder),
		errors.Is(err, ErrBatchUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyPosted),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrLedgerImmutable),
		errors.Is(err, ErrRegisterImmutable):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
