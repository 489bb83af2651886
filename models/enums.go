package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ProductSchedule string

const (
	ScheduleOTC  ProductSchedule = "OTC"
	ScheduleH    ProductSchedule = "H"
	ScheduleH1   ProductSchedule = "H1"
	ScheduleX    ProductSchedule = "X"
	ScheduleNDPS ProductSchedule = "NDPS"
)

func (s ProductSchedule) IsValid() bool {
	switch s {
	case ScheduleOTC, ScheduleH, ScheduleH1, ScheduleX, ScheduleNDPS:
		return true
	}
	return false
}

// RequiresPrescription reports schedules that cannot be sold without a linked prescription.
func (s ProductSchedule) RequiresPrescription() bool {
	return s == ScheduleH1 || s == ScheduleNDPS
}

// convert input to enum type
func (s *ProductSchedule) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	v := ProductSchedule(strings.ToUpper(strings.TrimSpace(str)))
	if v == "" {
		v = ScheduleOTC
	}
	if !v.IsValid() {
		return fmt.Errorf("invalid product schedule %q", str)
	}
	*s = v
	return nil
}

type BatchLotStatus string

const (
	BatchLotStatusActive   BatchLotStatus = "ACTIVE"
	BatchLotStatusExpired  BatchLotStatus = "EXPIRED"
	BatchLotStatusReturned BatchLotStatus = "RETURNED"
	BatchLotStatusBlocked  BatchLotStatus = "BLOCKED"
)

type MovementReason string

const (
	MovementReasonPurchase     MovementReason = "PURCHASE"
	MovementReasonSale         MovementReason = "SALE"
	MovementReasonAdjustment   MovementReason = "ADJUSTMENT"
	MovementReasonTransferOut  MovementReason = "TRANSFER_OUT"
	MovementReasonTransferIn   MovementReason = "TRANSFER_IN"
	MovementReasonReturnVendor MovementReason = "RETURN_VENDOR"
	MovementReasonWriteOff     MovementReason = "WRITE_OFF"
	MovementReasonRecallBlock  MovementReason = "RECALL_BLOCK"
)

func (r MovementReason) IsValid() bool {
	switch r {
	case MovementReasonPurchase, MovementReasonSale, MovementReasonAdjustment,
		MovementReasonTransferOut, MovementReasonTransferIn, MovementReasonReturnVendor,
		MovementReasonWriteOff, MovementReasonRecallBlock:
		return true
	}
	return false
}

// RefDocType names the document a ledger movement points back to.
type RefDocType string

const (
	RefDocGoodsReceipt    RefDocType = "GRN"
	RefDocSalesInvoice    RefDocType = "INV"
	RefDocTransferVoucher RefDocType = "TRF"
	RefDocVendorReturn    RefDocType = "VRN"
	RefDocStockAdjustment RefDocType = "ADJ"
	RefDocBatchRecall     RefDocType = "RCL"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusOpen              PurchaseOrderStatus = "OPEN"
	PurchaseOrderStatusPartiallyReceived PurchaseOrderStatus = "PARTIALLY_RECEIVED"
	PurchaseOrderStatusCompleted         PurchaseOrderStatus = "COMPLETED"
	PurchaseOrderStatusCancelled         PurchaseOrderStatus = "CANCELLED"
)

// rank orders statuses along the receiving lifecycle; a recompute never moves backwards.
func (s PurchaseOrderStatus) rank() int {
	switch s {
	case PurchaseOrderStatusOpen:
		return 0
	case PurchaseOrderStatusPartiallyReceived:
		return 1
	case PurchaseOrderStatusCompleted:
		return 2
	}
	return -1
}

type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "DRAFT"
	DocumentStatusPosted    DocumentStatus = "POSTED"
	DocumentStatusCancelled DocumentStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusCredit  PaymentStatus = "CREDIT"
)

type TransferStatus string

const (
	TransferStatusDraft     TransferStatus = "DRAFT"
	TransferStatusInTransit TransferStatus = "IN_TRANSIT"
	TransferStatusReceived  TransferStatus = "RECEIVED"
	TransferStatusCancelled TransferStatus = "CANCELLED"
)

type StockStatus string

const (
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
	StockStatusLowStock   StockStatus = "LOW_STOCK"
	StockStatusInStock    StockStatus = "IN_STOCK"
)

type TaxMethod string

const (
	TaxMethodInclusive TaxMethod = "inclusive"
	TaxMethodExclusive TaxMethod = "exclusive"
)

type NotificationKind string

const (
	NotificationLowStock   NotificationKind = "LOW_STOCK"
	NotificationNearExpiry NotificationKind = "NEAR_EXPIRY"
	NotificationRecall     NotificationKind = "RECALL"
	NotificationExpired    NotificationKind = "EXPIRED"
)
