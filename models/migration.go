package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates or updates every table the ledger and the posting documents use.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Setting{}, &AuditLog{}, &TransactionNumberSeries{}, &NotificationOutbox{},
		&Location{}, &Product{}, &BatchLot{},
		&InventoryMovement{},
		&PurchaseOrder{}, &PurchaseOrderLine{},
		&GoodsReceipt{}, &GoodsReceiptLine{},
		&SalesInvoice{}, &SalesLine{}, &Payment{}, &Prescription{},
		&H1RegisterEntry{}, &NDPSDailyEntry{},
		&TransferVoucher{}, &TransferLine{},
		&VendorReturn{}, &VendorReturnLine{},
		&StockAdjustment{},
	)
}
