package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates or updates every table the engine persists.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Branch{},
		&LedgerAccount{},
		&LedgerTransaction{},
		&ConsistencyGap{},
		&CentralStockDocument{},
		&CentralStockLine{},
		&BranchStockRow{},
		&ChannelStockRow{},
		&TransferRecord{},
		&Sale{},
		&SaleLineItem{},
		&StockMovement{},
		&TradeInRecord{},
		&TradeInPurchase{},
	)
}
