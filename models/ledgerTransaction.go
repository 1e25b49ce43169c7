package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerTransaction is the append-only audit record of every balance change.
// ResultingBalance equals the account balance immediately after the paired
// mutation.
type LedgerTransaction struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ShopId           string          `gorm:"index;size:36;not null" json:"shop_id"`
	AccountId        int             `gorm:"index;not null" json:"account_id"`
	TransactionType  TransactionType `gorm:"type:enum('debit','credit');size:12;not null" json:"transaction_type"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	ReferenceType    string          `gorm:"size:50" json:"reference_type"`
	ReferenceId      int             `json:"reference_id"`
	Note             string          `gorm:"size:255" json:"note"`
	ResultingBalance decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"resulting_balance"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CreatedBy        string          `gorm:"size:100" json:"created_by"`
}

func (t *LedgerTransaction) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable ledger: ledger_transactions cannot be updated")
}

func (t *LedgerTransaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: ledger_transactions cannot be deleted")
}

func (l *Ledger) ListTransactions(ctx context.Context, accountId int) ([]*LedgerTransaction, error) {
	var transactions []*LedgerTransaction
	err := l.db.WithContext(ctx).
		Where("account_id = ?", accountId).
		Order("id").
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}
