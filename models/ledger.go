package models

import (
	"context"
	"strconv"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

const accountLockType = "accountLock"

// Ledger owns funding accounts and their append-only transaction log.
// Constructed once at process start; all handles are explicit.
type Ledger struct {
	db     *gorm.DB
	logger *logrus.Logger
	locker *redislock.Client
}

func NewLedger(db *gorm.DB, logger *logrus.Logger, locker *redislock.Client) *Ledger {
	return &Ledger{db: db, logger: logger, locker: locker}
}

// Debit withdraws amount from the account. Fails with InsufficientFunds when
// amount exceeds the balance; no partial debit.
func (l *Ledger) Debit(ctx context.Context, accountId int, amount decimal.Decimal, reference Reference) (*LedgerTransaction, error) {
	return l.apply(ctx, nil, accountId, TransactionTypeDebit, amount, reference)
}

// Credit deposits amount into the account.
func (l *Ledger) Credit(ctx context.Context, accountId int, amount decimal.Decimal, reference Reference) (*LedgerTransaction, error) {
	return l.apply(ctx, nil, accountId, TransactionTypeCredit, amount, reference)
}

// DebitTx and CreditTx run the balance mutation inside a caller-owned
// transaction, so stock writes and the ledger side can commit together.
func (l *Ledger) DebitTx(ctx context.Context, tx *gorm.DB, accountId int, amount decimal.Decimal, reference Reference) (*LedgerTransaction, error) {
	return l.apply(ctx, tx, accountId, TransactionTypeDebit, amount, reference)
}

func (l *Ledger) CreditTx(ctx context.Context, tx *gorm.DB, accountId int, amount decimal.Decimal, reference Reference) (*LedgerTransaction, error) {
	return l.apply(ctx, tx, accountId, TransactionTypeCredit, amount, reference)
}

// apply performs one balance mutation plus its log append.
//
// The balance change is an atomic conditional UPDATE, additionally guarded by
// a per-account redis lock so the post-update balance read stays consistent
// with the update that produced it. Write order is fixed: balance first, then
// the log row. On the direct path a failed log append leaves the balance
// update standing and records a ConsistencyGap; the call still succeeds.
// Inside a caller-owned transaction the append failure is returned instead,
// rolling both writes back, so no gap is ever recorded for state that may
// never commit.
func (l *Ledger) apply(ctx context.Context, tx *gorm.DB, accountId int, txType TransactionType, amount decimal.Decimal, reference Reference) (*LedgerTransaction, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Message: "amount must be positive"}
	}

	db := l.db
	if tx != nil {
		db = tx
	}

	lock, err := utils.AccountLock(ctx, l.logger, l.locker, strconv.Itoa(accountId), accountLockType, "Ledger", "apply")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	account, err := utils.FetchModel[LedgerAccount](ctx, db, accountId)
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, &NotFoundError{Resource: "account", Id: accountId}
		}
		return nil, err
	}

	var result *gorm.DB
	switch txType {
	case TransactionTypeDebit:
		result = db.WithContext(ctx).Exec(
			"UPDATE ledger_accounts SET balance = balance - ?, updated_at = NOW() WHERE id = ? AND balance >= ?",
			amount, accountId, amount)
	case TransactionTypeCredit:
		result = db.WithContext(ctx).Exec(
			"UPDATE ledger_accounts SET balance = balance + ?, updated_at = NOW() WHERE id = ?",
			amount, accountId)
	default:
		return nil, &ValidationError{Message: "unknown transaction type"}
	}
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &InsufficientFundsError{
			AccountId: accountId,
			Balance:   account.Balance,
			Requested: amount,
		}
	}

	// Re-read under the lock to capture the post-mutation balance.
	account, err = utils.FetchModel[LedgerAccount](ctx, db, accountId)
	if err != nil {
		return nil, err
	}

	transaction := &LedgerTransaction{
		ShopId:           account.ShopId,
		AccountId:        accountId,
		TransactionType:  txType,
		Amount:           amount,
		ReferenceType:    reference.Type,
		ReferenceId:      reference.Id,
		Note:             reference.Note,
		ResultingBalance: account.Balance,
		CreatedBy:        utils.GetUserName(ctx),
	}

	if err := db.WithContext(ctx).Create(transaction).Error; err != nil {
		if tx != nil {
			// Inside a caller-owned transaction the balance update and the
			// log row roll back together, so the failure is safe to return.
			return nil, err
		}
		config.LogError(l.logger, "Ledger", "apply", "Log append failed after balance update", transaction, err)
		recordConsistencyGap(ctx, l.db, l.logger, &ConsistencyGap{
			ShopId:           account.ShopId,
			Kind:             GapKindLedgerLog,
			AccountId:        accountId,
			TransactionType:  txType,
			Amount:           amount,
			ResultingBalance: account.Balance,
			ReferenceType:    reference.Type,
			ReferenceId:      reference.Id,
		}, err)
		return transaction, nil
	}
	return transaction, nil
}
