package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

type LedgerAccount struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ShopId      string          `gorm:"index;size:36;not null" json:"shop_id"`
	BranchId    *int            `gorm:"index" json:"branch_id"`
	AccountName string          `gorm:"index;size:100;not null" json:"account_name"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	Description string          `gorm:"type:text" json:"description"`
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLedgerAccount struct {
	AccountName    string          `json:"account_name" validate:"required"`
	BranchId       *int            `json:"branch_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Description    string          `json:"description"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewLedgerAccount) validate(ctx context.Context, l *Ledger, id int) error {
	if err := validate.Struct(input); err != nil {
		return &ValidationError{Message: "invalid account input", Fields: utils.ProcessValidationErrors(err)}
	}
	if id > 0 {
		if err := utils.ValidateResourceId[LedgerAccount](ctx, l.db, id); err != nil {
			return &NotFoundError{Resource: "account", Id: id}
		}
	}
	if err := utils.ValidateUnique[LedgerAccount](ctx, l.db, "account_name", input.AccountName, id); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	if input.OpeningBalance.IsNegative() {
		return &ValidationError{Message: "opening balance cannot be negative"}
	}
	if input.BranchId != nil {
		if err := utils.ValidateResourceId[Branch](ctx, l.db, *input.BranchId); err != nil {
			return &NotFoundError{Resource: "branch", Id: *input.BranchId}
		}
	}
	return nil
}

func (l *Ledger) CreateAccount(ctx context.Context, input *NewLedgerAccount) (*LedgerAccount, error) {

	shopId := utils.GetShopId(ctx)
	if shopId == "" {
		return nil, errors.New("shop id is required")
	}

	if err := input.validate(ctx, l, 0); err != nil {
		return nil, err
	}

	account := LedgerAccount{
		ShopId:      shopId,
		BranchId:    input.BranchId,
		AccountName: input.AccountName,
		Balance:     input.OpeningBalance,
		Description: input.Description,
		IsActive:    utils.NewTrue(),
	}

	err := l.db.WithContext(ctx).Create(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (l *Ledger) GetAccount(ctx context.Context, id int) (*LedgerAccount, error) {
	account, err := utils.FetchModel[LedgerAccount](ctx, l.db, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &NotFoundError{Resource: "account", Id: id}
		}
		return nil, err
	}
	return account, nil
}

func (l *Ledger) ListAccounts(ctx context.Context) ([]*LedgerAccount, error) {
	var accounts []*LedgerAccount
	err := l.db.WithContext(ctx).Order("account_name").Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (l *Ledger) ToggleAccountActive(ctx context.Context, id int, isActive bool) (*LedgerAccount, error) {
	account, err := l.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	account.IsActive = &isActive
	err = l.db.WithContext(ctx).Model(account).Update("is_active", isActive).Error
	if err != nil {
		return nil, err
	}
	return account, nil
}
