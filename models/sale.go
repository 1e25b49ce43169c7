package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

// Sale is immutable once created. Its creation decrements the consuming
// pool and, when paid into an account, credits that account.
type Sale struct {
	ID                int             `gorm:"primary_key" json:"id"`
	ShopId            string          `gorm:"index;size:36;not null" json:"shop_id"`
	Scope             TransferScope   `gorm:"type:enum('branch','channel');size:12;not null" json:"scope"`
	BranchId          *int            `gorm:"index" json:"branch_id"`
	SellerId          int             `gorm:"index" json:"seller_id"`
	CustomerReference string          `gorm:"size:100" json:"customer_reference"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_amount"`
	PaymentMethod     PaymentMethod   `gorm:"type:enum('cash','transfer','credit');size:12;default:'cash'" json:"payment_method"`
	LinkedAccountId   *int            `json:"linked_account_id"`
	LineItems         []SaleLineItem  `gorm:"foreignKey:SaleId" json:"line_items"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CreatedBy         string          `gorm:"size:100" json:"created_by"`
}

type SaleLineItem struct {
	ID         int             `gorm:"primary_key" json:"id"`
	SaleId     int             `gorm:"index;not null" json:"sale_id"`
	ProductKey string          `gorm:"size:100;not null" json:"product_key"`
	ProductNo  string          `gorm:"size:50" json:"product_no"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	LineTotal  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"line_total"`
}

func (s *Sale) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable record: sales cannot be updated")
}

func (s *Sale) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable record: sales cannot be deleted")
}

func (i *SaleLineItem) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable record: sale_line_items cannot be updated")
}

func (i *SaleLineItem) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable record: sale_line_items cannot be deleted")
}

type SaleItem struct {
	ProductKey string          `json:"product_key" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type NewSale struct {
	Scope             TransferScope `json:"scope" validate:"required,oneof=branch channel"`
	BranchId          *int          `json:"branch_id"`
	SellerId          int           `json:"seller_id"`
	CustomerReference string        `json:"customer_reference"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	PaymentAccountId  *int          `json:"payment_account_id"`
	Items             []*SaleItem   `json:"items" validate:"required,min=1,dive"`
}

func (input *NewSale) validate(ctx context.Context, inv *Inventory) error {
	if err := validate.Struct(input); err != nil {
		return &ValidationError{Message: "invalid sale input", Fields: utils.ProcessValidationErrors(err)}
	}
	if input.Scope == TransferScopeBranch {
		if input.BranchId == nil {
			return &ValidationError{Message: "branch id is required for branch sale"}
		}
		if err := utils.ValidateResourceId[Branch](ctx, inv.db, *input.BranchId); err != nil {
			return &NotFoundError{Resource: "branch", Id: *input.BranchId}
		}
	}
	for i, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return &ValidationError{Message: fmt.Sprintf("item %d: quantity must be positive", i)}
		}
		if item.UnitPrice.IsNegative() {
			return &ValidationError{Message: fmt.Sprintf("item %d: unit price cannot be negative", i)}
		}
		if _, err := ParseProductKey(item.ProductKey); err != nil {
			return err
		}
	}
	if input.PaymentAccountId != nil {
		if err := utils.ValidateResourceId[LedgerAccount](ctx, inv.db, *input.PaymentAccountId); err != nil {
			return &NotFoundError{Resource: "account", Id: *input.PaymentAccountId}
		}
	}
	return nil
}

// TotalAmount is the sum of quantity x unitPrice over all items.
func (input *NewSale) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range input.Items {
		total = total.Add(item.UnitPrice.Mul(item.Quantity))
	}
	return total
}

// Sell validates availability for every item, then decrements the consuming
// pool and creates the Sale in one transaction. Any shortage fails the whole
// sale with InsufficientStock and nothing is mutated.
//
// Policy: the sale always succeeds once stock is committed. The payment
// credit runs after commit, best-effort; a failed credit records a
// ConsistencyGap for the reconciliation job and does not undo the Sale.
func (inv *Inventory) Sell(ctx context.Context, input *NewSale) (*Sale, error) {

	shopId := utils.GetShopId(ctx)
	if shopId == "" {
		return nil, errors.New("shop id is required")
	}

	if err := input.validate(ctx, inv); err != nil {
		return nil, err
	}

	sale := &Sale{
		ShopId:            shopId,
		Scope:             input.Scope,
		BranchId:          input.BranchId,
		SellerId:          input.SellerId,
		CustomerReference: input.CustomerReference,
		TotalAmount:       input.TotalAmount(),
		PaymentMethod:     input.PaymentMethod,
		LinkedAccountId:   input.PaymentAccountId,
		CreatedBy:         utils.GetUserName(ctx),
	}

	err := inv.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type decremented struct {
			poolType  PoolType
			rowId     int
			key       string
			branchId  *int
			quantity  decimal.Decimal
			remaining decimal.Decimal
		}
		var applied []decremented

		for _, item := range input.Items {
			key, err := ParseProductKey(item.ProductKey)
			if err != nil {
				return err
			}

			var poolType PoolType
			var rowId int
			var available decimal.Decimal
			var rowKey, rowNo string
			switch input.Scope {
			case TransferScopeBranch:
				row, err := findBranchStockRow(ctx, tx, shopId, *input.BranchId, key)
				if err != nil {
					return err
				}
				poolType, rowId, available = PoolTypeBranch, row.ID, row.QuantityOnHand
				rowKey, rowNo = row.ProductKey, row.ProductNo
			case TransferScopeChannel:
				row, err := findChannelStockRow(ctx, tx, shopId, key)
				if err != nil {
					return err
				}
				poolType, rowId, available = PoolTypeChannel, row.ID, row.QuantityOnHand
				rowKey, rowNo = row.ProductKey, row.ProductNo
			}

			var table string
			if poolType == PoolTypeBranch {
				table = "branch_stock_rows"
			} else {
				table = "channel_stock_rows"
			}
			ok, err := tryDecrement(ctx, tx, table, rowId, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &InsufficientStockError{
					ProductKey: key,
					Available:  available,
					Requested:  item.Quantity,
				}
			}

			// Channel stock is branch-independent, so only branch-scope
			// movements carry a branch id.
			var movementBranchId *int
			if poolType == PoolTypeBranch {
				movementBranchId = input.BranchId
			}
			applied = append(applied, decremented{
				poolType:  poolType,
				rowId:     rowId,
				key:       rowKey,
				branchId:  movementBranchId,
				quantity:  item.Quantity,
				remaining: available.Sub(item.Quantity),
			})
			sale.LineItems = append(sale.LineItems, SaleLineItem{
				ProductKey: rowKey,
				ProductNo:  rowNo,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				LineTotal:  item.UnitPrice.Mul(item.Quantity),
			})
		}

		if err := tx.Create(sale).Error; err != nil {
			return err
		}
		for _, d := range applied {
			if err := appendMovement(ctx, tx, &StockMovement{
				ShopId:          shopId,
				PoolType:        d.poolType,
				PoolRowId:       d.rowId,
				BranchId:        d.branchId,
				ProductKey:      d.key,
				MovementType:    MovementTypeSale,
				Quantity:        d.quantity.Neg(),
				ClosingQuantity: d.remaining,
				ReferenceType:   "sale",
				ReferenceId:     sale.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	inv.invalidateStockViews(ctx, shopId)

	if input.PaymentAccountId != nil && sale.TotalAmount.IsPositive() {
		_, creditErr := inv.ledger.Credit(ctx, *input.PaymentAccountId, sale.TotalAmount, Reference{
			Type: "sale",
			Id:   sale.ID,
			Note: "sale payment",
		})
		if creditErr != nil {
			recordConsistencyGap(ctx, inv.db, inv.logger, &ConsistencyGap{
				ShopId:          shopId,
				Kind:            GapKindSaleCredit,
				AccountId:       *input.PaymentAccountId,
				TransactionType: TransactionTypeCredit,
				Amount:          sale.TotalAmount,
				ReferenceType:   "sale",
				ReferenceId:     sale.ID,
			}, creditErr)
		}
	}

	return sale, nil
}

func (inv *Inventory) GetSale(ctx context.Context, id int) (*Sale, error) {
	var sale Sale
	err := inv.db.WithContext(ctx).Preload("LineItems").First(&sale, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "sale", Id: id}
		}
		return nil, err
	}
	return &sale, nil
}
