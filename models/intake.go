package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

type IntakeItem struct {
	ProductNo        string          `json:"product_no"`
	ProductName      string          `json:"product_name" validate:"required"`
	Brand            string          `json:"brand"`
	Model            string          `json:"model"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	UnitSellingPrice decimal.Decimal `json:"unit_selling_price"`
	Validity         string          `json:"validity"`
}

type NewIntake struct {
	SupplierId       int           `json:"supplier_id"`
	FundingAccountId int           `json:"funding_account_id" validate:"required"`
	ReferenceNo      string        `json:"reference_no"`
	Items            []*IntakeItem `json:"items" validate:"required,min=1,dive"`
}

func (input *NewIntake) validate(ctx context.Context, inv *Inventory) error {
	if err := validate.Struct(input); err != nil {
		return &ValidationError{Message: "invalid intake input", Fields: utils.ProcessValidationErrors(err)}
	}
	for i, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return &ValidationError{Message: fmt.Sprintf("item %d: quantity must be positive", i)}
		}
		if item.UnitCost.IsNegative() {
			return &ValidationError{Message: fmt.Sprintf("item %d: unit cost cannot be negative", i)}
		}
	}
	if err := utils.ValidateResourceId[LedgerAccount](ctx, inv.db, input.FundingAccountId); err != nil {
		return &NotFoundError{Resource: "account", Id: input.FundingAccountId}
	}
	return nil
}

// TotalCost is the sum of unitCost x quantity over all items.
func (input *NewIntake) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, item := range input.Items {
		total = total.Add(item.UnitCost.Mul(item.Quantity))
	}
	return total
}

// Intake creates central stock lines from a supply delivery and debits the
// funding account. The debit and the stock writes commit together: on
// InsufficientFunds the whole intake aborts with zero stock created and zero
// ledger transactions.
func (inv *Inventory) Intake(ctx context.Context, input *NewIntake) (*CentralStockDocument, error) {

	shopId := utils.GetShopId(ctx)
	if shopId == "" {
		return nil, errors.New("shop id is required")
	}

	if err := input.validate(ctx, inv); err != nil {
		return nil, err
	}

	totalCost := input.TotalCost()

	doc := CentralStockDocument{
		ShopId:           shopId,
		SupplierId:       input.SupplierId,
		FundingAccountId: input.FundingAccountId,
		TotalCost:        totalCost,
		ReferenceNo:      input.ReferenceNo,
		CreatedBy:        utils.GetUserName(ctx),
	}
	for i, item := range input.Items {
		productNo := item.ProductNo
		if productNo == "" {
			productNo = utils.GenerateProductNo("ST")
		}
		doc.Lines = append(doc.Lines, CentralStockLine{
			ShopId:           shopId,
			LineIndex:        i,
			ProductNo:        productNo,
			ProductName:      item.ProductName,
			Brand:            item.Brand,
			Model:            item.Model,
			QuantityOnHand:   item.Quantity,
			OriginalQuantity: item.Quantity,
			UnitCost:         item.UnitCost,
			UnitSellingPrice: item.UnitSellingPrice,
			Validity:         item.Validity,
		})
	}

	err := inv.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		if totalCost.IsPositive() {
			if _, err := inv.ledger.DebitTx(ctx, tx, input.FundingAccountId, totalCost, Reference{
				Type: "central_stock_document",
				Id:   doc.ID,
				Note: "supply intake",
			}); err != nil {
				return err
			}
		}
		for i := range doc.Lines {
			line := &doc.Lines[i]
			if err := appendMovement(ctx, tx, &StockMovement{
				ShopId:          shopId,
				PoolType:        PoolTypeCentral,
				PoolRowId:       line.ID,
				ProductKey:      line.Key().String(),
				MovementType:    MovementTypeIntake,
				Quantity:        line.OriginalQuantity,
				ClosingQuantity: line.OriginalQuantity,
				ReferenceType:   "central_stock_document",
				ReferenceId:     doc.ID,
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
	return &doc, nil
}
