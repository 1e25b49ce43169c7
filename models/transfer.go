package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

// TransferRecord anchors the movements of one transfer so the audit trail
// can be traced back to the operation that produced it.
type TransferRecord struct {
	ID        int           `gorm:"primary_key" json:"id"`
	ShopId    string        `gorm:"index;size:36;not null" json:"shop_id"`
	Scope     TransferScope `gorm:"type:enum('branch','channel');size:12;not null" json:"scope"`
	BranchId  *int          `gorm:"index" json:"branch_id"`
	ItemCount int           `json:"item_count"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"created_at"`
	CreatedBy string        `gorm:"size:100" json:"created_by"`
}

type TransferItem struct {
	ProductKey    string           `json:"product_key" validate:"required"`
	Quantity      decimal.Decimal  `json:"quantity"`
	CostOverride  *decimal.Decimal `json:"cost_override"`
	MarkupPercent *decimal.Decimal `json:"markup_percent"`
	SellingPrice  *decimal.Decimal `json:"selling_price"`
}

type NewTransfer struct {
	Scope    TransferScope   `json:"scope" validate:"required,oneof=branch channel"`
	BranchId *int            `json:"branch_id"`
	Items    []*TransferItem `json:"items" validate:"required,min=1,dive"`
}

type TransferResult struct {
	TransferId  int                `json:"transfer_id"`
	BranchRows  []*BranchStockRow  `json:"branch_rows"`
	ChannelRows []*ChannelStockRow `json:"channel_rows"`
}

// computeSellingPrice derives the destination selling price: cost plus
// markup when a markup is given, else the caller-supplied price, else the
// central line's own selling price.
func computeSellingPrice(unitCost decimal.Decimal, markupPercent *decimal.Decimal, sellingPrice *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if markupPercent != nil {
		factor := decimal.NewFromInt(1).Add(markupPercent.Div(decimal.NewFromInt(100)))
		return unitCost.Mul(factor)
	}
	if sellingPrice != nil {
		return *sellingPrice
	}
	return fallback
}

func (input *NewTransfer) validate(ctx context.Context, inv *Inventory) error {
	if err := validate.Struct(input); err != nil {
		return &ValidationError{Message: "invalid transfer input", Fields: utils.ProcessValidationErrors(err)}
	}
	if !config.TransferScopeEnabled(string(input.Scope)) {
		return &ValidationError{Message: fmt.Sprintf("%s transfer is not enabled for this plan", input.Scope)}
	}
	if input.Scope == TransferScopeBranch {
		if input.BranchId == nil {
			return &ValidationError{Message: "branch id is required for branch transfer"}
		}
		if err := utils.ValidateResourceId[Branch](ctx, inv.db, *input.BranchId); err != nil {
			return &NotFoundError{Resource: "branch", Id: *input.BranchId}
		}
	}
	for i, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return &ValidationError{Message: fmt.Sprintf("item %d: quantity must be positive", i)}
		}
		if item.MarkupPercent != nil && item.MarkupPercent.IsNegative() {
			return &ValidationError{Message: fmt.Sprintf("item %d: markup percent cannot be negative", i)}
		}
		if item.CostOverride != nil && item.CostOverride.IsNegative() {
			return &ValidationError{Message: fmt.Sprintf("item %d: cost override cannot be negative", i)}
		}
		if _, err := ParseProductKey(item.ProductKey); err != nil {
			return err
		}
	}
	return nil
}

// Transfer moves quantity from central stock into a branch or channel pool.
// The central decrement is conditional: a transfer short on central stock
// fails with InsufficientStock instead of clamping at zero, so races never
// mask a shortage. The whole transfer commits or rolls back as one unit.
func (inv *Inventory) Transfer(ctx context.Context, input *NewTransfer) (*TransferResult, error) {

	shopId := utils.GetShopId(ctx)
	if shopId == "" {
		return nil, errors.New("shop id is required")
	}

	if err := input.validate(ctx, inv); err != nil {
		return nil, err
	}

	result := &TransferResult{}
	err := inv.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &TransferRecord{
			ShopId:    shopId,
			Scope:     input.Scope,
			BranchId:  input.BranchId,
			ItemCount: len(input.Items),
			CreatedBy: utils.GetUserName(ctx),
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		result.TransferId = record.ID

		for _, item := range input.Items {
			key, err := ParseProductKey(item.ProductKey)
			if err != nil {
				return err
			}
			line, err := resolveCentralLine(ctx, tx, key)
			if err != nil {
				return err
			}

			ok, err := tryDecrement(ctx, tx, "central_stock_lines", line.ID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &InsufficientStockError{
					ProductKey: key,
					Available:  line.QuantityOnHand,
					Requested:  item.Quantity,
				}
			}
			// Reload for the post-decrement closing quantity; the row stays
			// locked by this transaction until commit.
			if err := tx.WithContext(ctx).First(line, "id = ?", line.ID).Error; err != nil {
				return err
			}
			if err := appendMovement(ctx, tx, &StockMovement{
				ShopId:          shopId,
				PoolType:        PoolTypeCentral,
				PoolRowId:       line.ID,
				ProductKey:      line.Key().String(),
				MovementType:    MovementTypeTransferOut,
				Quantity:        item.Quantity.Neg(),
				ClosingQuantity: line.QuantityOnHand,
				ReferenceType:   "transfer",
				ReferenceId:     record.ID,
			}); err != nil {
				return err
			}

			unitCost := line.UnitCost
			if item.CostOverride != nil {
				unitCost = *item.CostOverride
			}
			sellingPrice := computeSellingPrice(unitCost, item.MarkupPercent, item.SellingPrice, line.UnitSellingPrice)

			switch input.Scope {
			case TransferScopeBranch:
				row, err := inv.transferIntoBranch(ctx, tx, shopId, record.ID, *input.BranchId, key, line, item.Quantity, unitCost, sellingPrice)
				if err != nil {
					return err
				}
				result.BranchRows = append(result.BranchRows, row)
			case TransferScopeChannel:
				row, err := inv.transferIntoChannel(ctx, tx, shopId, record.ID, key, line, item.Quantity, unitCost, sellingPrice)
				if err != nil {
					return err
				}
				result.ChannelRows = append(result.ChannelRows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	inv.invalidateStockViews(ctx, shopId)
	return result, nil
}

func (inv *Inventory) transferIntoBranch(ctx context.Context, tx *gorm.DB, shopId string, transferId int, branchId int, key ProductKey, line *CentralStockLine, qty decimal.Decimal, unitCost decimal.Decimal, sellingPrice decimal.Decimal) (*BranchStockRow, error) {
	row, err := firstOrCreateBranchStockRow(ctx, tx, shopId, branchId, key)
	if err != nil {
		return nil, err
	}
	if err := incrementQuantity(ctx, tx, "branch_stock_rows", row.ID, qty); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"unit_cost":          unitCost,
		"unit_selling_price": sellingPrice,
	}
	backfillMetadata(updates, stockRowMeta{
		ProductNo:   row.ProductNo,
		ProductName: row.ProductName,
		Brand:       row.Brand,
		Model:       row.Model,
		Validity:    row.Validity,
	}, line)
	if err := tx.WithContext(ctx).Model(&BranchStockRow{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).First(row, "id = ?", row.ID).Error; err != nil {
		return nil, err
	}
	if err := appendMovement(ctx, tx, &StockMovement{
		ShopId:          shopId,
		PoolType:        PoolTypeBranch,
		PoolRowId:       row.ID,
		BranchId:        &branchId,
		ProductKey:      row.ProductKey,
		MovementType:    MovementTypeTransferIn,
		Quantity:        qty,
		ClosingQuantity: row.QuantityOnHand,
		ReferenceType:   "transfer",
		ReferenceId:     transferId,
	}); err != nil {
		return nil, err
	}
	return row, nil
}

func (inv *Inventory) transferIntoChannel(ctx context.Context, tx *gorm.DB, shopId string, transferId int, key ProductKey, line *CentralStockLine, qty decimal.Decimal, unitCost decimal.Decimal, sellingPrice decimal.Decimal) (*ChannelStockRow, error) {
	row, err := firstOrCreateChannelStockRow(ctx, tx, shopId, key)
	if err != nil {
		return nil, err
	}
	if err := incrementQuantity(ctx, tx, "channel_stock_rows", row.ID, qty); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"unit_cost":          unitCost,
		"unit_selling_price": sellingPrice,
	}
	backfillMetadata(updates, stockRowMeta{
		ProductNo:   row.ProductNo,
		ProductName: row.ProductName,
		Brand:       row.Brand,
		Model:       row.Model,
		Validity:    row.Validity,
	}, line)
	if err := tx.WithContext(ctx).Model(&ChannelStockRow{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	if err := tx.WithContext(ctx).First(row, "id = ?", row.ID).Error; err != nil {
		return nil, err
	}
	if err := appendMovement(ctx, tx, &StockMovement{
		ShopId:          shopId,
		PoolType:        PoolTypeChannel,
		PoolRowId:       row.ID,
		ProductKey:      row.ProductKey,
		MovementType:    MovementTypeTransferIn,
		Quantity:        qty,
		ClosingQuantity: row.QuantityOnHand,
		ReferenceType:   "transfer",
		ReferenceId:     transferId,
	}); err != nil {
		return nil, err
	}
	return row, nil
}
