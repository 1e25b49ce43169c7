package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BranchStockRow is a per-branch quantity pool, fed from central stock.
// At most one row exists per (shop, branch, product key).
type BranchStockRow struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ShopId           string          `gorm:"uniqueIndex:idx_branch_stock_key;size:36;not null" json:"shop_id"`
	BranchId         int             `gorm:"uniqueIndex:idx_branch_stock_key;not null" json:"branch_id"`
	ProductKey       string          `gorm:"uniqueIndex:idx_branch_stock_key;size:100;not null" json:"product_key"`
	ProductNo        string          `gorm:"index;size:50" json:"product_no"`
	ProductName      string          `gorm:"size:100" json:"product_name"`
	Brand            string          `gorm:"size:100" json:"brand"`
	Model            string          `gorm:"size:100" json:"model"`
	QuantityOnHand   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity_on_hand"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_cost"`
	UnitSellingPrice decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_selling_price"`
	Validity         string          `gorm:"size:100" json:"validity"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// firstOrCreateBranchStockRow fetches the pool row for (branch, key) under a
// row lock, creating it with zero quantity when absent.
func firstOrCreateBranchStockRow(ctx context.Context, tx *gorm.DB, shopId string, branchId int, key ProductKey) (*BranchStockRow, error) {
	var row BranchStockRow
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shop_id = ? AND branch_id = ? AND product_key = ?", shopId, branchId, key.String()).
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	row = BranchStockRow{
		ShopId:     shopId,
		BranchId:   branchId,
		ProductKey: key.String(),
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// findBranchStockRow resolves a sale item in a branch pool: first by the
// canonical product key, then falling back to the product number.
func findBranchStockRow(ctx context.Context, db *gorm.DB, shopId string, branchId int, key ProductKey) (*BranchStockRow, error) {
	var row BranchStockRow
	err := db.WithContext(ctx).
		Where("shop_id = ? AND branch_id = ? AND product_key = ?", shopId, branchId, key.String()).
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	productNo := key.ProductNo
	if key.Kind != ProductKeyProductNo {
		line, lineErr := resolveCentralLine(ctx, db, key)
		if lineErr != nil {
			return nil, &ProductNotFoundError{ProductKey: key}
		}
		productNo = line.ProductNo
	}
	err = db.WithContext(ctx).
		Where("shop_id = ? AND branch_id = ? AND product_no = ?", shopId, branchId, productNo).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProductNotFoundError{ProductKey: key}
		}
		return nil, err
	}
	return &row, nil
}

func (inv *Inventory) ListBranchStock(ctx context.Context, branchId int) ([]*BranchStockRow, error) {
	var rows []*BranchStockRow
	err := inv.db.WithContext(ctx).
		Where("branch_id = ?", branchId).
		Order("product_name").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
