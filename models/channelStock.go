package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChannelStockRow is the branch-independent distribution pool. At most one
// row exists per (shop, product key).
type ChannelStockRow struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ShopId           string          `gorm:"uniqueIndex:idx_channel_stock_key;size:36;not null" json:"shop_id"`
	ProductKey       string          `gorm:"uniqueIndex:idx_channel_stock_key;size:100;not null" json:"product_key"`
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

func firstOrCreateChannelStockRow(ctx context.Context, tx *gorm.DB, shopId string, key ProductKey) (*ChannelStockRow, error) {
	var row ChannelStockRow
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shop_id = ? AND product_key = ?", shopId, key.String()).
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	row = ChannelStockRow{
		ShopId:     shopId,
		ProductKey: key.String(),
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func findChannelStockRow(ctx context.Context, db *gorm.DB, shopId string, key ProductKey) (*ChannelStockRow, error) {
	var row ChannelStockRow
	err := db.WithContext(ctx).
		Where("shop_id = ? AND product_key = ?", shopId, key.String()).
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
		Where("shop_id = ? AND product_no = ?", shopId, productNo).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProductNotFoundError{ProductKey: key}
		}
		return nil, err
	}
	return &row, nil
}

func (inv *Inventory) ListChannelStock(ctx context.Context) ([]*ChannelStockRow, error) {
	var rows []*ChannelStockRow
	err := inv.db.WithContext(ctx).Order("product_name").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
