package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

// StockMovement is the append-only history of every quantity change in any
// pool. Quantity is signed: positive for stock in, negative for stock out.
// Pool quantities are reconstructable by replaying movements in id order.
type StockMovement struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ShopId          string          `gorm:"index;size:36;not null" json:"shop_id"`
	PoolType        PoolType        `gorm:"type:enum('central','branch','channel');size:12;not null" json:"pool_type"`
	PoolRowId       int             `gorm:"index;not null" json:"pool_row_id"`
	BranchId        *int            `gorm:"index" json:"branch_id"`
	ProductKey      string          `gorm:"index;size:100;not null" json:"product_key"`
	MovementType    MovementType    `gorm:"type:enum('intake','transfer_out','transfer_in','sale','rebuild');size:20;not null" json:"movement_type"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	ClosingQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"closing_quantity"`
	ReferenceType   string          `gorm:"size:50" json:"reference_type"`
	ReferenceId     int             `json:"reference_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CreatedBy       string          `gorm:"size:100" json:"created_by"`
}

func (m *StockMovement) BeforeSave(tx *gorm.DB) error {
	m.ProductKey = strings.TrimSpace(m.ProductKey)
	if m.ProductKey == "" {
		return errors.New("stock movement requires a product key")
	}
	if m.Quantity.IsZero() {
		return errors.New("stock movement quantity cannot be zero")
	}
	return nil
}

func (m *StockMovement) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable history: stock_movements cannot be updated")
}

func (m *StockMovement) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable history: stock_movements cannot be deleted")
}

func appendMovement(ctx context.Context, db *gorm.DB, m *StockMovement) error {
	if m.ShopId == "" {
		m.ShopId = utils.GetShopId(ctx)
	}
	if m.CreatedBy == "" {
		m.CreatedBy = utils.GetUserName(ctx)
	}
	return db.WithContext(ctx).Create(m).Error
}

func (inv *Inventory) ListMovements(ctx context.Context, poolType PoolType, poolRowId int) ([]*StockMovement, error) {
	var movements []*StockMovement
	err := inv.db.WithContext(ctx).
		Where("pool_type = ? AND pool_row_id = ?", poolType, poolRowId).
		Order("id").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
