package models

import (
	"context"
	"fmt"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Inventory owns the stock pools and the operations that move quantity
// between them. Constructed once at process start; all handles are explicit.
type Inventory struct {
	db     *gorm.DB
	logger *logrus.Logger
	locker *redislock.Client
	cache  *redis.Client
	ledger *Ledger
}

func NewInventory(db *gorm.DB, logger *logrus.Logger, locker *redislock.Client, cache *redis.Client, ledger *Ledger) *Inventory {
	return &Inventory{db: db, logger: logger, locker: locker, cache: cache, ledger: ledger}
}

// tryDecrement takes qty off one stock row only when enough is on hand.
// The conditional UPDATE is atomic per row, so concurrent callers cannot
// both pass a stale availability check.
func tryDecrement(ctx context.Context, db *gorm.DB, table string, rowId int, qty decimal.Decimal) (bool, error) {
	result := db.WithContext(ctx).Exec(
		fmt.Sprintf("UPDATE %s SET quantity_on_hand = quantity_on_hand - ?, updated_at = NOW() WHERE id = ? AND quantity_on_hand >= ?", table),
		qty, rowId, qty)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// incrementQuantity adds qty onto one stock row.
func incrementQuantity(ctx context.Context, db *gorm.DB, table string, rowId int, qty decimal.Decimal) error {
	return db.WithContext(ctx).Exec(
		fmt.Sprintf("UPDATE %s SET quantity_on_hand = quantity_on_hand + ?, updated_at = NOW() WHERE id = ?", table),
		qty, rowId).Error
}
