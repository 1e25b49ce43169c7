package workflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
	"bitbucket.org/mmdatafocus/shopstock_backend/models"
)

func acquireStockRebuildLock(tx *gorm.DB, shopId string) error {
	lockName := fmt.Sprintf("stock_rebuild:%s", shopId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire rebuild lock for shop_id=%s", shopId)
	}
	return nil
}

func releaseStockRebuildLock(tx *gorm.DB, shopId string) {
	lockName := fmt.Sprintf("stock_rebuild:%s", shopId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

type poolTarget struct {
	table    string
	poolType models.PoolType
}

var poolTargets = []poolTarget{
	{table: "central_stock_lines", poolType: models.PoolTypeCentral},
	{table: "branch_stock_rows", poolType: models.PoolTypeBranch},
	{table: "channel_stock_rows", poolType: models.PoolTypeChannel},
}

// RebuildStockFromMovements recomputes every pool row's quantity for one
// shop by replaying its movement history. Rows that predate the history get
// a seed movement first so later replays stay consistent. Returns the number
// of rows whose quantity was repaired.
func RebuildStockFromMovements(ctx context.Context, db *gorm.DB, logger *logrus.Logger, shopId string) (int, error) {

	repaired := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireStockRebuildLock(tx, shopId); err != nil {
			return err
		}
		defer releaseStockRebuildLock(tx, shopId)

		for _, target := range poolTargets {
			n, err := rebuildPool(ctx, tx, logger, shopId, target)
			if err != nil {
				return err
			}
			repaired += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return repaired, nil
}

func rebuildPool(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, shopId string, target poolTarget) (int, error) {

	type poolRow struct {
		Id             int
		ProductKey     string
		QuantityOnHand decimal.Decimal
	}
	var rows []poolRow
	query := "SELECT id, product_no AS product_key, quantity_on_hand FROM central_stock_lines WHERE shop_id = ?"
	if target.poolType != models.PoolTypeCentral {
		query = fmt.Sprintf("SELECT id, product_key, quantity_on_hand FROM %s WHERE shop_id = ?", target.table)
	}
	if err := tx.WithContext(ctx).Raw(query, shopId).Scan(&rows).Error; err != nil {
		return 0, err
	}

	repaired := 0
	for _, row := range rows {
		var sum decimal.NullDecimal
		err := tx.WithContext(ctx).Raw(
			"SELECT SUM(quantity) FROM stock_movements WHERE shop_id = ? AND pool_type = ? AND pool_row_id = ?",
			shopId, target.poolType, row.Id).Scan(&sum).Error
		if err != nil {
			return repaired, err
		}

		if !sum.Valid {
			// Row predates the movement history: seed it so replays work.
			if row.QuantityOnHand.IsZero() {
				continue
			}
			seed := &models.StockMovement{
				ShopId:          shopId,
				PoolType:        target.poolType,
				PoolRowId:       row.Id,
				ProductKey:      row.ProductKey,
				MovementType:    models.MovementTypeRebuild,
				Quantity:        row.QuantityOnHand,
				ClosingQuantity: row.QuantityOnHand,
				ReferenceType:   "stock_rebuild",
				CreatedBy:       "stock-rebuild",
			}
			if err := tx.WithContext(ctx).Create(seed).Error; err != nil {
				return repaired, err
			}
			continue
		}

		if sum.Decimal.Equal(row.QuantityOnHand) {
			continue
		}
		logger.WithFields(logrus.Fields{
			"module":     "stockRebuild",
			"shop_id":    shopId,
			"pool_type":  target.poolType,
			"pool_row":   row.Id,
			"stored_qty": row.QuantityOnHand.String(),
			"replay_qty": sum.Decimal.String(),
		}).Warn("pool quantity drifted from movement history, repairing")
		err = tx.WithContext(ctx).Exec(
			fmt.Sprintf("UPDATE %s SET quantity_on_hand = ?, updated_at = NOW() WHERE id = ?", target.table),
			sum.Decimal, row.Id).Error
		if err != nil {
			config.LogError(logger, "stockRebuild.go", "rebuildPool", "Repair pool quantity", row.Id, err)
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}
