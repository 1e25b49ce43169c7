package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
)

const stockViewCacheTTL = 5 * time.Minute

type stockRowMeta struct {
	ProductNo   string
	ProductName string
	Brand       string
	Model       string
	Validity    string
}

// backfillMetadata copies descriptive fields the destination row lacks from
// its central line into the pending column updates. Repair is best-effort
// denormalization, never a correctness requirement.
func backfillMetadata(updates map[string]interface{}, current stockRowMeta, line *CentralStockLine) {
	if current.ProductNo == "" && line.ProductNo != "" {
		updates["product_no"] = line.ProductNo
	}
	if current.ProductName == "" && line.ProductName != "" {
		updates["product_name"] = line.ProductName
	}
	if current.Brand == "" && line.Brand != "" {
		updates["brand"] = line.Brand
	}
	if current.Model == "" && line.Model != "" {
		updates["model"] = line.Model
	}
	if current.Validity == "" && line.Validity != "" {
		updates["validity"] = line.Validity
	}
}

// MergedStockRow is the central+branch read projection for one product.
type MergedStockRow struct {
	ProductKey      string          `json:"product_key"`
	ProductNo       string          `json:"product_no"`
	ProductName     string          `json:"product_name"`
	Brand           string          `json:"brand"`
	Model           string          `json:"model"`
	CentralQuantity decimal.Decimal `json:"central_quantity"`
	BranchQuantity  decimal.Decimal `json:"branch_quantity"`
	TotalQuantity   decimal.Decimal `json:"total_quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

func mergedStockCacheKey(shopId string) string {
	return "stockView:merged:" + shopId
}

func channelStockCacheKey(shopId string) string {
	return "stockView:channel:" + shopId
}

// invalidateStockViews drops the cached projections after any stock write.
// Cache trouble is logged and swallowed; reads fall through to the DB.
func (inv *Inventory) invalidateStockViews(ctx context.Context, shopId string) {
	if inv.cache == nil {
		return
	}
	err := inv.cache.Del(ctx, mergedStockCacheKey(shopId), channelStockCacheKey(shopId)).Err()
	if err != nil {
		config.LogError(inv.logger, "Inventory", "invalidateStockViews", "Could not invalidate stock view cache", shopId, err)
	}
}

// MergedStockView returns the central+branch projection, cached in redis.
// Missing destination metadata is repaired from the central line while
// assembling the view.
func (inv *Inventory) MergedStockView(ctx context.Context, shopId string) ([]*MergedStockRow, error) {
	if inv.cache != nil {
		cached, err := inv.cache.Get(ctx, mergedStockCacheKey(shopId)).Result()
		if err == nil {
			var rows []*MergedStockRow
			if jsonErr := json.Unmarshal([]byte(cached), &rows); jsonErr == nil {
				return rows, nil
			}
		} else if err != redis.Nil {
			config.LogError(inv.logger, "Inventory", "MergedStockView", "Stock view cache read failed", shopId, err)
		}
	}

	var lines []*CentralStockLine
	if err := inv.db.WithContext(ctx).Where("shop_id = ?", shopId).
		Order("document_id, line_index").Find(&lines).Error; err != nil {
		return nil, err
	}

	byKey := make(map[string]*MergedStockRow, len(lines))
	var rows []*MergedStockRow
	for _, line := range lines {
		row := &MergedStockRow{
			ProductKey:      line.Key().String(),
			ProductNo:       line.ProductNo,
			ProductName:     line.ProductName,
			Brand:           line.Brand,
			Model:           line.Model,
			CentralQuantity: line.QuantityOnHand,
			TotalQuantity:   line.QuantityOnHand,
			UnitCost:        line.UnitCost,
		}
		byKey[row.ProductKey] = row
		rows = append(rows, row)
	}

	var branchRows []*BranchStockRow
	if err := inv.db.WithContext(ctx).Where("shop_id = ?", shopId).Find(&branchRows).Error; err != nil {
		return nil, err
	}
	for _, br := range branchRows {
		inv.repairRowMetadata(ctx, br.ProductKey, stockRowMeta{
			ProductNo:   br.ProductNo,
			ProductName: br.ProductName,
			Brand:       br.Brand,
			Model:       br.Model,
			Validity:    br.Validity,
		}, "branch_stock_rows", br.ID)
		merged, ok := byKey[br.ProductKey]
		if !ok {
			merged = &MergedStockRow{
				ProductKey:  br.ProductKey,
				ProductNo:   br.ProductNo,
				ProductName: br.ProductName,
				Brand:       br.Brand,
				Model:       br.Model,
				UnitCost:    br.UnitCost,
			}
			byKey[br.ProductKey] = merged
			rows = append(rows, merged)
		}
		merged.BranchQuantity = merged.BranchQuantity.Add(br.QuantityOnHand)
		merged.TotalQuantity = merged.TotalQuantity.Add(br.QuantityOnHand)
	}

	inv.cacheStockView(ctx, mergedStockCacheKey(shopId), rows)
	return rows, nil
}

// ChannelStockView returns the channel-only projection, cached in redis.
func (inv *Inventory) ChannelStockView(ctx context.Context, shopId string) ([]*ChannelStockRow, error) {
	if inv.cache != nil {
		cached, err := inv.cache.Get(ctx, channelStockCacheKey(shopId)).Result()
		if err == nil {
			var rows []*ChannelStockRow
			if jsonErr := json.Unmarshal([]byte(cached), &rows); jsonErr == nil {
				return rows, nil
			}
		} else if err != redis.Nil {
			config.LogError(inv.logger, "Inventory", "ChannelStockView", "Stock view cache read failed", shopId, err)
		}
	}

	var rows []*ChannelStockRow
	if err := inv.db.WithContext(ctx).Where("shop_id = ?", shopId).
		Order("product_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		inv.repairRowMetadata(ctx, row.ProductKey, stockRowMeta{
			ProductNo:   row.ProductNo,
			ProductName: row.ProductName,
			Brand:       row.Brand,
			Model:       row.Model,
			Validity:    row.Validity,
		}, "channel_stock_rows", row.ID)
	}

	inv.cacheStockView(ctx, channelStockCacheKey(shopId), rows)
	return rows, nil
}

// repairRowMetadata persists missing descriptive fields on a destination
// row when its central line still carries them. Failures are logged only.
func (inv *Inventory) repairRowMetadata(ctx context.Context, productKey string, current stockRowMeta, table string, rowId int) {
	if current.ProductNo != "" && current.ProductName != "" && current.Brand != "" && current.Model != "" && current.Validity != "" {
		return
	}
	key, err := ParseProductKey(productKey)
	if err != nil {
		return
	}
	line, err := resolveCentralLine(ctx, inv.db, key)
	if err != nil {
		return
	}
	updates := map[string]interface{}{}
	backfillMetadata(updates, current, line)
	if len(updates) == 0 {
		return
	}
	if err := inv.db.WithContext(ctx).Table(table).Where("id = ?", rowId).Updates(updates).Error; err != nil {
		config.LogError(inv.logger, "Inventory", "repairRowMetadata", "Metadata backfill failed", productKey, err)
	}
}

func (inv *Inventory) cacheStockView(ctx context.Context, cacheKey string, rows interface{}) {
	if inv.cache == nil {
		return
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := inv.cache.Set(ctx, cacheKey, payload, stockViewCacheTTL).Err(); err != nil {
		config.LogError(inv.logger, "Inventory", "cacheStockView", "Stock view cache write failed", cacheKey, err)
	}
}
