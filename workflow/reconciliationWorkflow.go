package workflow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
	"bitbucket.org/mmdatafocus/shopstock_backend/models"
	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

const maxGapAttempts = 5

// ReprocessGaps replays pending consistency gaps: ledger log rows that were
// never appended after a balance update, and sale credits that never landed.
// A gap that keeps failing past maxGapAttempts is parked as failed for
// manual review.
func ReprocessGaps(ctx context.Context, db *gorm.DB, logger *logrus.Logger, ledger *models.Ledger, limit int) (resolved int, failed int, err error) {

	gaps, err := models.PendingGaps(ctx, db, limit)
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ReprocessGaps", "Fetch pending gaps", limit, err)
		return 0, 0, err
	}

	for _, gap := range gaps {
		gapCtx := utils.WithShop(ctx, gap.ShopId)

		var replayErr error
		switch gap.Kind {
		case models.GapKindLedgerLog:
			replayErr = replayLedgerLog(gapCtx, db, gap)
		case models.GapKindSaleCredit:
			replayErr = replaySaleCredit(gapCtx, db, ledger, gap)
		}

		if replayErr == nil {
			now := time.Now()
			err := db.WithContext(gapCtx).Model(gap).Updates(map[string]interface{}{
				"status":      models.GapStatusResolved,
				"attempts":    gap.Attempts + 1,
				"last_error":  "",
				"resolved_at": now,
			}).Error
			if err != nil {
				config.LogError(logger, "reconciliationWorkflow.go", "ReprocessGaps", "Mark gap resolved", gap.ID, err)
				return resolved, failed, err
			}
			resolved++
			continue
		}

		config.LogError(logger, "reconciliationWorkflow.go", "ReprocessGaps", "Gap replay failed", gap.ID, replayErr)
		status := models.GapStatusPending
		if gap.Attempts+1 >= maxGapAttempts {
			status = models.GapStatusFailed
		}
		err := db.WithContext(gapCtx).Model(gap).Updates(map[string]interface{}{
			"status":     status,
			"attempts":   gap.Attempts + 1,
			"last_error": replayErr.Error(),
		}).Error
		if err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "ReprocessGaps", "Mark gap attempt", gap.ID, err)
			return resolved, failed, err
		}
		if status == models.GapStatusFailed {
			failed++
		}
	}

	return resolved, failed, nil
}

// ledgerLogExists reports whether the gap's transaction already landed in the
// ledger. Replay is at-least-once: a crash between the replay write and the
// resolved mark leaves the gap pending, so every replay checks first.
func ledgerLogExists(ctx context.Context, db *gorm.DB, gap *models.ConsistencyGap) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&models.LedgerTransaction{}).
		Where("account_id = ? AND transaction_type = ? AND reference_type = ? AND reference_id = ?",
			gap.AccountId, gap.TransactionType, gap.ReferenceType, gap.ReferenceId).
		Count(&count).Error
	return count > 0, err
}

// replayLedgerLog appends the log row the original call could not write. The
// balance already reflects the mutation, so only the audit entry is missing.
func replayLedgerLog(ctx context.Context, db *gorm.DB, gap *models.ConsistencyGap) error {
	exists, err := ledgerLogExists(ctx, db, gap)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	transaction := &models.LedgerTransaction{
		ShopId:           gap.ShopId,
		AccountId:        gap.AccountId,
		TransactionType:  gap.TransactionType,
		Amount:           gap.Amount,
		ReferenceType:    gap.ReferenceType,
		ReferenceId:      gap.ReferenceId,
		Note:             "reconciled ledger log append",
		ResultingBalance: gap.ResultingBalance,
		CreatedBy:        "reconciliation",
	}
	return db.WithContext(ctx).Create(transaction).Error
}

// replaySaleCredit retries the payment credit for a sale that committed
// without its money landing. A credit that already reached the ledger is not
// applied twice.
func replaySaleCredit(ctx context.Context, db *gorm.DB, ledger *models.Ledger, gap *models.ConsistencyGap) error {
	exists, err := ledgerLogExists(ctx, db, gap)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = ledger.Credit(ctx, gap.AccountId, gap.Amount, models.Reference{
		Type: gap.ReferenceType,
		Id:   gap.ReferenceId,
		Note: "reconciled sale payment",
	})
	return err
}
