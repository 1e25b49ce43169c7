package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

// ConsistencyGap records a secondary write that could not complete after its
// primary record was already committed. The originating request still
// succeeds; a reconciliation job replays pending gaps later.
type ConsistencyGap struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ShopId           string          `gorm:"index;size:36;not null" json:"shop_id"`
	Kind             GapKind         `gorm:"type:enum('ledger_log','sale_credit');size:20;not null" json:"kind"`
	AccountId        int             `gorm:"index;not null" json:"account_id"`
	TransactionType  TransactionType `gorm:"type:enum('debit','credit');size:12" json:"transaction_type"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	ResultingBalance decimal.Decimal `gorm:"type:decimal(20,4)" json:"resulting_balance"`
	ReferenceType    string          `gorm:"size:50" json:"reference_type"`
	ReferenceId      int             `json:"reference_id"`
	Status           GapStatus       `gorm:"type:enum('pending','resolved','failed');size:12;default:'pending';not null;index" json:"status"`
	Attempts         int             `gorm:"default:0" json:"attempts"`
	LastError        string          `gorm:"type:text" json:"last_error"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	ResolvedAt       *time.Time      `json:"resolved_at"`
}

// recordConsistencyGap persists a gap row and logs it with full context. It
// must never fail the caller; a write error here is logged and swallowed.
func recordConsistencyGap(ctx context.Context, db *gorm.DB, logger *logrus.Logger, gap *ConsistencyGap, cause error) {
	if gap.ShopId == "" {
		gap.ShopId = utils.GetShopId(ctx)
	}
	gap.Status = GapStatusPending
	gap.LastError = cause.Error()

	logger.WithFields(logrus.Fields{
		"module":         "ConsistencyGap",
		"kind":           gap.Kind,
		"account_id":     gap.AccountId,
		"amount":         gap.Amount.String(),
		"reference_type": gap.ReferenceType,
		"reference_id":   gap.ReferenceId,
		"shop_id":        gap.ShopId,
	}).WithError(cause).Error("secondary write failed, recording consistency gap")

	if err := db.WithContext(ctx).Create(gap).Error; err != nil {
		config.LogError(logger, "ConsistencyGap", "recordConsistencyGap", "Could not persist consistency gap", gap, err)
	}
}

// PendingGaps lists unresolved gaps oldest first, across all shops.
func PendingGaps(ctx context.Context, db *gorm.DB, limit int) ([]*ConsistencyGap, error) {
	var gaps []*ConsistencyGap
	err := db.WithContext(ctx).
		Where("status = ?", GapStatusPending).
		Order("id").
		Limit(limit).
		Find(&gaps).Error
	if err != nil {
		return nil, err
	}
	return gaps, nil
}
