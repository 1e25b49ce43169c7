package models_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
	"bitbucket.org/mmdatafocus/shopstock_backend/models"
	"bitbucket.org/mmdatafocus/shopstock_backend/models/reports"
	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
	"bitbucket.org/mmdatafocus/shopstock_backend/workflow"
)

type engine struct {
	db        *gorm.DB
	ledger    *models.Ledger
	inventory *models.Inventory
	trade     *models.Trade
}

func setupEngine(t *testing.T) (context.Context, *engine) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "shopstock_test")

	logger := config.NewLogger()
	db := config.ConnectDatabaseWithRetry()
	rdb, locker := config.ConnectRedisWithRetry()

	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	ledger := models.NewLedger(db, logger, locker)
	inventory := models.NewInventory(db, logger, locker, rdb, ledger)
	trade := models.NewTrade(db, logger, ledger)

	ctx := context.Background()
	ctx = utils.WithShop(ctx, uuid.NewString())
	ctx = utils.WithUser(ctx, "1", "Test")

	return ctx, &engine{db: db, ledger: ledger, inventory: inventory, trade: trade}
}

func mustAccount(t *testing.T, ctx context.Context, e *engine, name string, opening int64) *models.LedgerAccount {
	t.Helper()
	account, err := e.ledger.CreateAccount(ctx, &models.NewLedgerAccount{
		AccountName:    name,
		OpeningBalance: decimal.NewFromInt(opening),
	})
	if err != nil {
		t.Fatalf("CreateAccount %s: %v", name, err)
	}
	return account
}

func mustBranch(t *testing.T, ctx context.Context, e *engine, name string) *models.Branch {
	t.Helper()
	branch, err := e.inventory.CreateBranch(ctx, &models.NewBranch{Name: name})
	if err != nil {
		t.Fatalf("CreateBranch %s: %v", name, err)
	}
	return branch
}

func accountBalance(t *testing.T, ctx context.Context, e *engine, id int) decimal.Decimal {
	t.Helper()
	account, err := e.ledger.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("GetAccount %d: %v", id, err)
	}
	return account.Balance
}

// Walks intake -> branch transfer -> oversell rejection -> sale, checking
// balances, pool quantities and the merged projection at each step.
func TestSupplyChainScenarios(t *testing.T) {
	ctx, e := setupEngine(t)

	funding := mustAccount(t, ctx, e, "Main Cash", 1000)
	payment := mustAccount(t, ctx, e, "Branch Till", 0)
	branch := mustBranch(t, ctx, e, "B1")

	// Intake 10 units @ cost 50 funded from balance 1000.
	doc, err := e.inventory.Intake(ctx, &models.NewIntake{
		FundingAccountId: funding.ID,
		Items: []*models.IntakeItem{{
			ProductNo:   "IPH-13-BLK",
			ProductName: "iPhone 13",
			Brand:       "Apple",
			Quantity:    decimal.NewFromInt(10),
			UnitCost:    decimal.NewFromInt(50),
		}},
	})
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	if got := accountBalance(t, ctx, e, funding.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("funding balance after intake: want 500, got %s", got)
	}
	if len(doc.Lines) != 1 {
		t.Fatalf("want 1 central line, got %d", len(doc.Lines))
	}
	line := doc.Lines[0]
	if !line.QuantityOnHand.Equal(decimal.NewFromInt(10)) || !line.OriginalQuantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("central line quantities: %+v", line)
	}
	key := line.Key().String()

	// Transfer 4 units to B1 with 20% markup.
	markup := decimal.NewFromInt(20)
	result, err := e.inventory.Transfer(ctx, &models.NewTransfer{
		Scope:    models.TransferScopeBranch,
		BranchId: &branch.ID,
		Items: []*models.TransferItem{{
			ProductKey:    key,
			Quantity:      decimal.NewFromInt(4),
			MarkupPercent: &markup,
		}},
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if len(result.BranchRows) != 1 {
		t.Fatalf("want 1 branch row, got %d", len(result.BranchRows))
	}
	row := result.BranchRows[0]
	if !row.QuantityOnHand.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("branch qty: want 4, got %s", row.QuantityOnHand)
	}
	if !row.UnitSellingPrice.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("branch selling price: want 60, got %s", row.UnitSellingPrice)
	}
	if row.Brand != "Apple" || row.ProductNo != "IPH-13-BLK" {
		t.Fatalf("metadata not backfilled: %+v", row)
	}

	// Central dropped to 6; merged view adds back to 10.
	merged, err := e.inventory.MergedStockView(ctx, utils.GetShopId(ctx))
	if err != nil {
		t.Fatalf("MergedStockView: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("want 1 merged row, got %d", len(merged))
	}
	if !merged[0].CentralQuantity.Equal(decimal.NewFromInt(6)) ||
		!merged[0].BranchQuantity.Equal(decimal.NewFromInt(4)) ||
		!merged[0].TotalQuantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("merged view: %+v", merged[0])
	}

	// Selling 5 from a branch holding 4 fails whole sale, nothing mutated.
	_, err = e.inventory.Sell(ctx, &models.NewSale{
		Scope:    models.TransferScopeBranch,
		BranchId: &branch.ID,
		Items: []*models.SaleItem{{
			ProductKey: key,
			Quantity:   decimal.NewFromInt(5),
			UnitPrice:  decimal.NewFromInt(60),
		}},
	})
	var stockErr *models.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStock, got %v", err)
	}
	if !stockErr.Available.Equal(decimal.NewFromInt(4)) || !stockErr.Requested.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("stock error detail: %+v", stockErr)
	}
	var saleCount int64
	if err := e.db.WithContext(ctx).Model(&models.Sale{}).Count(&saleCount).Error; err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if saleCount != 0 {
		t.Fatalf("failed sale must create nothing, got %d sales", saleCount)
	}

	// Sell all 4 at 60 into the payment account.
	sale, err := e.inventory.Sell(ctx, &models.NewSale{
		Scope:            models.TransferScopeBranch,
		BranchId:         &branch.ID,
		PaymentAccountId: &payment.ID,
		Items: []*models.SaleItem{{
			ProductKey: key,
			Quantity:   decimal.NewFromInt(4),
			UnitPrice:  decimal.NewFromInt(60),
		}},
	})
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if !sale.TotalAmount.Equal(decimal.NewFromInt(240)) {
		t.Fatalf("sale total: want 240, got %s", sale.TotalAmount)
	}
	if got := accountBalance(t, ctx, e, payment.ID); !got.Equal(decimal.NewFromInt(240)) {
		t.Fatalf("payment balance after sale: want 240, got %s", got)
	}
	rows, err := e.inventory.ListBranchStock(ctx, branch.ID)
	if err != nil {
		t.Fatalf("ListBranchStock: %v", err)
	}
	if len(rows) != 1 || !rows[0].QuantityOnHand.IsZero() {
		t.Fatalf("branch qty after sale: %+v", rows)
	}

	// Every account satisfies balance == opening + credits - debits.
	for _, account := range []*models.LedgerAccount{funding, payment} {
		transactions, err := e.ledger.ListTransactions(ctx, account.ID)
		if err != nil {
			t.Fatalf("ListTransactions: %v", err)
		}
		derived := decimal.NewFromInt(0)
		if account.ID == funding.ID {
			derived = decimal.NewFromInt(1000)
		}
		for _, txn := range transactions {
			if txn.TransactionType == models.TransactionTypeCredit {
				derived = derived.Add(txn.Amount)
			} else {
				derived = derived.Sub(txn.Amount)
			}
		}
		if got := accountBalance(t, ctx, e, account.ID); !got.Equal(derived) {
			t.Fatalf("account %d: balance %s != derived %s", account.ID, got, derived)
		}
	}

	// The projection exports as a workbook.
	var buf bytes.Buffer
	if err := reports.ExportMergedStockXLSX(ctx, e.inventory, utils.GetShopId(ctx), &buf); err != nil {
		t.Fatalf("ExportMergedStockXLSX: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("empty workbook")
	}
}

func TestIntakeInsufficientFundsCreatesNothing(t *testing.T) {
	ctx, e := setupEngine(t)

	funding := mustAccount(t, ctx, e, "Thin Wallet", 100)

	_, err := e.inventory.Intake(ctx, &models.NewIntake{
		FundingAccountId: funding.ID,
		Items: []*models.IntakeItem{{
			ProductName: "iPhone 13",
			Quantity:    decimal.NewFromInt(10),
			UnitCost:    decimal.NewFromInt(50),
		}},
	})
	var fundsErr *models.InsufficientFundsError
	if !errors.As(err, &fundsErr) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}

	var lineCount, txnCount int64
	if err := e.db.WithContext(ctx).Model(&models.CentralStockLine{}).Count(&lineCount).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if err := e.db.WithContext(ctx).Model(&models.LedgerTransaction{}).Count(&txnCount).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if lineCount != 0 || txnCount != 0 {
		t.Fatalf("aborted intake left residue: lines=%d transactions=%d", lineCount, txnCount)
	}
	if got := accountBalance(t, ctx, e, funding.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("funding balance must be untouched, got %s", got)
	}
}

func TestTradeInAndResale(t *testing.T) {
	ctx, e := setupEngine(t)

	funding := mustAccount(t, ctx, e, "Trade Fund", 500)
	resale := mustAccount(t, ctx, e, "Resale Till", 0)
	branch := mustBranch(t, ctx, e, "B1")

	record, err := e.trade.TradeIn(ctx, &models.NewTradeIn{
		BranchId:             branch.ID,
		DeviceName:           "Galaxy S21",
		AcquisitionValue:     decimal.NewFromInt(300),
		AcquisitionAccountId: &funding.ID,
	})
	if err != nil {
		t.Fatalf("TradeIn: %v", err)
	}
	if got := accountBalance(t, ctx, e, funding.ID); !got.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("funding after trade-in: want 200, got %s", got)
	}

	if _, err := e.trade.Resell(ctx, record.ID, &models.NewResale{Price: decimal.Zero}); err == nil {
		t.Fatalf("expected error for non-positive resale price")
	}

	_, err = e.trade.Resell(ctx, record.ID, &models.NewResale{
		BuyerName:        "U Ba",
		Price:            decimal.NewFromInt(450),
		PaymentAccountId: &resale.ID,
	})
	if err != nil {
		t.Fatalf("Resell: %v", err)
	}
	if got := accountBalance(t, ctx, e, resale.ID); !got.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("resale account: want 450, got %s", got)
	}

	reloaded, err := e.trade.GetTradeIn(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetTradeIn: %v", err)
	}
	if len(reloaded.Purchases) != 1 {
		t.Fatalf("want 1 purchase, got %d", len(reloaded.Purchases))
	}
	if reloaded.SoldFlag == nil || !*reloaded.SoldFlag {
		t.Fatalf("sold flag not set")
	}

	// Trade-ins never touch the stock pools.
	var movementCount int64
	if err := e.db.WithContext(ctx).Model(&models.StockMovement{}).Count(&movementCount).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if movementCount != 0 {
		t.Fatalf("trade-in produced stock movements: %d", movementCount)
	}
}

func TestConcurrentSalesDoNotOversell(t *testing.T) {
	ctx, e := setupEngine(t)

	funding := mustAccount(t, ctx, e, "Main Cash", 10000)
	branch := mustBranch(t, ctx, e, "B1")

	doc, err := e.inventory.Intake(ctx, &models.NewIntake{
		FundingAccountId: funding.ID,
		Items: []*models.IntakeItem{{
			ProductName: "Charger",
			Quantity:    decimal.NewFromInt(5),
			UnitCost:    decimal.NewFromInt(1),
		}},
	})
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	key := doc.Lines[0].Key().String()
	if _, err := e.inventory.Transfer(ctx, &models.NewTransfer{
		Scope:    models.TransferScopeBranch,
		BranchId: &branch.ID,
		Items:    []*models.TransferItem{{ProductKey: key, Quantity: decimal.NewFromInt(5)}},
	}); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	// Two sales of 3 against a pool of 5: exactly one can win.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.inventory.Sell(ctx, &models.NewSale{
				Scope:    models.TransferScopeBranch,
				BranchId: &branch.ID,
				Items: []*models.SaleItem{{
					ProductKey: key,
					Quantity:   decimal.NewFromInt(3),
					UnitPrice:  decimal.NewFromInt(5),
				}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *models.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("want exactly 1 winning sale, got %d", succeeded)
	}

	rows, err := e.inventory.ListBranchStock(ctx, branch.ID)
	if err != nil {
		t.Fatalf("ListBranchStock: %v", err)
	}
	if len(rows) != 1 || !rows[0].QuantityOnHand.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("branch qty after race: %+v", rows)
	}
}

func TestLedgerTransactionsAreImmutable(t *testing.T) {
	ctx, e := setupEngine(t)

	account := mustAccount(t, ctx, e, "Main Cash", 100)
	txn, err := e.ledger.Credit(ctx, account.ID, decimal.NewFromInt(10), models.Reference{Type: "manual"})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}

	err = e.db.WithContext(ctx).Model(&models.LedgerTransaction{ID: txn.ID}).
		Update("amount", decimal.NewFromInt(999)).Error
	if err == nil {
		t.Fatalf("expected update on ledger transaction to fail")
	}
	err = e.db.WithContext(ctx).Delete(&models.LedgerTransaction{ID: txn.ID}).Error
	if err == nil {
		t.Fatalf("expected delete on ledger transaction to fail")
	}
}

func TestReconciliationReplaysGaps(t *testing.T) {
	ctx, e := setupEngine(t)
	logger := config.NewLogger()

	account := mustAccount(t, ctx, e, "Main Cash", 100)

	// A sale whose payment credit never landed.
	creditGap := &models.ConsistencyGap{
		ShopId:          utils.GetShopId(ctx),
		Kind:            models.GapKindSaleCredit,
		AccountId:       account.ID,
		TransactionType: models.TransactionTypeCredit,
		Amount:          decimal.NewFromInt(50),
		ReferenceType:   "sale",
		ReferenceId:     123,
		Status:          models.GapStatusPending,
	}
	// A balance update whose audit row never got appended.
	logGap := &models.ConsistencyGap{
		ShopId:           utils.GetShopId(ctx),
		Kind:             models.GapKindLedgerLog,
		AccountId:        account.ID,
		TransactionType:  models.TransactionTypeDebit,
		Amount:           decimal.NewFromInt(20),
		ResultingBalance: decimal.NewFromInt(80),
		ReferenceType:    "central_stock_document",
		ReferenceId:      7,
		Status:           models.GapStatusPending,
	}
	if err := e.db.WithContext(ctx).Create(creditGap).Error; err != nil {
		t.Fatalf("seed credit gap: %v", err)
	}
	if err := e.db.WithContext(ctx).Create(logGap).Error; err != nil {
		t.Fatalf("seed log gap: %v", err)
	}

	resolved, failed, err := workflow.ReprocessGaps(context.Background(), e.db, logger, e.ledger, 10)
	if err != nil {
		t.Fatalf("ReprocessGaps: %v", err)
	}
	if resolved != 2 || failed != 0 {
		t.Fatalf("want resolved=2 failed=0, got resolved=%d failed=%d", resolved, failed)
	}

	if got := accountBalance(t, ctx, e, account.ID); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("balance after credit replay: want 150, got %s", got)
	}
	var replayed models.LedgerTransaction
	err = e.db.WithContext(ctx).
		Where("account_id = ? AND reference_type = ? AND reference_id = ?", account.ID, "central_stock_document", 7).
		First(&replayed).Error
	if err != nil {
		t.Fatalf("replayed log row missing: %v", err)
	}
	if !replayed.ResultingBalance.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("replayed resulting balance: %s", replayed.ResultingBalance)
	}

	var pending int64
	if err := e.db.WithContext(ctx).Model(&models.ConsistencyGap{}).
		Where("status = ?", models.GapStatusPending).Count(&pending).Error; err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("gaps left pending: %d", pending)
	}
}

func TestStockRebuildRepairsDrift(t *testing.T) {
	ctx, e := setupEngine(t)
	logger := config.NewLogger()
	shopId := utils.GetShopId(ctx)

	funding := mustAccount(t, ctx, e, "Main Cash", 1000)
	branch := mustBranch(t, ctx, e, "B1")

	doc, err := e.inventory.Intake(ctx, &models.NewIntake{
		FundingAccountId: funding.ID,
		Items: []*models.IntakeItem{{
			ProductName: "Screen",
			Quantity:    decimal.NewFromInt(8),
			UnitCost:    decimal.NewFromInt(10),
		}},
	})
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	key := doc.Lines[0].Key().String()
	result, err := e.inventory.Transfer(ctx, &models.NewTransfer{
		Scope:    models.TransferScopeBranch,
		BranchId: &branch.ID,
		Items:    []*models.TransferItem{{ProductKey: key, Quantity: decimal.NewFromInt(3)}},
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	rowId := result.BranchRows[0].ID

	// Corrupt the pool row behind the engine's back.
	if err := e.db.Exec("UPDATE branch_stock_rows SET quantity_on_hand = 99 WHERE id = ?", rowId).Error; err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	repaired, err := workflow.RebuildStockFromMovements(context.Background(), e.db, logger, shopId)
	if err != nil {
		t.Fatalf("RebuildStockFromMovements: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("want 1 repaired row, got %d", repaired)
	}
	rows, err := e.inventory.ListBranchStock(ctx, branch.ID)
	if err != nil {
		t.Fatalf("ListBranchStock: %v", err)
	}
	if !rows[0].QuantityOnHand.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("rebuilt qty: want 3, got %s", rows[0].QuantityOnHand)
	}
}

// Walks intake -> channel transfer -> channel sale, checking the channel
// projection plus the audit linkage of the resulting movements.
func TestChannelTransferAndSale(t *testing.T) {
	ctx, e := setupEngine(t)

	funding := mustAccount(t, ctx, e, "Main Cash", 1000)
	payment := mustAccount(t, ctx, e, "Channel Till", 0)
	branch := mustBranch(t, ctx, e, "B1")

	doc, err := e.inventory.Intake(ctx, &models.NewIntake{
		FundingAccountId: funding.ID,
		Items: []*models.IntakeItem{{
			ProductNo:   "PSU-650",
			ProductName: "PSU 650W",
			Quantity:    decimal.NewFromInt(10),
			UnitCost:    decimal.NewFromInt(50),
		}},
	})
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	key := doc.Lines[0].Key().String()

	// Transfer 6 units into the channel pool with 25% markup.
	markup := decimal.NewFromInt(25)
	result, err := e.inventory.Transfer(ctx, &models.NewTransfer{
		Scope: models.TransferScopeChannel,
		Items: []*models.TransferItem{{
			ProductKey:    key,
			Quantity:      decimal.NewFromInt(6),
			MarkupPercent: &markup,
		}},
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.TransferId == 0 {
		t.Fatalf("transfer id not assigned")
	}
	if len(result.ChannelRows) != 1 {
		t.Fatalf("want 1 channel row, got %d", len(result.ChannelRows))
	}
	row := result.ChannelRows[0]
	if !row.QuantityOnHand.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("channel qty: want 6, got %s", row.QuantityOnHand)
	}
	if !row.UnitSellingPrice.Equal(decimal.NewFromFloat(62.5)) {
		t.Fatalf("channel selling price: want 62.5, got %s", row.UnitSellingPrice)
	}
	if row.ProductNo != "PSU-650" {
		t.Fatalf("metadata not backfilled: %+v", row)
	}

	// Both transfer movements trace back to the transfer record.
	var transferMovements []*models.StockMovement
	err = e.db.WithContext(ctx).
		Where("reference_type = ?", "transfer").
		Find(&transferMovements).Error
	if err != nil {
		t.Fatalf("load transfer movements: %v", err)
	}
	if len(transferMovements) != 2 {
		t.Fatalf("want 2 transfer movements, got %d", len(transferMovements))
	}
	for _, m := range transferMovements {
		if m.ReferenceId != result.TransferId {
			t.Fatalf("movement %d references transfer %d, want %d", m.ID, m.ReferenceId, result.TransferId)
		}
		if m.PoolType == models.PoolTypeChannel && m.BranchId != nil {
			t.Fatalf("channel movement %d carries branch id %d", m.ID, *m.BranchId)
		}
	}

	view, err := e.inventory.ChannelStockView(ctx, utils.GetShopId(ctx))
	if err != nil {
		t.Fatalf("ChannelStockView: %v", err)
	}
	if len(view) != 1 || !view[0].QuantityOnHand.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("channel view: %+v", view)
	}

	// Channel sales are branch-independent even when a branch id is supplied.
	sale, err := e.inventory.Sell(ctx, &models.NewSale{
		Scope:            models.TransferScopeChannel,
		BranchId:         &branch.ID,
		PaymentAccountId: &payment.ID,
		Items: []*models.SaleItem{{
			ProductKey: key,
			Quantity:   decimal.NewFromInt(4),
			UnitPrice:  decimal.NewFromInt(70),
		}},
	})
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if got := accountBalance(t, ctx, e, payment.ID); !got.Equal(decimal.NewFromInt(280)) {
		t.Fatalf("payment balance after channel sale: want 280, got %s", got)
	}
	var saleMovement models.StockMovement
	err = e.db.WithContext(ctx).
		Where("movement_type = ? AND reference_id = ?", models.MovementTypeSale, sale.ID).
		First(&saleMovement).Error
	if err != nil {
		t.Fatalf("load sale movement: %v", err)
	}
	if saleMovement.BranchId != nil {
		t.Fatalf("channel sale movement carries branch id %d", *saleMovement.BranchId)
	}

	rows, err := e.inventory.ListChannelStock(ctx)
	if err != nil {
		t.Fatalf("ListChannelStock: %v", err)
	}
	if len(rows) != 1 || !rows[0].QuantityOnHand.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("channel qty after sale: %+v", rows)
	}
}

// Pool rows are keyed by the canonical central reference, but sales may
// identify the product by its bare product number.
func TestSaleByProductNoResolvesPoolRow(t *testing.T) {
	ctx, e := setupEngine(t)

	funding := mustAccount(t, ctx, e, "Main Cash", 1000)
	branch := mustBranch(t, ctx, e, "B1")

	doc, err := e.inventory.Intake(ctx, &models.NewIntake{
		FundingAccountId: funding.ID,
		Items: []*models.IntakeItem{{
			ProductNo:   "CBL-USBC",
			ProductName: "USB-C Cable",
			Quantity:    decimal.NewFromInt(8),
			UnitCost:    decimal.NewFromInt(5),
		}},
	})
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	key := doc.Lines[0].Key().String()

	if _, err := e.inventory.Transfer(ctx, &models.NewTransfer{
		Scope:    models.TransferScopeBranch,
		BranchId: &branch.ID,
		Items:    []*models.TransferItem{{ProductKey: key, Quantity: decimal.NewFromInt(5)}},
	}); err != nil {
		t.Fatalf("branch Transfer: %v", err)
	}
	if _, err := e.inventory.Transfer(ctx, &models.NewTransfer{
		Scope: models.TransferScopeChannel,
		Items: []*models.TransferItem{{ProductKey: key, Quantity: decimal.NewFromInt(2)}},
	}); err != nil {
		t.Fatalf("channel Transfer: %v", err)
	}

	// Both pools resolve a sale addressed by product number alone.
	if _, err := e.inventory.Sell(ctx, &models.NewSale{
		Scope:    models.TransferScopeBranch,
		BranchId: &branch.ID,
		Items: []*models.SaleItem{{
			ProductKey: "CBL-USBC",
			Quantity:   decimal.NewFromInt(2),
			UnitPrice:  decimal.NewFromInt(8),
		}},
	}); err != nil {
		t.Fatalf("Sell by product number (branch): %v", err)
	}
	if _, err := e.inventory.Sell(ctx, &models.NewSale{
		Scope: models.TransferScopeChannel,
		Items: []*models.SaleItem{{
			ProductKey: "CBL-USBC",
			Quantity:   decimal.NewFromInt(1),
			UnitPrice:  decimal.NewFromInt(8),
		}},
	}); err != nil {
		t.Fatalf("Sell by product number (channel): %v", err)
	}

	branchRows, err := e.inventory.ListBranchStock(ctx, branch.ID)
	if err != nil {
		t.Fatalf("ListBranchStock: %v", err)
	}
	if len(branchRows) != 1 || !branchRows[0].QuantityOnHand.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("branch qty after fallback sale: %+v", branchRows)
	}
	channelRows, err := e.inventory.ListChannelStock(ctx)
	if err != nil {
		t.Fatalf("ListChannelStock: %v", err)
	}
	if len(channelRows) != 1 || !channelRows[0].QuantityOnHand.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("channel qty after fallback sale: %+v", channelRows)
	}

	// An unknown product number still fails cleanly.
	_, err = e.inventory.Sell(ctx, &models.NewSale{
		Scope:    models.TransferScopeBranch,
		BranchId: &branch.ID,
		Items: []*models.SaleItem{{
			ProductKey: "NO-SUCH-PRODUCT",
			Quantity:   decimal.NewFromInt(1),
			UnitPrice:  decimal.NewFromInt(8),
		}},
	})
	var notFound *models.ProductNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ProductNotFound, got %v", err)
	}
}

// A trade-in whose funding debit bounces keeps the record; only the money
// side fails.
func TestTradeInInsufficientFundsKeepsRecord(t *testing.T) {
	ctx, e := setupEngine(t)

	funding := mustAccount(t, ctx, e, "Thin Wallet", 100)
	branch := mustBranch(t, ctx, e, "B1")

	record, err := e.trade.TradeIn(ctx, &models.NewTradeIn{
		BranchId:             branch.ID,
		DeviceName:           "Galaxy S21",
		AcquisitionValue:     decimal.NewFromInt(300),
		AcquisitionAccountId: &funding.ID,
	})
	var fundsErr *models.InsufficientFundsError
	if !errors.As(err, &fundsErr) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	if record == nil || record.ID == 0 {
		t.Fatalf("record must be created despite the failed debit")
	}

	reloaded, err := e.trade.GetTradeIn(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetTradeIn: %v", err)
	}
	if reloaded.DeviceName != "Galaxy S21" {
		t.Fatalf("reloaded record: %+v", reloaded)
	}
	if got := accountBalance(t, ctx, e, funding.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("funding balance must be untouched, got %s", got)
	}
	var txnCount int64
	if err := e.db.WithContext(ctx).Model(&models.LedgerTransaction{}).Count(&txnCount).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if txnCount != 0 {
		t.Fatalf("failed debit left %d ledger transactions", txnCount)
	}
}

// Replaying the same gap twice must not credit the account twice, even when
// the resolved mark from the first pass is lost.
func TestSaleCreditReplayIsIdempotent(t *testing.T) {
	ctx, e := setupEngine(t)
	logger := config.NewLogger()

	account := mustAccount(t, ctx, e, "Main Cash", 100)
	gap := &models.ConsistencyGap{
		ShopId:          utils.GetShopId(ctx),
		Kind:            models.GapKindSaleCredit,
		AccountId:       account.ID,
		TransactionType: models.TransactionTypeCredit,
		Amount:          decimal.NewFromInt(50),
		ReferenceType:   "sale",
		ReferenceId:     321,
		Status:          models.GapStatusPending,
	}
	if err := e.db.WithContext(ctx).Create(gap).Error; err != nil {
		t.Fatalf("seed gap: %v", err)
	}

	resolved, _, err := workflow.ReprocessGaps(context.Background(), e.db, logger, e.ledger, 10)
	if err != nil {
		t.Fatalf("ReprocessGaps: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("want 1 resolved, got %d", resolved)
	}
	if got := accountBalance(t, ctx, e, account.ID); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("balance after first replay: want 150, got %s", got)
	}

	// Crash between the credit and the resolved mark: gap is pending again.
	if err := e.db.Exec("UPDATE consistency_gaps SET status = ?, resolved_at = NULL WHERE id = ?",
		models.GapStatusPending, gap.ID).Error; err != nil {
		t.Fatalf("reset gap: %v", err)
	}

	resolved, _, err = workflow.ReprocessGaps(context.Background(), e.db, logger, e.ledger, 10)
	if err != nil {
		t.Fatalf("second ReprocessGaps: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("second pass: want 1 resolved, got %d", resolved)
	}
	if got := accountBalance(t, ctx, e, account.ID); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("balance after replayed replay: want 150, got %s", got)
	}
	var creditCount int64
	err = e.db.WithContext(ctx).Model(&models.LedgerTransaction{}).
		Where("account_id = ? AND reference_type = ? AND reference_id = ?", account.ID, "sale", 321).
		Count(&creditCount).Error
	if err != nil {
		t.Fatalf("count credits: %v", err)
	}
	if creditCount != 1 {
		t.Fatalf("credit applied %d times", creditCount)
	}
}

// A failed log append records a gap only on the direct path; inside a wider
// transaction the whole operation rolls back, leaving no gap behind.
func TestLedgerLogAppendFailureSemantics(t *testing.T) {
	ctx, e := setupEngine(t)
	logger := config.NewLogger()

	account := mustAccount(t, ctx, e, "Main Cash", 500)

	if err := e.db.Exec(
		"CREATE TRIGGER block_ledger_log BEFORE INSERT ON ledger_transactions FOR EACH ROW SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'log append blocked'",
	).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	// Direct path: balance moves, the missing log row becomes a gap, and the
	// call still succeeds.
	if _, err := e.ledger.Credit(ctx, account.ID, decimal.NewFromInt(50), models.Reference{Type: "manual", Id: 9}); err != nil {
		t.Fatalf("Credit with blocked log: %v", err)
	}
	if got := accountBalance(t, ctx, e, account.ID); !got.Equal(decimal.NewFromInt(550)) {
		t.Fatalf("balance after blocked credit: want 550, got %s", got)
	}
	var gapCount int64
	if err := e.db.WithContext(ctx).Model(&models.ConsistencyGap{}).
		Where("kind = ?", models.GapKindLedgerLog).Count(&gapCount).Error; err != nil {
		t.Fatalf("count gaps: %v", err)
	}
	if gapCount != 1 {
		t.Fatalf("want 1 ledger log gap, got %d", gapCount)
	}

	// Transactional path: the intake rolls back whole, no gap survives.
	_, err := e.inventory.Intake(ctx, &models.NewIntake{
		FundingAccountId: account.ID,
		Items: []*models.IntakeItem{{
			ProductName: "Charger",
			Quantity:    decimal.NewFromInt(2),
			UnitCost:    decimal.NewFromInt(50),
		}},
	})
	if err == nil {
		t.Fatalf("expected intake to fail while log appends are blocked")
	}
	if got := accountBalance(t, ctx, e, account.ID); !got.Equal(decimal.NewFromInt(550)) {
		t.Fatalf("balance after aborted intake: want 550, got %s", got)
	}
	var lineCount int64
	if err := e.db.WithContext(ctx).Model(&models.CentralStockLine{}).Count(&lineCount).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if lineCount != 0 {
		t.Fatalf("aborted intake left %d central lines", lineCount)
	}
	if err := e.db.WithContext(ctx).Model(&models.ConsistencyGap{}).
		Where("kind = ?", models.GapKindLedgerLog).Count(&gapCount).Error; err != nil {
		t.Fatalf("count gaps: %v", err)
	}
	if gapCount != 1 {
		t.Fatalf("rolled-back intake must not add gaps, got %d", gapCount)
	}

	if err := e.db.Exec("DROP TRIGGER block_ledger_log").Error; err != nil {
		t.Fatalf("drop trigger: %v", err)
	}

	resolved, failed, err := workflow.ReprocessGaps(context.Background(), e.db, logger, e.ledger, 10)
	if err != nil {
		t.Fatalf("ReprocessGaps: %v", err)
	}
	if resolved != 1 || failed != 0 {
		t.Fatalf("want resolved=1 failed=0, got resolved=%d failed=%d", resolved, failed)
	}
	if got := accountBalance(t, ctx, e, account.ID); !got.Equal(decimal.NewFromInt(550)) {
		t.Fatalf("replay must not move the balance, got %s", got)
	}
	var txnCount int64
	err = e.db.WithContext(ctx).Model(&models.LedgerTransaction{}).
		Where("account_id = ? AND reference_type = ? AND reference_id = ?", account.ID, "manual", 9).
		Count(&txnCount).Error
	if err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if txnCount != 1 {
		t.Fatalf("replayed log row count: %d", txnCount)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("shopstock-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("shopstock-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=shopstock_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
