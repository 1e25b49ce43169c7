package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/shopstock_backend/models"
	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

func TestTransferRejectsDisabledScope(t *testing.T) {
	t.Setenv("DISABLED_TRANSFER_SCOPES", "channel")

	inv := models.NewInventory(nil, logrus.New(), nil, nil, nil)
	ctx := utils.WithShop(context.Background(), "shop-1")

	qty := decimal.NewFromInt(1)
	_, err := inv.Transfer(ctx, &models.NewTransfer{
		Scope: models.TransferScopeChannel,
		Items: []*models.TransferItem{{ProductKey: "doc:1:0", Quantity: qty}},
	})
	if err == nil {
		t.Fatalf("expected error for disabled channel transfer")
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestTransferRejectsEmptyItems(t *testing.T) {
	inv := models.NewInventory(nil, logrus.New(), nil, nil, nil)
	ctx := utils.WithShop(context.Background(), "shop-1")

	_, err := inv.Transfer(ctx, &models.NewTransfer{Scope: models.TransferScopeChannel})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty items, got %T: %v", err, err)
	}
}

func TestSaleTotalAmount(t *testing.T) {
	input := &models.NewSale{
		Items: []*models.SaleItem{
			{ProductKey: "a", Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(60)},
			{ProductKey: "b", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("10.5")},
		},
	}
	if got := input.TotalAmount(); !got.Equal(decimal.NewFromInt(261)) {
		t.Fatalf("total amount: want 261, got %s", got)
	}
}

func TestIntakeTotalCost(t *testing.T) {
	input := &models.NewIntake{
		Items: []*models.IntakeItem{
			{ProductName: "phone", Quantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(50)},
			{ProductName: "case", Quantity: decimal.NewFromInt(3), UnitCost: decimal.RequireFromString("2.25")},
		},
	}
	if got := input.TotalCost(); !got.Equal(decimal.RequireFromString("506.75")) {
		t.Fatalf("total cost: want 506.75, got %s", got)
	}
}
