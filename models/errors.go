package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Stable error kinds surfaced to callers. Every operation failure maps to
// exactly one kind; messages carry the actionable detail (which product,
// how much available).
const (
	ErrKindValidation        = "ValidationError"
	ErrKindInsufficientFunds = "InsufficientFunds"
	ErrKindInsufficientStock = "InsufficientStock"
	ErrKindProductNotFound   = "ProductNotFound"
	ErrKindNotFound          = "NotFoundError"
)

type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %v", e.Message, e.Fields)
	}
	return e.Message
}

func (e *ValidationError) Kind() string { return ErrKindValidation }

type InsufficientFundsError struct {
	AccountId int
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %d: balance %s, requested %s",
		e.AccountId, e.Balance.String(), e.Requested.String())
}

func (e *InsufficientFundsError) Kind() string { return ErrKindInsufficientFunds }

type InsufficientStockError struct {
	ProductKey ProductKey
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %s, requested %s",
		e.ProductKey.String(), e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Kind() string { return ErrKindInsufficientStock }

type ProductNotFoundError struct {
	ProductKey ProductKey
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductKey.String())
}

func (e *ProductNotFoundError) Kind() string { return ErrKindProductNotFound }

type NotFoundError struct {
	Resource string
	Id       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.Id)
}

func (e *NotFoundError) Kind() string { return ErrKindNotFound }
