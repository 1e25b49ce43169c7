package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

// TradeInRecord tracks a second-hand device acquired from a walk-in seller.
// The device is a discrete unit, never a quantity line: trade-ins never
// touch the stock pools. The parent mutates only to flip SoldFlag; resales
// append purchase sub-records.
type TradeInRecord struct {
	ID                   int               `gorm:"primary_key" json:"id"`
	ShopId               string            `gorm:"index;size:36;not null" json:"shop_id"`
	BranchId             int               `gorm:"index;not null" json:"branch_id"`
	DeviceName           string            `gorm:"size:100;not null" json:"device_name"`
	DeviceBrand          string            `gorm:"size:100" json:"device_brand"`
	DeviceModel          string            `gorm:"size:100" json:"device_model"`
	SerialNo             string            `gorm:"size:100" json:"serial_no"`
	SellerName           string            `gorm:"size:100" json:"seller_name"`
	SellerPhone          string            `gorm:"size:20" json:"seller_phone"`
	AcquisitionValue     decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"acquisition_value"`
	AcquisitionAccountId *int              `json:"acquisition_account_id"`
	Attachments          string            `gorm:"type:text" json:"attachments"`
	SoldFlag             *bool             `gorm:"not null;default:false" json:"sold_flag"`
	Purchases            []TradeInPurchase `gorm:"foreignKey:TradeInId" json:"purchases"`
	CreatedAt            time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	CreatedBy            string            `gorm:"size:100" json:"created_by"`
}

type TradeInPurchase struct {
	ID               int             `gorm:"primary_key" json:"id"`
	TradeInId        int             `gorm:"index;not null" json:"trade_in_id"`
	BuyerName        string          `gorm:"size:100" json:"buyer_name"`
	BuyerPhone       string          `gorm:"size:20" json:"buyer_phone"`
	Price            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	PaymentAccountId *int            `json:"payment_account_id"`
	Attachments      string          `gorm:"type:text" json:"attachments"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CreatedBy        string          `gorm:"size:100" json:"created_by"`
}

func (r *TradeInRecord) BeforeUpdate(tx *gorm.DB) error {
	// Allow only the sold flag to change after creation.
	allowed := map[string]bool{
		"SoldFlag":  true,
		"UpdatedAt": true,
	}
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !allowed[f.Name] {
			return errors.New("immutable record: only the sold flag may be updated on trade_in_records")
		}
	}
	return nil
}

func (r *TradeInRecord) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable record: trade_in_records cannot be deleted")
}

func (p *TradeInPurchase) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable record: trade_in_purchases cannot be updated")
}

func (p *TradeInPurchase) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable record: trade_in_purchases cannot be deleted")
}

// Trade owns second-hand acquisition and resale.
type Trade struct {
	db     *gorm.DB
	logger *logrus.Logger
	ledger *Ledger
}

func NewTrade(db *gorm.DB, logger *logrus.Logger, ledger *Ledger) *Trade {
	return &Trade{db: db, logger: logger, ledger: ledger}
}

type NewTradeIn struct {
	BranchId             int             `json:"branch_id" validate:"required"`
	DeviceName           string          `json:"device_name" validate:"required"`
	DeviceBrand          string          `json:"device_brand"`
	DeviceModel          string          `json:"device_model"`
	SerialNo             string          `json:"serial_no"`
	SellerName           string          `json:"seller_name"`
	SellerPhone          string          `json:"seller_phone"`
	SellerCountryCode    string          `json:"seller_country_code"`
	AcquisitionValue     decimal.Decimal `json:"acquisition_value"`
	AcquisitionAccountId *int            `json:"acquisition_account_id"`
	Attachments          string          `json:"attachments"`
}

func (input *NewTradeIn) validate(ctx context.Context, t *Trade) error {
	if err := validate.Struct(input); err != nil {
		return &ValidationError{Message: "invalid trade-in input", Fields: utils.ProcessValidationErrors(err)}
	}
	if input.AcquisitionValue.IsNegative() {
		return &ValidationError{Message: "acquisition value cannot be negative"}
	}
	if err := utils.ValidateResourceId[Branch](ctx, t.db, input.BranchId); err != nil {
		return &NotFoundError{Resource: "branch", Id: input.BranchId}
	}
	if input.AcquisitionAccountId != nil {
		if err := utils.ValidateResourceId[LedgerAccount](ctx, t.db, *input.AcquisitionAccountId); err != nil {
			return &NotFoundError{Resource: "account", Id: *input.AcquisitionAccountId}
		}
	}
	if input.SellerPhone != "" {
		countryCode := input.SellerCountryCode
		if countryCode == "" {
			countryCode = "MM"
		}
		if err := utils.ValidatePhoneNumber(input.SellerPhone, countryCode); err != nil {
			return &ValidationError{Message: "invalid seller phone number: " + err.Error()}
		}
	}
	return nil
}

// TradeIn records a second-hand acquisition. The record is created first
// and stands regardless of the funding debit: a failed debit (including
// InsufficientFunds) surfaces as the returned error next to the persisted
// record, the same way a sale outlives its payment credit.
func (t *Trade) TradeIn(ctx context.Context, input *NewTradeIn) (*TradeInRecord, error) {

	shopId := utils.GetShopId(ctx)
	if shopId == "" {
		return nil, errors.New("shop id is required")
	}

	if err := input.validate(ctx, t); err != nil {
		return nil, err
	}

	record := &TradeInRecord{
		ShopId:               shopId,
		BranchId:             input.BranchId,
		DeviceName:           input.DeviceName,
		DeviceBrand:          input.DeviceBrand,
		DeviceModel:          input.DeviceModel,
		SerialNo:             input.SerialNo,
		SellerName:           input.SellerName,
		SellerPhone:          input.SellerPhone,
		AcquisitionValue:     input.AcquisitionValue,
		AcquisitionAccountId: input.AcquisitionAccountId,
		Attachments:          input.Attachments,
		SoldFlag:             utils.NewFalse(),
		CreatedBy:            utils.GetUserName(ctx),
	}

	if err := t.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}

	if input.AcquisitionAccountId != nil && input.AcquisitionValue.IsPositive() {
		if _, err := t.ledger.Debit(ctx, *input.AcquisitionAccountId, input.AcquisitionValue, Reference{
			Type: "trade_in",
			Id:   record.ID,
			Note: "trade-in acquisition",
		}); err != nil {
			return record, err
		}
	}

	return record, nil
}

type NewResale struct {
	BuyerName        string          `json:"buyer_name"`
	BuyerPhone       string          `json:"buyer_phone"`
	BuyerCountryCode string          `json:"buyer_country_code"`
	Price            decimal.Decimal `json:"price"`
	PaymentAccountId *int            `json:"payment_account_id"`
	Attachments      string          `json:"attachments"`
}

// Resell appends a purchase sub-record to a trade-in and flips its sold
// flag. Fails with a validation error when price is not positive.
func (t *Trade) Resell(ctx context.Context, tradeInId int, input *NewResale) (*TradeInPurchase, error) {

	shopId := utils.GetShopId(ctx)
	if shopId == "" {
		return nil, errors.New("shop id is required")
	}

	if !input.Price.IsPositive() {
		return nil, &ValidationError{Message: "resale price must be positive"}
	}
	if input.PaymentAccountId != nil {
		if err := utils.ValidateResourceId[LedgerAccount](ctx, t.db, *input.PaymentAccountId); err != nil {
			return nil, &NotFoundError{Resource: "account", Id: *input.PaymentAccountId}
		}
	}
	if input.BuyerPhone != "" {
		countryCode := input.BuyerCountryCode
		if countryCode == "" {
			countryCode = "MM"
		}
		if err := utils.ValidatePhoneNumber(input.BuyerPhone, countryCode); err != nil {
			return nil, &ValidationError{Message: "invalid buyer phone number: " + err.Error()}
		}
	}

	record, err := utils.FetchModel[TradeInRecord](ctx, t.db, tradeInId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &NotFoundError{Resource: "trade-in", Id: tradeInId}
		}
		return nil, err
	}

	purchase := &TradeInPurchase{
		TradeInId:        record.ID,
		BuyerName:        input.BuyerName,
		BuyerPhone:       input.BuyerPhone,
		Price:            input.Price,
		PaymentAccountId: input.PaymentAccountId,
		Attachments:      input.Attachments,
		CreatedBy:        utils.GetUserName(ctx),
	}

	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(purchase).Error; err != nil {
			return err
		}
		if err := tx.Model(record).Update("sold_flag", true).Error; err != nil {
			return err
		}
		if input.PaymentAccountId != nil {
			if _, err := t.ledger.CreditTx(ctx, tx, *input.PaymentAccountId, input.Price, Reference{
				Type: "trade_in_purchase",
				Id:   purchase.ID,
				Note: "trade-in resale",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sold := true
	record.SoldFlag = &sold
	return purchase, nil
}

func (t *Trade) GetTradeIn(ctx context.Context, id int) (*TradeInRecord, error) {
	var record TradeInRecord
	err := t.db.WithContext(ctx).Preload("Purchases").First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "trade-in", Id: id}
		}
		return nil, err
	}
	return &record, nil
}
