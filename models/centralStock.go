package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CentralStockDocument groups the catalog lines created by one supply
// intake. Lines are the source-of-truth for "remaining centrally".
type CentralStockDocument struct {
	ID               int                `gorm:"primary_key" json:"id"`
	ShopId           string             `gorm:"index;size:36;not null" json:"shop_id"`
	SupplierId       int                `gorm:"index" json:"supplier_id"`
	FundingAccountId int                `gorm:"not null" json:"funding_account_id"`
	TotalCost        decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"total_cost"`
	ReferenceNo      string             `gorm:"size:50" json:"reference_no"`
	Lines            []CentralStockLine `gorm:"foreignKey:DocumentId" json:"lines"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	CreatedBy        string             `gorm:"size:100" json:"created_by"`
}

type CentralStockLine struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ShopId           string          `gorm:"index;size:36;not null" json:"shop_id"`
	DocumentId       int             `gorm:"index;not null" json:"document_id"`
	LineIndex        int             `gorm:"not null" json:"line_index"`
	ProductNo        string          `gorm:"index;size:50;not null" json:"product_no"`
	ProductName      string          `gorm:"size:100;not null" json:"product_name"`
	Brand            string          `gorm:"size:100" json:"brand"`
	Model            string          `gorm:"size:100" json:"model"`
	QuantityOnHand   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_on_hand"`
	OriginalQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"original_quantity"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	UnitSellingPrice decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_selling_price"`
	Validity         string          `gorm:"size:100" json:"validity"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ShippedQuantity is derived, never stored.
func (l *CentralStockLine) ShippedQuantity() decimal.Decimal {
	return l.OriginalQuantity.Sub(l.QuantityOnHand)
}

// Key returns the canonical central reference for this line.
func (l *CentralStockLine) Key() ProductKey {
	return CentralRef(l.DocumentId, l.LineIndex)
}

// resolveCentralLine looks a catalog line up through any of the three
// product key shapes.
func resolveCentralLine(ctx context.Context, db *gorm.DB, key ProductKey) (*CentralStockLine, error) {
	var line CentralStockLine
	var err error
	switch key.Kind {
	case ProductKeyCentralRef:
		err = db.WithContext(ctx).
			Where("document_id = ? AND line_index = ?", key.DocId, key.Index).
			First(&line).Error
	case ProductKeyStandaloneId:
		err = db.WithContext(ctx).First(&line, "id = ?", key.Id).Error
	case ProductKeyProductNo:
		err = db.WithContext(ctx).Where("product_no = ?", key.ProductNo).First(&line).Error
	default:
		return nil, &ValidationError{Message: "empty product key"}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProductNotFoundError{ProductKey: key}
		}
		return nil, err
	}
	return &line, nil
}

func (inv *Inventory) GetCentralDocument(ctx context.Context, id int) (*CentralStockDocument, error) {
	var doc CentralStockDocument
	err := inv.db.WithContext(ctx).Preload("Lines").First(&doc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "central stock document", Id: id}
		}
		return nil, err
	}
	return &doc, nil
}

func (inv *Inventory) ListCentralLines(ctx context.Context) ([]*CentralStockLine, error) {
	var lines []*CentralStockLine
	err := inv.db.WithContext(ctx).Order("document_id, line_index").Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}
