package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/shopstock_backend/utils"
)

type Branch struct {
	ID          int       `gorm:"primary_key" json:"id"`
	ShopId      string    `gorm:"index;size:36;not null" json:"shop_id"`
	Name        string    `gorm:"index;size:100;not null" json:"name"`
	Address     string    `gorm:"size:255" json:"address"`
	PhoneNumber string    `gorm:"size:20" json:"phone_number"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBranch struct {
	Name        string `json:"name" validate:"required"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
	CountryCode string `json:"country_code"`
}

func (input *NewBranch) validate(ctx context.Context, inv *Inventory, id int) error {
	if err := validate.Struct(input); err != nil {
		return &ValidationError{Message: "invalid branch input", Fields: utils.ProcessValidationErrors(err)}
	}
	if err := utils.ValidateUnique[Branch](ctx, inv.db, "name", input.Name, id); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	if input.PhoneNumber != "" {
		countryCode := input.CountryCode
		if countryCode == "" {
			countryCode = "MM"
		}
		if err := utils.ValidatePhoneNumber(input.PhoneNumber, countryCode); err != nil {
			return &ValidationError{Message: "invalid phone number: " + err.Error()}
		}
	}
	return nil
}

func (inv *Inventory) CreateBranch(ctx context.Context, input *NewBranch) (*Branch, error) {

	shopId := utils.GetShopId(ctx)
	if shopId == "" {
		return nil, errors.New("shop id is required")
	}

	if err := input.validate(ctx, inv, 0); err != nil {
		return nil, err
	}

	branch := Branch{
		ShopId:      shopId,
		Name:        input.Name,
		Address:     input.Address,
		PhoneNumber: input.PhoneNumber,
		IsActive:    utils.NewTrue(),
	}

	err := inv.db.WithContext(ctx).Create(&branch).Error
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (inv *Inventory) GetBranch(ctx context.Context, id int) (*Branch, error) {
	branch, err := utils.FetchModel[Branch](ctx, inv.db, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &NotFoundError{Resource: "branch", Id: id}
		}
		return nil, err
	}
	return branch, nil
}

func (inv *Inventory) ListBranches(ctx context.Context) ([]*Branch, error) {
	var branches []*Branch
	err := inv.db.WithContext(ctx).Order("name").Find(&branches).Error
	if err != nil {
		return nil, err
	}
	return branches, nil
}

func (inv *Inventory) ToggleBranchActive(ctx context.Context, id int, isActive bool) (*Branch, error) {
	branch, err := inv.GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	branch.IsActive = &isActive
	err = inv.db.WithContext(ctx).Model(branch).Update("is_active", isActive).Error
	if err != nil {
		return nil, err
	}
	return branch, nil
}
