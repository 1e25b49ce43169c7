package utils

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// FetchModel loads one row of T by primary key.
func FetchModel[T any](ctx context.Context, db *gorm.DB, id int) (*T, error) {
	var model T
	err := db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &model, nil
}

// FetchModelWhere loads one row of T by an arbitrary condition.
func FetchModelWhere[T any](ctx context.Context, db *gorm.DB, query string, args ...interface{}) (*T, error) {
	var model T
	err := db.WithContext(ctx).Where(query, args...).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &model, nil
}
