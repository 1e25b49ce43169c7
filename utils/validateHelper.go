package utils

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ValidateResourceId checks that one row of T exists with the given id.
func ValidateResourceId[T any](ctx context.Context, db *gorm.DB, id int) error {
	var count int64
	var model T
	err := db.WithContext(ctx).Model(&model).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// ValidateUnique fails when another row of T already carries the same value
// in the given column. excludeId skips the row being updated (0 for create).
func ValidateUnique[T any](ctx context.Context, db *gorm.DB, column string, value interface{}, excludeId int) error {
	var count int64
	var model T
	dbCtx := db.WithContext(ctx).Model(&model).Where(fmt.Sprintf("%s = ?", column), value)
	if excludeId > 0 {
		dbCtx = dbCtx.Where("id <> ?", excludeId)
	}
	if err := dbCtx.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New(column + " already exists")
	}
	return nil
}

// ResourceCountWhere counts rows of T matching an arbitrary condition.
func ResourceCountWhere[T any](ctx context.Context, db *gorm.DB, query string, args ...interface{}) (int64, error) {
	var count int64
	var model T
	err := db.WithContext(ctx).Model(&model).Where(query, args...).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
