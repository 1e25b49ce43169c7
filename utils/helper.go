package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/ttacon/libphonenumber"

	"bitbucket.org/mmdatafocus/shopstock_backend/config"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// GenerateProductNo builds a product number from a short uppercase prefix
// and the first segment of a fresh UUID.
func GenerateProductNo(prefix string) string {
	id := uuid.NewString()
	return fmt.Sprintf("%s-%s", strings.ToUpper(prefix), strings.ToUpper(id[:8]))
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

// AccountLock obtains a redis lock scoped to one resource id. The caller
// must release the returned lock once its critical section is done.
func AccountLock(ctx context.Context, logger *logrus.Logger, locker *redislock.Client, resourceId string, lockType string, moduleName string, functionName string) (*redislock.Lock, error) {
	if locker == nil {
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", resourceId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("%s:%s", lockType, resourceId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for resource", resourceId, err)
		return nil, errors.New("could not obtain lock for resource")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for resource", resourceId, err)
		return nil, err
	}

	return lock, nil
}
