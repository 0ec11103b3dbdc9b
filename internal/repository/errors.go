package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrEmailTaken            = errors.New("email already registered")
	ErrConditionFailed       = errors.New("conditional update matched no rows")
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)

func mapNotFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}
