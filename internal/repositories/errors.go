package repositories

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate reports a unique constraint violation, e.g. a second in-progress attempt.
	ErrDuplicate = errors.New("duplicate record")
	// ErrVersionConflict reports a failed compare-and-swap on a versioned row.
	ErrVersionConflict = errors.New("version conflict")
)

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey)
}
