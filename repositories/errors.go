package repositories

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyFinished is returned when a deployment is already READY or ERROR.
	ErrAlreadyFinished = errors.New("deployment already finished")
	// ErrPortRangeExhausted is returned when no NodePort is left to assign.
	ErrPortRangeExhausted = errors.New("no free port left in the NodePort range")
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
