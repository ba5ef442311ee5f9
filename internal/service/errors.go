package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrValidation        = errors.New("validation")                       // 400
	ErrNotFound          = errors.New("not found")                        // 404
	ErrForbidden         = errors.New("forbidden")                        // 403
	ErrConflict          = errors.New("conflict")                         // 409
	ErrNotConnected      = errors.New("payment account not connected")    // 409
	ErrInvalidTransition = errors.New("invalid status transition")        // 409
	ErrMissingEmail      = errors.New("no email address for user")        // 400
	ErrUpstream          = errors.New("payment processor request failed") // 502
)

// notFound maps a missing row to ErrNotFound and passes other errors through.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}
