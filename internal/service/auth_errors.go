package service

import (
	"errors"
	"fmt"
	"time"
)

// Auth flow specific errors used by handlers for stable error_type mapping.
// Mismatch and NotFound are deliberately folded into ErrInvalidCode so
// responses never reveal whether an email is registered.
var (
	ErrInvalidCode        = errors.New("invalid_verification_code")
	ErrCodeExpired        = errors.New("verification_code_expired")
	ErrTooManyAttempts    = errors.New("verification_attempts_exceeded")
	ErrEmailDelivery      = errors.New("email_delivery_failed")
	ErrStorageUnavailable = errors.New("storage_unavailable")
)

// ThrottledError сообщает, что лимит попыток исчерпан и когда можно повторить
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled: retry after %s", e.RetryAfter.Round(time.Second))
}

// storageErr wraps a backend failure into the retriable "unavailable" outcome.
func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
