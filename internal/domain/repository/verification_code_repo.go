package repository

import (
	"context"
	"time"

	"github.com/yourusername/portal-api/internal/domain/entity"
)

// VerificationCodeRepository persists issued login codes and their attempt state.
type VerificationCodeRepository interface {
	Create(ctx context.Context, code *entity.VerificationCode) error

	// GetLatestByEmail returns the most recently issued code row for the email,
	// used or not. Issuing a new code supersedes older rows, so at most one row
	// per email is ever usable and verification only consults the latest one.
	// Returning the row even when consumed lets the caller distinguish an
	// already-used code from an unknown one.
	GetLatestByEmail(ctx context.Context, email string) (*entity.VerificationCode, error)

	// IncrementAttempts atomically bumps the failed-attempt counter.
	IncrementAttempts(ctx context.Context, id uint) error

	// MarkUsed marks the code consumed. Only rows not yet marked are affected,
	// so two concurrent verifications cannot both win; the second caller gets
	// affected=false.
	MarkUsed(ctx context.Context, id uint) (affected bool, err error)

	// DeleteExpired removes rows whose expiry is before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
