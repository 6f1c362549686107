package repository

import (
	"context"
	"time"

	"github.com/yourusername/portal-api/internal/domain/entity"
)

// SessionRepository интерфейс для работы с сессиями
type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error

	GetByToken(ctx context.Context, token string) (*entity.Session, error)

	GetByID(ctx context.Context, id uint) (*entity.Session, error)

	// Revoke marks a session permanently unusable. Revoking an unknown or
	// already revoked token is not an error.
	Revoke(ctx context.Context, token string) error

	// GetActiveByUserID returns unexpired, unrevoked sessions, newest first.
	GetActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]entity.Session, error)

	// DeleteExpired removes rows whose expiry is before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
