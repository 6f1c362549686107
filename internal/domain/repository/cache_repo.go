package repository

import (
	"context"
	"time"
)

// CacheRepository интерфейс для работы с кешем (Redis)
type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
