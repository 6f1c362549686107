package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/portal-api/internal/domain/entity"
	apperrors "github.com/yourusername/portal-api/internal/pkg/errors"
)

// VerificationCodeRepo реализует repository.VerificationCodeRepository
type VerificationCodeRepo struct {
	db *gorm.DB
}

func NewVerificationCodeRepo(db *gorm.DB) *VerificationCodeRepo {
	return &VerificationCodeRepo{db: db}
}

func (r *VerificationCodeRepo) Create(ctx context.Context, code *entity.VerificationCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *VerificationCodeRepo) GetLatestByEmail(ctx context.Context, email string) (*entity.VerificationCode, error) {
	var code entity.VerificationCode
	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest verification code: %w", err)
	}
	return &code, nil
}

func (r *VerificationCodeRepo) IncrementAttempts(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&entity.VerificationCode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
}

// MarkUsed consumes the code. The used=false guard makes the transition
// atomic: of two concurrent verifications only one observes affected=true.
func (r *VerificationCodeRepo) MarkUsed(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.VerificationCode{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *VerificationCodeRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&entity.VerificationCode{})
	return res.RowsAffected, res.Error
}
