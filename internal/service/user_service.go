package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/portal-api/internal/domain/entity"
	"github.com/yourusername/portal-api/internal/domain/repository"
	apperrors "github.com/yourusername/portal-api/internal/pkg/errors"
)

// UserService — справочник пользователей. Вход и регистрация объединены:
// учетная запись создается при первом успешном подтверждении кода.
type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) (*UserService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	return &UserService{userRepo: userRepo}, nil
}

// FindOrCreateByEmail returns the user for the normalized email, creating the
// account on first login.
func (s *UserService) FindOrCreateByEmail(ctx context.Context, email string) (*entity.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	user = &entity.User{Email: email, IsActive: true}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// Two first logins can race on the unique email index; the loser
		// re-reads the row the winner inserted.
		if existing, getErr := s.userRepo.GetByEmail(ctx, email); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return user, nil
}

// GetByID возвращает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id uint) (*entity.User, error) {
	return s.userRepo.GetByID(ctx, id)
}
