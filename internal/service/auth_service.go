package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/portal-api/internal/domain/entity"
	apperrors "github.com/yourusername/portal-api/internal/pkg/errors"
)

// Collaborator capabilities, one interface per capability so each real
// implementation can be swapped per environment (real vs. test).

// CodeStore issues and checks one-time login codes.
type CodeStore interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, submitted string) (VerifyOutcome, error)
	TTL() time.Duration
}

// SessionStore issues session tokens.
type SessionStore interface {
	Create(ctx context.Context, userID uint, deviceInfo string) (string, error)
}

// UserDirectory resolves a normalized email to a user, creating the account
// on first login.
type UserDirectory interface {
	FindOrCreateByEmail(ctx context.Context, email string) (*entity.User, error)
}

// Limiter guards auth operations against abuse.
type Limiter interface {
	CheckAndRecord(scope ThrottleScope, identifier string, now time.Time) (allowed bool, retryAfter time.Duration)
	Reset(identifier string)
}

// InitiateInput — запрос на отправку кода входа
type InitiateInput struct {
	Email    string
	ClientIP string
}

// VerifyInput — запрос на подтверждение кода входа
type VerifyInput struct {
	Email          string
	Code           string
	ClientIP       string
	DeviceInfo     string
	RememberDevice bool
}

// AuthResult — успешный результат аутентификации
type AuthResult struct {
	UserID       uint
	SessionToken string
}

// AuthService orchestrates passwordless authentication: throttle checks, code
// issuance and verification, user lookup-or-create and session creation.
// It holds all the business rules; stores and collaborators stay mechanical.
type AuthService struct {
	throttle Limiter
	codes    CodeStore
	sessions SessionStore
	users    UserDirectory
	email    EmailService
}

func NewAuthService(
	throttle Limiter,
	codes CodeStore,
	sessions SessionStore,
	users UserDirectory,
	email EmailService,
) (*AuthService, error) {
	if throttle == nil {
		return nil, fmt.Errorf("throttle is required")
	}
	if codes == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if email == nil {
		return nil, fmt.Errorf("email service is required")
	}

	return &AuthService{
		throttle: throttle,
		codes:    codes,
		sessions: sessions,
		users:    users,
		email:    email,
	}, nil
}

// InitiateAuth issues a login code for the email and hands it to the email
// collaborator. The code value is never part of the response. A delivery
// failure is reported to the caller but the issued code stays valid — the
// user may simply request a resend.
func (s *AuthService) InitiateAuth(ctx context.Context, input InitiateInput) error {
	email := NormalizeEmail(input.Email)
	if email == "" {
		return fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	if err := s.checkThrottle(ScopeIssueCode, email, input.ClientIP); err != nil {
		return err
	}

	code, err := s.codes.Issue(ctx, email)
	if err != nil {
		return err
	}

	expiresInMinutes := int(s.codes.TTL().Minutes())
	idempotencyKey := fmt.Sprintf("login-code:%s", uuid.NewString())
	if err := s.email.SendLoginCode(ctx, email, code, expiresInMinutes, idempotencyKey); err != nil {
		log.Printf("[AuthService] failed to send login code to %s: %v", email, err)
		return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}

	return nil
}

// VerifyCode checks a submitted code and, on success, resolves the user and
// issues a session token. Successful auth clears throttle history for both
// the email and the client IP across all scopes.
func (s *AuthService) VerifyCode(ctx context.Context, input VerifyInput) (*AuthResult, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Code == "" {
		return nil, fmt.Errorf("%w: email and code are required", apperrors.ErrValidation)
	}

	if err := s.checkThrottle(ScopeVerifyCode, email, input.ClientIP); err != nil {
		return nil, err
	}

	outcome, err := s.codes.Verify(ctx, email, input.Code)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case VerifySuccess:
	case VerifyExpired:
		return nil, ErrCodeExpired
	case VerifyTooManyAttempts:
		return nil, ErrTooManyAttempts
	default:
		// Mismatch, NotFound and AlreadyUsed share one answer so responses
		// never reveal whether the email is registered.
		return nil, ErrInvalidCode
	}

	user, err := s.users.FindOrCreateByEmail(ctx, email)
	if err != nil {
		return nil, storageErr(err)
	}

	token, err := s.sessions.Create(ctx, user.ID, buildDeviceInfo(input))
	if err != nil {
		return nil, err
	}

	s.throttle.Reset(email)
	if input.ClientIP != "" {
		s.throttle.Reset(input.ClientIP)
	}

	return &AuthResult{UserID: user.ID, SessionToken: token}, nil
}

// checkThrottle consults the limiter for both the email and the client IP.
// Both must pass; the caller sees the larger retry-after of the two.
func (s *AuthService) checkThrottle(scope ThrottleScope, email, clientIP string) error {
	now := time.Now()

	allowedEmail, retryEmail := s.throttle.CheckAndRecord(scope, email, now)
	allowedIP, retryIP := true, time.Duration(0)
	if clientIP != "" {
		allowedIP, retryIP = s.throttle.CheckAndRecord(scope, clientIP, now)
	}

	if allowedEmail && allowedIP {
		return nil
	}

	retryAfter := retryEmail
	if retryIP > retryAfter {
		retryAfter = retryIP
	}
	return &ThrottledError{RetryAfter: retryAfter}
}

// buildDeviceInfo serializes the device metadata stored alongside a session.
// The remember flag is informational only; it never changes session lifetime.
func buildDeviceInfo(input VerifyInput) string {
	info := map[string]interface{}{
		"device": input.DeviceInfo,
		"ip":     input.ClientIP,
	}
	if input.DeviceInfo == "" {
		info["device"] = "device-" + uuid.NewString()
	}
	if input.RememberDevice {
		info["remember"] = true
	}
	data, err := json.Marshal(info)
	if err != nil {
		return ""
	}
	return string(data)
}
