package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/yourusername/portal-api/internal/domain/entity"
	"github.com/yourusername/portal-api/internal/domain/repository"
	apperrors "github.com/yourusername/portal-api/internal/pkg/errors"
)

// VerifyOutcome is the result of checking a submitted login code.
type VerifyOutcome int

const (
	VerifySuccess VerifyOutcome = iota
	VerifyExpired
	VerifyAlreadyUsed
	VerifyTooManyAttempts
	VerifyMismatch
	VerifyNotFound
)

func (o VerifyOutcome) String() string {
	switch o {
	case VerifySuccess:
		return "success"
	case VerifyExpired:
		return "expired"
	case VerifyAlreadyUsed:
		return "already_used"
	case VerifyTooManyAttempts:
		return "too_many_attempts"
	case VerifyMismatch:
		return "mismatch"
	case VerifyNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// CodeService issues and checks one-time 6-digit login codes.
// Codes are stored hashed (SHA-256 over pepper:salt:code) and compared in
// constant time.
type CodeService struct {
	codeRepo    repository.VerificationCodeRepository
	codeTTL     time.Duration
	maxAttempts int
	codePepper  string
}

func NewCodeService(
	codeRepo repository.VerificationCodeRepository,
	codeTTL time.Duration,
	maxAttempts int,
	codePepper string,
) (*CodeService, error) {
	if codeRepo == nil {
		return nil, fmt.Errorf("verification code repository is required")
	}
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &CodeService{
		codeRepo:    codeRepo,
		codeTTL:     codeTTL,
		maxAttempts: maxAttempts,
		codePepper:  codePepper,
	}, nil
}

// TTL returns the configured code lifetime.
func (s *CodeService) TTL() time.Duration {
	return s.codeTTL
}

// Issue generates a fresh code for the email, persists its hash and returns
// the plaintext for out-of-band delivery. Prior unexpired codes for the same
// email are not touched; Verify only ever consults the latest row.
func (s *CodeService) Issue(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	code, err := generateLoginCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate login code: %w", err)
	}
	salt, err := generateCodeSalt()
	if err != nil {
		return "", fmt.Errorf("failed to generate code salt: %w", err)
	}

	now := time.Now()
	record := &entity.VerificationCode{
		Email:     email,
		CodeHash:  hashLoginCode(code, salt, s.codePepper),
		CodeSalt:  salt,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codeTTL),
	}
	if err := s.codeRepo.Create(ctx, record); err != nil {
		return "", storageErr(err)
	}

	return code, nil
}

// Verify checks a submitted code against the latest issued row for the email.
// Every non-success outcome is a normal return value; an error is only
// returned when the store itself fails.
func (s *CodeService) Verify(ctx context.Context, email, submitted string) (VerifyOutcome, error) {
	email = NormalizeEmail(email)

	record, err := s.codeRepo.GetLatestByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return VerifyNotFound, nil
		}
		return VerifyNotFound, storageErr(err)
	}

	if record.Used {
		return VerifyAlreadyUsed, nil
	}
	// The attempt cap is checked before comparing and does not itself consume
	// an attempt.
	if record.AttemptsExhausted(s.maxAttempts) {
		return VerifyTooManyAttempts, nil
	}
	if record.IsExpired(time.Now()) {
		return VerifyExpired, nil
	}

	expectedHash := hashLoginCode(submitted, record.CodeSalt, s.codePepper)
	if subtle.ConstantTimeCompare([]byte(expectedHash), []byte(record.CodeHash)) != 1 {
		if err := s.codeRepo.IncrementAttempts(ctx, record.ID); err != nil {
			return VerifyMismatch, storageErr(err)
		}
		return VerifyMismatch, nil
	}

	consumed, err := s.codeRepo.MarkUsed(ctx, record.ID)
	if err != nil {
		return VerifySuccess, storageErr(err)
	}
	if !consumed {
		// A concurrent verification won the race for this row.
		return VerifyAlreadyUsed, nil
	}
	return VerifySuccess, nil
}

// PurgeExpired removes expired code rows; a maintenance task, not a
// correctness requirement — Verify already rejects expired codes.
func (s *CodeService) PurgeExpired(ctx context.Context) (int64, error) {
	count, err := s.codeRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, storageErr(err)
	}
	return count, nil
}

// NormalizeEmail приводит email к каноничному виду для поиска и троттлинга
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateLoginCode returns a cryptographically random 6-digit code as a
// zero-padded string so leading zeros survive.
func generateLoginCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateCodeSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashLoginCode(code, salt, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + salt + ":" + code))
	return hex.EncodeToString(sum[:])
}
