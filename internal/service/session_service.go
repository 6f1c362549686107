package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/yourusername/portal-api/internal/domain/entity"
	"github.com/yourusername/portal-api/internal/domain/repository"
	apperrors "github.com/yourusername/portal-api/internal/pkg/errors"
)

const (
	// sessionTokenBytes gives 256 bits of entropy, URL-safe encoded.
	sessionTokenBytes = 32

	// sessionCacheTTL caps how long a validate result may be served from
	// Redis. Postgres stays the source of truth; the cache is best-effort.
	sessionCacheTTL = 15 * time.Minute
)

// SessionService manages session tokens: opaque random strings with a fixed
// lifetime from creation. Validation never extends expiry.
type SessionService struct {
	sessionRepo repository.SessionRepository
	cacheRepo   repository.CacheRepository // optional, nil disables caching
	lifetime    time.Duration
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	cacheRepo repository.CacheRepository,
	lifetime time.Duration,
) (*SessionService, error) {
	if sessionRepo == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if lifetime <= 0 {
		lifetime = 90 * 24 * time.Hour
	}

	return &SessionService{
		sessionRepo: sessionRepo,
		cacheRepo:   cacheRepo,
		lifetime:    lifetime,
	}, nil
}

// Create issues a new session token for the user and persists it.
func (s *SessionService) Create(ctx context.Context, userID uint, deviceInfo string) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := time.Now()
	session := &entity.Session{
		UserID:       userID,
		SessionToken: token,
		DeviceInfo:   deviceInfo,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.lifetime),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", storageErr(err)
	}

	s.cacheSet(ctx, token, userID, session.ExpiresAt)
	return token, nil
}

// Validate resolves a session token to its owner. Returns
// apperrors.ErrUnauthorized for unknown, expired or revoked tokens.
func (s *SessionService) Validate(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, apperrors.ErrUnauthorized
	}

	if userID, ok := s.cacheGet(ctx, token); ok {
		return userID, nil
	}

	session, err := s.sessionRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return 0, apperrors.ErrUnauthorized
		}
		return 0, storageErr(err)
	}
	if !session.IsValid(time.Now()) {
		return 0, apperrors.ErrUnauthorized
	}

	// The read path never writes the cache: a Revoke landing between the DB
	// read and a cache write here would be silently undone, and the revoked
	// token would keep validating from Redis. Only Create populates the cache;
	// Revoke's delete is final.
	return session.UserID, nil
}

// Revoke marks a session permanently unusable; idempotent.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessionRepo.Revoke(ctx, token); err != nil {
		return storageErr(err)
	}
	s.cacheDelete(ctx, token)
	return nil
}

// RevokeByID revokes one of the user's own sessions, addressed by the id
// shown in the session-management view. Sessions of other users are reported
// as not found rather than forbidden, so ids cannot be probed.
func (s *SessionService) RevokeByID(ctx context.Context, userID, sessionID uint) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		return storageErr(err)
	}
	if session.UserID != userID {
		return apperrors.ErrNotFound
	}

	return s.Revoke(ctx, session.SessionToken)
}

// ListActive returns the user's live sessions, newest first, for the
// session-management view.
func (s *SessionService) ListActive(ctx context.Context, userID uint) ([]entity.Session, error) {
	sessions, err := s.sessionRepo.GetActiveByUserID(ctx, userID, time.Now())
	if err != nil {
		return nil, storageErr(err)
	}
	return sessions, nil
}

// PurgeExpired deletes expired session rows. Periodic maintenance only;
// Validate already excludes expired sessions.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	count, err := s.sessionRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, storageErr(err)
	}
	return count, nil
}

// --- best-effort Redis cache for the hot Validate path ---
// Cache failures are logged and ignored (fail-open), so a Redis outage only
// costs a Postgres lookup.

func (s *SessionService) cacheGet(ctx context.Context, token string) (uint, bool) {
	if s.cacheRepo == nil {
		return 0, false
	}
	val, err := s.cacheRepo.Get(ctx, sessionCacheKey(token))
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[SessionService] cache get failed: %v", err)
		}
		return 0, false
	}
	userID, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(userID), true
}

func (s *SessionService) cacheSet(ctx context.Context, token string, userID uint, expiresAt time.Time) {
	if s.cacheRepo == nil {
		return
	}
	ttl := sessionCacheTTL
	if remaining := time.Until(expiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	if err := s.cacheRepo.Set(ctx, sessionCacheKey(token), strconv.FormatUint(uint64(userID), 10), ttl); err != nil {
		log.Printf("[SessionService] cache set failed: %v", err)
	}
}

func (s *SessionService) cacheDelete(ctx context.Context, token string) {
	if s.cacheRepo == nil {
		return
	}
	if err := s.cacheRepo.Delete(ctx, sessionCacheKey(token)); err != nil {
		log.Printf("[SessionService] cache delete failed: %v", err)
	}
}

func sessionCacheKey(token string) string {
	return "session:" + token
}

func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
