package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/portal-api/internal/domain/entity"
	apperrors "github.com/yourusername/portal-api/internal/pkg/errors"
)

// MockSessionRepository реализует repository.SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *entity.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*entity.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Session), args.Error(1)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id uint) (*entity.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Session), args.Error(1)
}

func (m *MockSessionRepository) Revoke(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockSessionRepository) GetActiveByUserID(ctx context.Context, userID uint, now time.Time) ([]entity.Session, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Session), args.Error(1)
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func newTestSessionService(t *testing.T, repo *MockSessionRepository) *SessionService {
	t.Helper()
	svc, err := NewSessionService(repo, nil, 90*24*time.Hour)
	require.NoError(t, err)
	return svc
}

func TestSessionService_Create(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := newTestSessionService(t, repo)

	var stored *entity.Session
	repo.On("Create", mock.Anything, mock.AnythingOfType("*entity.Session")).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*entity.Session)
		}).
		Return(nil)

	token, err := svc.Create(context.Background(), 42, `{"device":"test"}`)
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, token, stored.SessionToken)
	assert.Equal(t, uint(42), stored.UserID)
	assert.GreaterOrEqual(t, len(token), 43, "32 random bytes base64url-encoded")
	assert.WithinDuration(t, stored.CreatedAt.Add(90*24*time.Hour), stored.ExpiresAt, time.Second,
		"lifetime is fixed at creation")
}

func TestSessionService_TokensAreUnique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		token, err := generateSessionToken()
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup, "token %q generated twice", token)
		seen[token] = struct{}{}
	}
}

func TestSessionService_Validate(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := newTestSessionService(t, repo)
	now := time.Now()

	valid := &entity.Session{UserID: 7, SessionToken: "good", ExpiresAt: now.Add(time.Hour)}
	expired := &entity.Session{UserID: 7, SessionToken: "stale", ExpiresAt: now.Add(-time.Hour)}
	revokedAt := now.Add(-time.Minute)
	revoked := &entity.Session{UserID: 7, SessionToken: "dead", ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}

	repo.On("GetByToken", mock.Anything, "good").Return(valid, nil)
	repo.On("GetByToken", mock.Anything, "stale").Return(expired, nil)
	repo.On("GetByToken", mock.Anything, "dead").Return(revoked, nil)
	repo.On("GetByToken", mock.Anything, "unknown").Return(nil, apperrors.ErrNotFound)

	userID, err := svc.Validate(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, uint(7), userID)

	_, err = svc.Validate(context.Background(), "stale")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Validate(context.Background(), "dead")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Validate(context.Background(), "unknown")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Validate(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSessionService_Validate_StorageFailure(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := newTestSessionService(t, repo)

	repo.On("GetByToken", mock.Anything, "any").Return(nil, assert.AnError)

	_, err := svc.Validate(context.Background(), "any")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestSessionService_Revoke_Idempotent(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := newTestSessionService(t, repo)

	repo.On("Revoke", mock.Anything, "tok").Return(nil).Twice()

	require.NoError(t, svc.Revoke(context.Background(), "tok"))
	require.NoError(t, svc.Revoke(context.Background(), "tok"))
	require.NoError(t, svc.Revoke(context.Background(), ""), "empty token is a no-op")
	repo.AssertExpectations(t)
}

func TestSessionService_RevokeByID(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := newTestSessionService(t, repo)

	repo.On("GetByID", mock.Anything, uint(3)).
		Return(&entity.Session{ID: 3, UserID: 5, SessionToken: "tok-3"}, nil)
	repo.On("Revoke", mock.Anything, "tok-3").Return(nil).Once()

	require.NoError(t, svc.RevokeByID(context.Background(), 5, 3))
	repo.AssertExpectations(t)
}

func TestSessionService_RevokeByID_ForeignSessionLooksUnknown(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := newTestSessionService(t, repo)

	repo.On("GetByID", mock.Anything, uint(3)).
		Return(&entity.Session{ID: 3, UserID: 8, SessionToken: "tok-3"}, nil)
	repo.On("GetByID", mock.Anything, uint(99)).Return(nil, apperrors.ErrNotFound)

	// Another user's session and a nonexistent one get the same answer
	assert.ErrorIs(t, svc.RevokeByID(context.Background(), 5, 3), apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.RevokeByID(context.Background(), 5, 99), apperrors.ErrNotFound)
	repo.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
}

// stubCache — простейший кеш в памяти для проверки взаимодействия с Redis
type stubCache struct {
	values map[string]string
}

func newStubCache() *stubCache {
	return &stubCache{values: make(map[string]string)}
}

func (c *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.values[key] = value.(string)
	return nil
}

func (c *stubCache) Get(ctx context.Context, key string) (string, error) {
	val, ok := c.values[key]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return val, nil
}

func (c *stubCache) Delete(ctx context.Context, key string) error {
	delete(c.values, key)
	return nil
}

func TestSessionService_RevokeDuringValidateStaysRevoked(t *testing.T) {
	repo := new(MockSessionRepository)
	cache := newStubCache()
	svc, err := NewSessionService(repo, cache, 90*24*time.Hour)
	require.NoError(t, err)

	now := time.Now()
	live := &entity.Session{UserID: 7, SessionToken: "tok", ExpiresAt: now.Add(time.Hour)}
	revokedAt := now
	dead := &entity.Session{UserID: 7, SessionToken: "tok", ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}

	// A revoke lands after Validate's DB read returned a still-live snapshot.
	// Validate must not write that snapshot back to the cache, or the revoked
	// token would keep validating from Redis.
	repo.On("Revoke", mock.Anything, "tok").Return(nil).Once()
	repo.On("GetByToken", mock.Anything, "tok").
		Run(func(args mock.Arguments) {
			require.NoError(t, svc.Revoke(context.Background(), "tok"))
		}).
		Return(live, nil).Once()
	repo.On("GetByToken", mock.Anything, "tok").Return(dead, nil)

	userID, err := svc.Validate(context.Background(), "tok")
	require.NoError(t, err, "the read itself predates the revoke")
	assert.Equal(t, uint(7), userID)
	assert.Empty(t, cache.values, "validate never repopulates the cache")

	_, err = svc.Validate(context.Background(), "tok")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSessionService_CreatePopulatesCacheRevokeClearsIt(t *testing.T) {
	repo := new(MockSessionRepository)
	cache := newStubCache()
	svc, err := NewSessionService(repo, cache, 90*24*time.Hour)
	require.NoError(t, err)

	repo.On("Create", mock.Anything, mock.AnythingOfType("*entity.Session")).Return(nil)
	repo.On("Revoke", mock.Anything, mock.AnythingOfType("string")).Return(nil)

	token, err := svc.Create(context.Background(), 7, "{}")
	require.NoError(t, err)

	// Cache hit: no GetByToken expectation is set, so a repo read would fail
	userID, err := svc.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), userID)

	require.NoError(t, svc.Revoke(context.Background(), token))
	assert.Empty(t, cache.values)
}

func TestSessionService_ListActive(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := newTestSessionService(t, repo)
	now := time.Now()

	newest := entity.Session{ID: 2, UserID: 5, CreatedAt: now}
	oldest := entity.Session{ID: 1, UserID: 5, CreatedAt: now.Add(-time.Hour)}
	repo.On("GetActiveByUserID", mock.Anything, uint(5), mock.AnythingOfType("time.Time")).
		Return([]entity.Session{newest, oldest}, nil)

	sessions, err := svc.ListActive(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, uint(2), sessions[0].ID, "newest first")
}

func TestSessionService_PurgeExpired(t *testing.T) {
	repo := new(MockSessionRepository)
	svc := newTestSessionService(t, repo)

	repo.On("DeleteExpired", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(12), nil)

	count, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
}
