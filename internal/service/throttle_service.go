package service

import (
	"log"
	"sync"
	"time"

	"github.com/yourusername/portal-api/internal/pkg/iputil"
)

// ThrottleScope is the operation category a rate limit applies to. Limits are
// tracked independently per (scope, identifier) pair.
type ThrottleScope string

const (
	ScopeIssueCode  ThrottleScope = "issue-code"
	ScopeVerifyCode ThrottleScope = "verify-code"
)

// ThrottleProfile содержит настройки лимита для одного scope
type ThrottleProfile struct {
	// MaxAttempts — максимальное количество попыток за Window
	MaxAttempts int
	// Window — скользящее окно для подсчёта попыток
	Window time.Duration
	// Block — на сколько блокируется идентификатор при превышении лимита
	Block time.Duration
}

// DefaultThrottleProfiles возвращает профили лимитов по умолчанию
func DefaultThrottleProfiles() map[ThrottleScope]ThrottleProfile {
	return map[ThrottleScope]ThrottleProfile{
		ScopeIssueCode: {
			MaxAttempts: 5,
			Window:      60 * time.Minute,
			Block:       30 * time.Minute,
		},
		ScopeVerifyCode: {
			MaxAttempts: 10,
			Window:      60 * time.Minute,
			Block:       60 * time.Minute,
		},
	}
}

// ThrottleStats — текущая статистика лимитера для admin/debug endpoint
type ThrottleStats struct {
	TotalAttempts int `json:"total_attempts"`
	BlockedKeys   int `json:"blocked_keys"`
	UniqueKeys    int `json:"unique_keys"`
}

type throttleKey struct {
	scope      ThrottleScope
	identifier string
}

// ThrottleService is an in-process sliding-window limiter keyed by
// (scope, identifier) where the identifier is an email or a client IP.
// State is process-local and best-effort; it is not a distributed limiter.
// All exported methods are internally synchronized.
type ThrottleService struct {
	mu           sync.Mutex
	attempts     map[throttleKey][]time.Time
	blockedUntil map[throttleKey]time.Time
	profiles     map[ThrottleScope]ThrottleProfile
}

// NewThrottleService создает лимитер с заданными профилями.
// При nil используются профили по умолчанию.
func NewThrottleService(profiles map[ThrottleScope]ThrottleProfile) *ThrottleService {
	if len(profiles) == 0 {
		profiles = DefaultThrottleProfiles()
	}
	return &ThrottleService{
		attempts:     make(map[throttleKey][]time.Time),
		blockedUntil: make(map[throttleKey]time.Time),
		profiles:     profiles,
	}
}

// CheckAndRecord decides whether a new attempt is permitted for the key and,
// if so, records it. Returns retryAfter > 0 when the attempt is rejected.
//
// Private and loopback identifiers are always allowed and accumulate no state
// (development convenience, mirrors the behavior for local clients).
// "Not allowed" is a normal return value here, never an error.
func (t *ThrottleService) CheckAndRecord(scope ThrottleScope, identifier string, now time.Time) (allowed bool, retryAfter time.Duration) {
	if iputil.IsPrivateOrLoopback(identifier) {
		return true, 0
	}

	profile, ok := t.profiles[scope]
	if !ok {
		profile = DefaultThrottleProfiles()[ScopeIssueCode]
	}
	key := throttleKey{scope: scope, identifier: identifier}

	t.mu.Lock()
	defer t.mu.Unlock()

	if until, blocked := t.blockedUntil[key]; blocked {
		if now.Before(until) {
			return false, until.Sub(now)
		}
		delete(t.blockedUntil, key)
	}

	recent := t.pruneLocked(key, now.Add(-profile.Window))

	if len(recent) >= profile.MaxAttempts {
		t.blockedUntil[key] = now.Add(profile.Block)
		log.Printf("[Throttle] limit exceeded for scope=%s identifier=%s, blocked for %s", scope, identifier, profile.Block)
		return false, profile.Block
	}

	t.attempts[key] = append(recent, now)
	return true, 0
}

// Reset clears all throttle state for the identifier across every scope.
// Called after a fully successful authentication so a legitimate user who
// mistyped earlier is not penalized.
func (t *ThrottleService) Reset(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for scope := range t.profiles {
		key := throttleKey{scope: scope, identifier: identifier}
		delete(t.attempts, key)
		delete(t.blockedUntil, key)
	}
}

// Stats возвращает текущую статистику лимитера
func (t *ThrottleService) Stats() ThrottleStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := ThrottleStats{UniqueKeys: len(t.attempts)}
	for _, timestamps := range t.attempts {
		stats.TotalAttempts += len(timestamps)
	}
	now := time.Now()
	for _, until := range t.blockedUntil {
		if now.Before(until) {
			stats.BlockedKeys++
		}
	}
	return stats
}

// pruneLocked drops timestamps older than the window start. Caller holds mu.
func (t *ThrottleService) pruneLocked(key throttleKey, windowStart time.Time) []time.Time {
	recent := t.attempts[key][:0]
	for _, ts := range t.attempts[key] {
		if !ts.Before(windowStart) {
			recent = append(recent, ts)
		}
	}
	if len(recent) == 0 {
		delete(t.attempts, key)
		return nil
	}
	t.attempts[key] = recent
	return recent
}
