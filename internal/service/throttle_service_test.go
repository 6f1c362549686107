package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfiles() map[ThrottleScope]ThrottleProfile {
	return DefaultThrottleProfiles()
}

func TestThrottleService_AllowsUpToLimitThenBlocks(t *testing.T) {
	throttle := NewThrottleService(testProfiles())
	now := time.Now()
	identifier := "user@example.com"

	// First maxAttempts calls pass
	for i := 0; i < 5; i++ {
		allowed, retryAfter := throttle.CheckAndRecord(ScopeIssueCode, identifier, now)
		require.True(t, allowed, "attempt %d should be allowed", i+1)
		assert.Zero(t, retryAfter)
	}

	// Next call trips the block
	allowed, retryAfter := throttle.CheckAndRecord(ScopeIssueCode, identifier, now)
	assert.False(t, allowed)
	assert.Equal(t, 30*time.Minute, retryAfter)

	// And stays blocked within blockMinutes
	allowed, retryAfter = throttle.CheckAndRecord(ScopeIssueCode, identifier, now.Add(10*time.Minute))
	assert.False(t, allowed)
	assert.Equal(t, 20*time.Minute, retryAfter)
}

func TestThrottleService_BlockExpires(t *testing.T) {
	throttle := NewThrottleService(testProfiles())
	now := time.Now()
	identifier := "user@example.com"

	for i := 0; i < 6; i++ {
		throttle.CheckAndRecord(ScopeIssueCode, identifier, now)
	}

	// After the block and the window pass, attempts are permitted again
	later := now.Add(61 * time.Minute)
	allowed, _ := throttle.CheckAndRecord(ScopeIssueCode, identifier, later)
	assert.True(t, allowed)
}

func TestThrottleService_SlidingWindowPrunesOldAttempts(t *testing.T) {
	throttle := NewThrottleService(testProfiles())
	now := time.Now()
	identifier := "user@example.com"

	for i := 0; i < 5; i++ {
		allowed, _ := throttle.CheckAndRecord(ScopeIssueCode, identifier, now)
		require.True(t, allowed)
	}

	// Old attempts fall out of the window, so a later attempt passes without
	// ever having been blocked.
	allowed, _ := throttle.CheckAndRecord(ScopeIssueCode, identifier, now.Add(61*time.Minute))
	assert.True(t, allowed)
}

func TestThrottleService_ScopesAreIndependent(t *testing.T) {
	throttle := NewThrottleService(testProfiles())
	now := time.Now()
	identifier := "user@example.com"

	for i := 0; i < 6; i++ {
		throttle.CheckAndRecord(ScopeIssueCode, identifier, now)
	}

	// issue-code is blocked, verify-code is not
	allowed, _ := throttle.CheckAndRecord(ScopeIssueCode, identifier, now)
	assert.False(t, allowed)
	allowed, _ = throttle.CheckAndRecord(ScopeVerifyCode, identifier, now)
	assert.True(t, allowed)
}

func TestThrottleService_ResetClearsBlockImmediately(t *testing.T) {
	throttle := NewThrottleService(testProfiles())
	now := time.Now()
	identifier := "user@example.com"

	for i := 0; i < 6; i++ {
		throttle.CheckAndRecord(ScopeVerifyCode, identifier, now)
	}
	for i := 0; i < 11; i++ {
		throttle.CheckAndRecord(ScopeVerifyCode, identifier, now)
	}
	allowed, _ := throttle.CheckAndRecord(ScopeVerifyCode, identifier, now)
	require.False(t, allowed)

	throttle.Reset(identifier)

	allowed, _ = throttle.CheckAndRecord(ScopeVerifyCode, identifier, now)
	assert.True(t, allowed)
	allowed, _ = throttle.CheckAndRecord(ScopeIssueCode, identifier, now)
	assert.True(t, allowed, "reset clears every scope for the identifier")
}

func TestThrottleService_PrivateAndLoopbackExempt(t *testing.T) {
	throttle := NewThrottleService(testProfiles())
	now := time.Now()

	for _, ip := range []string{"127.0.0.1", "::1", "192.168.1.50", "10.0.0.7"} {
		for i := 0; i < 100; i++ {
			allowed, retryAfter := throttle.CheckAndRecord(ScopeIssueCode, ip, now)
			require.True(t, allowed, "ip %s must never be throttled", ip)
			require.Zero(t, retryAfter)
		}
	}

	// Exempt identifiers accumulate no state at all
	stats := throttle.Stats()
	assert.Zero(t, stats.TotalAttempts)
	assert.Zero(t, stats.UniqueKeys)
}

func TestThrottleService_ConcurrentCallersNeverOvershoot(t *testing.T) {
	throttle := NewThrottleService(testProfiles())
	now := time.Now()
	identifier := "203.0.113.7"

	const callers = 50
	var wg sync.WaitGroup
	allowedCount := make(chan bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _ := throttle.CheckAndRecord(ScopeIssueCode, identifier, now)
			allowedCount <- allowed
		}()
	}
	wg.Wait()
	close(allowedCount)

	allowed := 0
	for ok := range allowedCount {
		if ok {
			allowed++
		}
	}
	// Exactly maxAttempts callers win the race, never more
	assert.Equal(t, 5, allowed)
}

func TestThrottleService_Stats(t *testing.T) {
	throttle := NewThrottleService(testProfiles())
	now := time.Now()

	throttle.CheckAndRecord(ScopeIssueCode, "a@example.com", now)
	throttle.CheckAndRecord(ScopeIssueCode, "b@example.com", now)
	throttle.CheckAndRecord(ScopeVerifyCode, "a@example.com", now)

	stats := throttle.Stats()
	assert.Equal(t, 3, stats.TotalAttempts)
	assert.Equal(t, 3, stats.UniqueKeys)
	assert.Zero(t, stats.BlockedKeys)
}
