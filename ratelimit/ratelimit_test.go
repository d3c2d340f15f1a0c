package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRequest_WithinQuota(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(0, WithMaxAttempts(3), WithWindow(time.Second), WithBlockDuration(2*time.Second),
		WithClock(func() time.Time { return clock }))
	defer l.Close()

	r1 := l.AllowRequest("user-1")
	assert.True(t, r1.Allowed)
	assert.Equal(t, 2, r1.Remaining)

	r2 := l.AllowRequest("user-1")
	assert.True(t, r2.Allowed)
	assert.Equal(t, 1, r2.Remaining)

	r3 := l.AllowRequest("user-1")
	assert.True(t, r3.Allowed)
	assert.Equal(t, 0, r3.Remaining)

	r4 := l.AllowRequest("user-1")
	assert.False(t, r4.Allowed)
	assert.InDelta(t, 2*time.Second, r4.RetryAfter, float64(time.Millisecond))
}

func TestAllowRequest_ResetClearsRecord(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(0, WithMaxAttempts(1), WithWindow(time.Second), WithBlockDuration(time.Second),
		WithClock(func() time.Time { return clock }))
	defer l.Close()

	require := assert.New(t)
	require.True(l.AllowRequest("user-1").Allowed)
	require.False(l.AllowRequest("user-1").Allowed)

	l.Reset("user-1")
	result := l.AllowRequest("user-1")
	require.True(result.Allowed)
	require.Equal(0, result.Remaining)
}

func TestAllowRequest_WindowSlidesAttemptsExpire(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(0, WithMaxAttempts(1), WithWindow(time.Second), WithBlockDuration(time.Second),
		WithClock(func() time.Time { return clock }))
	defer l.Close()

	assert.True(t, l.AllowRequest("user-1").Allowed)
	clock = clock.Add(2 * time.Second) // past window, but blockedUntil was never set (stayed under max)
	assert.True(t, l.AllowRequest("user-1").Allowed)
}

func TestAllowRequest_DifferentIdentifiersAreIndependent(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(0, WithMaxAttempts(1), WithWindow(time.Second), WithBlockDuration(time.Second),
		WithClock(func() time.Time { return clock }))
	defer l.Close()

	assert.True(t, l.AllowRequest("user-1").Allowed)
	assert.False(t, l.AllowRequest("user-1").Allowed)
	assert.True(t, l.AllowRequest("user-2").Allowed)
}

func TestCleanup_RemovesExpiredEmptyRecords(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(0, WithMaxAttempts(1), WithWindow(time.Millisecond), WithBlockDuration(time.Millisecond),
		WithClock(func() time.Time { return clock }))
	defer l.Close()

	l.AllowRequest("user-1")
	l.AllowRequest("user-1") // triggers block
	clock = clock.Add(time.Second)
	l.cleanup()

	l.mu.Lock()
	_, exists := l.records[key("user-1")]
	l.mu.Unlock()
	assert.False(t, exists)
}
