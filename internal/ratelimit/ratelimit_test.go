package ratelimit

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter pins the clock so tests cannot straddle a window
// boundary on a slow machine.
func newTestLimiter(perSecond, perMinute int) *Limiter {
	l := New(perSecond, perMinute, slog.Default())
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	return l
}

func TestLimiter_SecondCeiling(t *testing.T) {
	l := newTestLimiter(3, 100)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow("bot_a", 0, 0))
	}
	assert.ErrorIs(t, l.Allow("bot_a", 0, 0), ErrRateLimited)
}

func TestLimiter_WindowRollover(t *testing.T) {
	l := newTestLimiter(1, 100)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Allow("bot_a", 0, 0))
	assert.ErrorIs(t, l.Allow("bot_a", 0, 0), ErrRateLimited)

	now = now.Add(time.Second)
	require.NoError(t, l.Allow("bot_a", 0, 0))
}

func TestLimiter_SlidingSecondWindow(t *testing.T) {
	l := newTestLimiter(5, 1000)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := base.Add(950 * time.Millisecond)
	l.now = func() time.Time { return now }

	// Five sends just before the wall-clock second boundary.
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow("bot_s", 0, 0))
	}

	// Crossing into the next wall-clock second does not reset the
	// window: the five sends are still inside the trailing second.
	now = base.Add(1050 * time.Millisecond)
	assert.ErrorIs(t, l.Allow("bot_s", 0, 0), ErrRateLimited)

	// Once a full second has passed since the burst, sends flow again.
	now = base.Add(1951 * time.Millisecond)
	require.NoError(t, l.Allow("bot_s", 0, 0))
}

func TestLimiter_SlidingMinuteWindow(t *testing.T) {
	l := newTestLimiter(100, 3)

	base := time.Date(2026, 8, 30, 12, 0, 59, 0, time.UTC)
	now := base
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow("bot_m", 0, 0))
	}

	// A new wall-clock minute does not clear the trailing window.
	now = base.Add(2 * time.Second)
	assert.ErrorIs(t, l.Allow("bot_m", 0, 0), ErrRateLimited)

	now = base.Add(time.Minute + time.Millisecond)
	require.NoError(t, l.Allow("bot_m", 0, 0))
}

func TestLimiter_MinuteCeiling(t *testing.T) {
	l := newTestLimiter(100, 2)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Allow("bot_a", 0, 0))
	now = now.Add(time.Second)
	require.NoError(t, l.Allow("bot_a", 0, 0))
	now = now.Add(time.Second)
	assert.ErrorIs(t, l.Allow("bot_a", 0, 0), ErrRateLimited)

	// A new minute clears the ceiling.
	now = now.Add(time.Minute)
	require.NoError(t, l.Allow("bot_a", 0, 0))
}

func TestLimiter_PerBotOverrides(t *testing.T) {
	l := newTestLimiter(1, 100)

	// Bot-specific ceiling of 5 beats the default of 1.
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow("bot_big", 5, 0))
	}
	assert.ErrorIs(t, l.Allow("bot_big", 5, 0), ErrRateLimited)
}

func TestLimiter_BotsIndependent(t *testing.T) {
	l := newTestLimiter(1, 100)

	require.NoError(t, l.Allow("bot_a", 0, 0))
	assert.ErrorIs(t, l.Allow("bot_a", 0, 0), ErrRateLimited)

	// bot_b is unaffected by bot_a's exhaustion.
	require.NoError(t, l.Allow("bot_b", 0, 0))
}

func TestLimiter_ConcurrentBurst(t *testing.T) {
	const ceiling = 10
	l := newTestLimiter(ceiling, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed, limited := 0, 0

	for i := 0; i < ceiling+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Allow("bot_burst", 0, 0)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				limited++
			} else {
				allowed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, ceiling, allowed)
	assert.Equal(t, 1, limited)
}

func TestLimiter_Prune(t *testing.T) {
	l := newTestLimiter(10, 100)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Allow("bot_old", 0, 0))
	now = now.Add(2 * time.Hour)
	require.NoError(t, l.Allow("bot_new", 0, 0))

	dropped := l.Prune(time.Hour)
	assert.Equal(t, 1, dropped)

	// Pruned bots start fresh.
	require.NoError(t, l.Allow("bot_old", 0, 0))
}

func TestLimiter_Forget(t *testing.T) {
	l := newTestLimiter(1, 100)

	require.NoError(t, l.Allow("bot_f", 0, 0))
	assert.ErrorIs(t, l.Allow("bot_f", 0, 0), ErrRateLimited)

	l.Forget("bot_f")
	require.NoError(t, l.Allow("bot_f", 0, 0))
}
