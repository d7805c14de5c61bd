// ABOUTME: Per-bot send throttling over sliding 1-second and 60-second windows
// ABOUTME: In-memory arena keyed by bot id with per-entry locking and idle pruning

package ratelimit

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRateLimited is returned when either window ceiling is exceeded.
// The caller must not enqueue the message.
var ErrRateLimited = errors.New("rate limited")

// entry holds one bot's send timestamps, oldest first. Sends older
// than the minute window are pruned on every call, so the slice never
// grows past the per-minute ceiling. The entry mutex serializes
// concurrent senders for the same bot without blocking other bots.
type entry struct {
	mu       sync.Mutex
	sends    []time.Time
	lastSeen time.Time
}

// Limiter throttles sends per bot. Ceilings come from the bot row when
// set, otherwise from the configured defaults.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	defaultPerSecond int
	defaultPerMinute int

	logger *slog.Logger
	now    func() time.Time
}

// New creates a limiter with the given default ceilings.
func New(perSecond, perMinute int, logger *slog.Logger) *Limiter {
	return &Limiter{
		entries:          make(map[string]*entry),
		defaultPerSecond: perSecond,
		defaultPerMinute: perMinute,
		logger:           logger.With("component", "ratelimit"),
		now:              time.Now,
	}
}

func (l *Limiter) get(botID string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[botID]
	if !ok {
		e = &entry{}
		l.entries[botID] = e
	}
	return e
}

// Allow consumes one send from both windows, or returns ErrRateLimited
// without consuming anything when either ceiling is hit. The windows
// slide: a send counts against the trailing second and the trailing
// minute from now, not against wall-clock-aligned periods. Zero or
// negative per-bot ceilings fall back to the defaults.
func (l *Limiter) Allow(botID string, perSecond, perMinute int) error {
	if perSecond <= 0 {
		perSecond = l.defaultPerSecond
	}
	if perMinute <= 0 {
		perMinute = l.defaultPerMinute
	}

	e := l.get(botID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()
	e.lastSeen = now

	// Drop sends that left the minute window. The slice is ordered, so
	// only the front needs scanning.
	minCutoff := now.Add(-time.Minute)
	drop := 0
	for drop < len(e.sends) && !e.sends[drop].After(minCutoff) {
		drop++
	}
	if drop > 0 {
		e.sends = append(e.sends[:0], e.sends[drop:]...)
	}

	secCutoff := now.Add(-time.Second)
	secCount := 0
	for i := len(e.sends) - 1; i >= 0 && e.sends[i].After(secCutoff); i-- {
		secCount++
	}

	if secCount >= perSecond || len(e.sends) >= perMinute {
		l.logger.Debug("rate limited",
			"bot_id", botID, "second_count", secCount, "minute_count", len(e.sends))
		return ErrRateLimited
	}

	e.sends = append(e.sends, now)
	return nil
}

// Forget drops a bot's counters, e.g. after bot deletion.
func (l *Limiter) Forget(botID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, botID)
}

// Prune removes entries idle for longer than idleFor and reports how
// many were dropped. Run periodically by the maintenance job.
func (l *Limiter) Prune(idleFor time.Duration) int {
	cutoff := l.now().Add(-idleFor)

	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for id, e := range l.entries {
		e.mu.Lock()
		idle := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(l.entries, id)
			dropped++
		}
	}
	if dropped > 0 {
		l.logger.Debug("pruned idle rate-limit entries", "count", dropped)
	}
	return dropped
}
