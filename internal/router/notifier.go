// ABOUTME: Per-bot wakeup channel for blocking long-poll waiters
// ABOUTME: Wake is broadcast; Wait returns early on wakeup, timeout or cancellation

package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// wakeup lets poll_updates block until an update arrives for a bot.
// Each waiter registers a buffered channel; Wake closes none of them,
// it just signals, so a wakeup is never lost between the empty claim
// and the wait.
type wakeup struct {
	mu      sync.Mutex
	waiters map[string]map[string]chan struct{}
}

func newWakeup() *wakeup {
	return &wakeup{waiters: make(map[string]map[string]chan struct{})}
}

// subscribe registers a waiter for the bot and returns the channel plus
// an unsubscribe func.
func (w *wakeup) subscribe(botID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	id := uuid.NewString()

	w.mu.Lock()
	if w.waiters[botID] == nil {
		w.waiters[botID] = make(map[string]chan struct{})
	}
	w.waiters[botID][id] = ch
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.waiters[botID], id)
		if len(w.waiters[botID]) == 0 {
			delete(w.waiters, botID)
		}
	}
}

// Wake signals every current waiter for the bot. Non-blocking: a waiter
// that already has a pending signal is not queued twice.
func (w *wakeup) Wake(botID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.waiters[botID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Wait blocks until the bot is woken, the timeout passes or the context
// is cancelled. Returns true only on a wakeup.
func (w *wakeup) Wait(ctx context.Context, botID string, timeout time.Duration) bool {
	ch, cancel := w.subscribe(botID)
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
