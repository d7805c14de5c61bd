// ABOUTME: In-memory fan-out of realtime events to per-chat subscribers
// ABOUTME: Backs the socket layer's push channel without an external broker

package platform

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber. Slow
// consumers lose events rather than stalling the router.
const subscriberBufferSize = 64

// Broadcaster is an in-process Notifier that fans events out to
// subscribers keyed by chat id. The socket layer subscribes once per
// open client connection.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // chatID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a Broadcaster. A nil logger uses the default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a listener for events on the given chat. The
// returned channel receives events until ctx is cancelled or
// Unsubscribe is called with the returned id.
func (b *Broadcaster) Subscribe(ctx context.Context, chatID string) (<-chan Event, string) {
	subID := uuid.NewString()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[chatID]; !ok {
		b.subscribers[chatID] = make(map[string]chan Event)
	}
	b.subscribers[chatID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "chat_id", chatID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(chatID, subID)
	}()

	return ch, subID
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broadcaster) Unsubscribe(chatID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[chatID]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.subscribers, chatID)
	}
	close(ch)
}

// Notify implements Notifier. Events go to every subscriber of the
// event's chat; full subscriber channels drop the event. Sends happen
// under the read lock so Unsubscribe cannot close a channel mid-send.
func (b *Broadcaster) Notify(ctx context.Context, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[ev.ChatID] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"chat_id", ev.ChatID, "kind", ev.Kind)
		}
	}
}

// SubscriberCount reports active listeners for a chat.
func (b *Broadcaster) SubscriberCount(chatID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[chatID])
}
