// ABOUTME: Callback Query Manager: one-shot acknowledgements for inline-keyboard taps
// ABOUTME: Answering clears the pending UI state on the initiating client via the notifier

package callbacks

import (
	"context"
	"log/slog"

	"github.com/worldmates/bot-gateway/internal/metrics"
	"github.com/worldmates/bot-gateway/internal/platform"
	"github.com/worldmates/bot-gateway/internal/store"
)

// Manager answers callback queries. Queries themselves are created by
// the message router whenever an inbound update carries callback data.
type Manager struct {
	store    store.Store
	realtime platform.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewManager creates a callback query manager.
func NewManager(s store.Store, realtime platform.Notifier, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		store:    s,
		realtime: realtime,
		metrics:  m,
		logger:   logger.With("component", "callbacks"),
	}
}

// Get returns a callback query scoped to the owning bot.
func (m *Manager) Get(ctx context.Context, bot *store.Bot, id string) (*store.CallbackQuery, error) {
	return m.store.GetCallback(ctx, bot.ID, id)
}

// Answer acknowledges a callback query exactly once. Returns
// store.ErrAlreadyAnswered on a repeat and store.ErrNotFound when the
// query does not exist or belongs to another bot. The acknowledgement
// is pushed to the initiating client so its pending spinner clears.
func (m *Manager) Answer(ctx context.Context, bot *store.Bot, id, text string, showAlert bool) (*store.CallbackQuery, error) {
	if err := m.store.AnswerCallback(ctx, bot.ID, id, text, showAlert); err != nil {
		return nil, err
	}

	cb, err := m.store.GetCallback(ctx, bot.ID, id)
	if err != nil {
		return nil, err
	}

	m.metrics.IncCallbackAnswer()
	m.realtime.Notify(ctx, platform.Event{
		Kind:   "callback_answer",
		BotID:  bot.ID,
		ChatID: cb.UserID,
		Seq:    cb.MessageSeq,
	})
	m.logger.Debug("answered callback query", "bot_id", bot.ID, "callback_id", id)
	return cb, nil
}
