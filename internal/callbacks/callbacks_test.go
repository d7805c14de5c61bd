package callbacks

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldmates/bot-gateway/internal/platform"
	"github.com/worldmates/bot-gateway/internal/store"
)

// recordingNotifier captures realtime events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []platform.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, ev platform.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func setupManager(t *testing.T) (*Manager, *store.SQLiteStore, *recordingNotifier) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	notifier := &recordingNotifier{}
	return NewManager(s, notifier, nil, slog.Default()), s, notifier
}

func createCallbackBot(t *testing.T, s *store.SQLiteStore, id, username string) *store.Bot {
	t.Helper()
	now := time.Now().UTC()
	bot := &store.Bot{
		ID: id, OwnerID: "owner-1", TokenDigest: "d", Username: username,
		DisplayName: "Bot", Status: store.BotStatusActive,
		RateLimitPerSecond: 100, RateLimitPerMinute: 1000,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateBot(context.Background(), bot))
	return bot
}

func createQuery(t *testing.T, s *store.SQLiteStore, botID, userID, data string) *store.CallbackQuery {
	t.Helper()
	cb := &store.CallbackQuery{
		ID: uuid.NewString(), BotID: botID, UserID: userID,
		MessageSeq: 1, Data: data, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateCallback(context.Background(), cb))
	return cb
}

func TestManager_Answer(t *testing.T) {
	m, s, notifier := setupManager(t)
	ctx := context.Background()

	bot := createCallbackBot(t, s, "bot_cb", "callback_answer_bot")
	cb := createQuery(t, s, "bot_cb", "u1", "action_confirm")

	answered, err := m.Answer(ctx, bot, cb.ID, "Done!", true)
	require.NoError(t, err)
	assert.True(t, answered.Answered)
	assert.Equal(t, "Done!", answered.AnswerText)
	assert.True(t, answered.ShowAlert)
	require.NotNil(t, answered.AnsweredAt)

	// The initiating client is notified so its spinner clears.
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "callback_answer", notifier.events[0].Kind)
	assert.Equal(t, "u1", notifier.events[0].ChatID)
}

func TestManager_Answer_OneShot(t *testing.T) {
	m, s, notifier := setupManager(t)
	ctx := context.Background()

	bot := createCallbackBot(t, s, "bot_os", "callback_oneshot_bot")
	cb := createQuery(t, s, "bot_os", "u1", "x")

	_, err := m.Answer(ctx, bot, cb.ID, "", false)
	require.NoError(t, err)

	_, err = m.Answer(ctx, bot, cb.ID, "again", false)
	assert.ErrorIs(t, err, store.ErrAlreadyAnswered)
	assert.Len(t, notifier.events, 1)
}

func TestManager_Answer_NotFoundAndForeign(t *testing.T) {
	m, s, _ := setupManager(t)
	ctx := context.Background()

	bot := createCallbackBot(t, s, "bot_nf", "callback_missing_bot")
	other := createCallbackBot(t, s, "bot_other", "callback_foreign_bot")
	cb := createQuery(t, s, "bot_other", "u1", "x")

	_, err := m.Answer(ctx, bot, "missing", "", false)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A bot cannot answer another bot's query.
	_, err = m.Answer(ctx, bot, cb.ID, "", false)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Still answerable by its owner.
	_, err = m.Answer(ctx, other, cb.ID, "", false)
	require.NoError(t, err)
}
