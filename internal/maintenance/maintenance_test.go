package maintenance

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldmates/bot-gateway/internal/ratelimit"
	"github.com/worldmates/bot-gateway/internal/store"
)

func setupJanitor(t *testing.T, cfg Config) (*Janitor, *store.SQLiteStore, *ratelimit.Limiter) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	limiter := ratelimit.New(100, 1000, slog.Default())
	j, err := New(s, limiter, cfg, slog.Default())
	require.NoError(t, err)
	return j, s, limiter
}

func createJanitorBot(t *testing.T, s *store.SQLiteStore, id, username string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.CreateBot(context.Background(), &store.Bot{
		ID: id, OwnerID: "owner-1", TokenDigest: "d", Username: username,
		DisplayName: "Bot", Status: store.BotStatusActive,
		RateLimitPerSecond: 100, RateLimitPerMinute: 1000,
		CreatedAt: now, UpdatedAt: now,
	}))
}

func TestJanitor_SweepPurgesOldRecords(t *testing.T) {
	j, s, _ := setupJanitor(t, Config{
		DeliveryRetention: 24 * time.Hour,
		MessageRetention:  24 * time.Hour,
	})
	ctx := context.Background()

	createJanitorBot(t, s, "bot_jn", "janitor_sweep_bot")

	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC()

	// One delivered record past retention, one fresh.
	oldID, freshID := uuid.NewString(), uuid.NewString()
	for i, rec := range []struct {
		id      string
		created time.Time
	}{{oldID, old}, {freshID, fresh}} {
		require.NoError(t, s.CreateDelivery(ctx, &store.WebhookDelivery{
			ID: rec.id, BotID: "bot_jn", UpdateSeq: int64(i + 1),
			EventType: store.UpdateTypeMessage, URL: "https://example.com/hook",
			Payload: "{}", Status: store.DeliveryStatusDelivered,
			MaxAttempts: 5, CreatedAt: rec.created, UpdatedAt: rec.created,
		}))
	}

	// One processed message past retention, one unprocessed.
	oldSeq, err := s.AppendMessage(ctx, &store.Message{
		BotID: "bot_jn", ChatID: "u1", ChatType: "private",
		Direction: store.DirectionIncoming, Text: "old", CreatedAt: old,
	})
	require.NoError(t, err)
	claimed, err := s.ClaimUpdates(ctx, "bot_jn", 0, 10, nil)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	_, err = s.AppendMessage(ctx, &store.Message{
		BotID: "bot_jn", ChatID: "u1", ChatType: "private",
		Direction: store.DirectionIncoming, Text: "fresh", CreatedAt: fresh,
	})
	require.NoError(t, err)

	j.Sweep()

	// The old delivered record is gone; the fresh one survives as the
	// most recent record of its bot.
	fresh2, err := s.GetDelivery(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, store.DeliveryStatusDelivered, fresh2.Status)
	_, err = s.GetDelivery(ctx, oldID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Old processed message gone, unclaimed one kept.
	_, err = s.GetMessage(ctx, "bot_jn", oldSeq)
	assert.ErrorIs(t, err, store.ErrNotFound)
	unclaimed, err := s.ClaimUpdates(ctx, "bot_jn", 0, 10, nil)
	require.NoError(t, err)
	require.Len(t, unclaimed, 1)
	assert.Equal(t, "fresh", unclaimed[0].Text)
}

func TestJanitor_SweepRefreshesCountsAndPrunesLimiter(t *testing.T) {
	j, s, limiter := setupJanitor(t, Config{LimiterIdle: time.Nanosecond})
	ctx := context.Background()

	createJanitorBot(t, s, "bot_cnt", "janitor_counts_bot")
	require.NoError(t, s.TouchBotUser(ctx, "bot_cnt", "u1"))

	// Seed a limiter entry, then let the sweep prune it as idle.
	require.NoError(t, limiter.Allow("bot_cnt", 100, 1000))
	time.Sleep(time.Millisecond)

	j.Sweep()

	bot, err := s.GetBot(ctx, "bot_cnt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bot.ActiveUsers24h)
}

func TestJanitor_StartStop(t *testing.T) {
	j, _, _ := setupJanitor(t, Config{Interval: time.Hour})

	require.NoError(t, j.Start())
	require.NoError(t, j.Stop())
}

func TestJanitor_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, 7*24*time.Hour, cfg.DeliveryRetention)
	assert.Equal(t, 30*24*time.Hour, cfg.MessageRetention)
}
