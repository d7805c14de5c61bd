package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// createTestBot inserts a minimal active bot and returns it.
func createTestBot(t *testing.T, s *SQLiteStore, id, username string) *Bot {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	bot := &Bot{
		ID:                 id,
		OwnerID:            "user-1",
		TokenDigest:        "digest-" + id,
		Username:           username,
		DisplayName:        "Test Bot",
		Category:           "general",
		Status:             BotStatusActive,
		IsPublic:           true,
		CanJoinGroups:      true,
		SupportsCommands:   true,
		RateLimitPerSecond: 30,
		RateLimitPerMinute: 600,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, s.CreateBot(context.Background(), bot))
	return bot
}

func TestStore_CreateBot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_abc123", "cool_helper_bot")

	retrieved, err := s.GetBot(ctx, "bot_abc123")
	require.NoError(t, err)
	assert.Equal(t, "cool_helper_bot", retrieved.Username)
	assert.Equal(t, BotStatusActive, retrieved.Status)
	assert.Equal(t, 30, retrieved.RateLimitPerSecond)
}

func TestStore_CreateBot_DuplicateUsername(t *testing.T) {
	s := setupTestStore(t)

	createTestBot(t, s, "bot_one", "taken_name_bot")

	now := time.Now().UTC()
	err := s.CreateBot(context.Background(), &Bot{
		ID:          "bot_two",
		OwnerID:     "user-2",
		TokenDigest: "d",
		Username:    "taken_name_bot",
		DisplayName: "Other",
		Status:      BotStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestStore_GetBot_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetBot(context.Background(), "bot_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetBotByUsername(t *testing.T) {
	s := setupTestStore(t)

	createTestBot(t, s, "bot_abc", "lookup_me_bot")

	bot, err := s.GetBotByUsername(context.Background(), "lookup_me_bot")
	require.NoError(t, err)
	assert.Equal(t, "bot_abc", bot.ID)
}

func TestStore_SetBotTokenDigest(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_rot", "rotate_me_bot")

	require.NoError(t, s.SetBotTokenDigest(ctx, "bot_rot", "new-digest"))

	bot, err := s.GetBot(ctx, "bot_rot")
	require.NoError(t, err)
	assert.Equal(t, "new-digest", bot.TokenDigest)

	err = s.SetBotTokenDigest(ctx, "bot_missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetWebhook(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_wh", "webhook_test_bot")

	cfg := WebhookConfig{
		URL:            "https://example.com/hook",
		Secret:         "s3cret",
		Enabled:        true,
		MaxConnections: 40,
		AllowedUpdates: []string{UpdateTypeMessage, UpdateTypeCommand},
	}
	require.NoError(t, s.SetWebhook(ctx, "bot_wh", cfg))

	bot, err := s.GetBot(ctx, "bot_wh")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", bot.Webhook.URL)
	assert.True(t, bot.Webhook.Enabled)
	assert.Equal(t, []string{UpdateTypeMessage, UpdateTypeCommand}, bot.Webhook.AllowedUpdates)
}

func TestStore_ListBotsByOwner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_a", "first_owned_bot")
	createTestBot(t, s, "bot_b", "second_owned_bot")

	bots, err := s.ListBotsByOwner(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, bots, 2)

	count, err := s.CountBotsByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_SearchBots(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_w", "weather_report_bot")
	private := createTestBot(t, s, "bot_p", "private_thing_bot")
	private.IsPublic = false
	require.NoError(t, s.UpdateBot(ctx, private))

	results, err := s.SearchBots(ctx, "weather", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bot_w", results[0].ID)

	// Private bots never show up, even with an empty query.
	all, err := s.SearchBots(ctx, "", "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_DeleteBot_Cascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_del", "delete_me_bot")

	_, err := s.ReplaceCommands(ctx, "bot_del", []*Command{
		{Name: "start", Description: "Start"},
	})
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, &Message{
		BotID: "bot_del", ChatID: "u1", ChatType: "private",
		Direction: DirectionIncoming, Text: "hi", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, s.CreatePoll(ctx, &Poll{
		ID: "poll-1", BotID: "bot_del", ChatID: "u1", Question: "?",
		Type: "regular", CreatedAt: time.Now().UTC(),
	}, []string{"A", "B"}))

	require.NoError(t, s.DeleteBot(ctx, "bot_del"))

	_, err = s.GetBot(ctx, "bot_del")
	assert.ErrorIs(t, err, ErrNotFound)

	cmds, err := s.ListCommands(ctx, "bot_del", true)
	require.NoError(t, err)
	assert.Empty(t, cmds)

	_, err = s.GetPoll(ctx, "poll-1")
	assert.ErrorIs(t, err, ErrNotFound)

	updates, err := s.ClaimUpdates(ctx, "bot_del", 0, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, updates)

	// Cascade delete is idempotent on re-run for a gone bot.
	assert.ErrorIs(t, s.DeleteBot(ctx, "bot_del"), ErrNotFound)
}

func TestStore_BumpCounters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_cnt", "counter_test_bot")

	require.NoError(t, s.BumpMessagesReceived(ctx, "bot_cnt"))
	require.NoError(t, s.BumpMessagesSent(ctx, "bot_cnt"))
	require.NoError(t, s.BumpMessagesSent(ctx, "bot_cnt"))

	bot, err := s.GetBot(ctx, "bot_cnt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bot.MessagesReceived)
	assert.Equal(t, int64(2), bot.MessagesSent)
	assert.NotNil(t, bot.LastActiveAt)
}
