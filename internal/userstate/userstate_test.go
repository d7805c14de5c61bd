package userstate

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldmates/bot-gateway/internal/store"
)

func setupStore(t *testing.T) (*Store, *store.SQLiteStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return New(s, slog.Default()), s
}

func createStateBot(t *testing.T, s *store.SQLiteStore, id, username string) *store.Bot {
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

func TestStore_SetAndGetState(t *testing.T) {
	u, s := setupStore(t)
	ctx := context.Background()

	bot := createStateBot(t, s, "bot_st", "state_flow_bot")

	// Unknown users read as empty state, no error.
	state, data, err := u.GetState(ctx, bot, "stranger")
	require.NoError(t, err)
	assert.Empty(t, state)
	assert.Empty(t, data)

	st := "awaiting_email"
	sd := `{"step":2,"retries":0}`
	require.NoError(t, u.SetState(ctx, bot, "u1", &st, &sd))

	state, data, err = u.GetState(ctx, bot, "u1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_email", state)
	assert.Equal(t, `{"step":2,"retries":0}`, data)

	// Overwrite, then clear.
	st2 := "awaiting_code"
	require.NoError(t, u.SetState(ctx, bot, "u1", &st2, nil))
	state, _, err = u.GetState(ctx, bot, "u1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_code", state)

	require.NoError(t, u.SetState(ctx, bot, "u1", nil, nil))
	state, data, err = u.GetState(ctx, bot, "u1")
	require.NoError(t, err)
	assert.Empty(t, state)
	assert.Empty(t, data)
}

func TestStore_StatesAreScopedPerPair(t *testing.T) {
	u, s := setupStore(t)
	ctx := context.Background()

	botA := createStateBot(t, s, "bot_a", "state_scope_a_bot")
	botB := createStateBot(t, s, "bot_b", "state_scope_b_bot")

	stA := "checkout"
	stB := "onboarding"
	require.NoError(t, u.SetState(ctx, botA, "u1", &stA, nil))
	require.NoError(t, u.SetState(ctx, botB, "u1", &stB, nil))

	state, _, err := u.GetState(ctx, botA, "u1")
	require.NoError(t, err)
	assert.Equal(t, "checkout", state)

	state, _, err = u.GetState(ctx, botB, "u1")
	require.NoError(t, err)
	assert.Equal(t, "onboarding", state)
}

func TestStore_ConcurrentPairsDoNotInterfere(t *testing.T) {
	u, s := setupStore(t)
	ctx := context.Background()

	bot := createStateBot(t, s, "bot_cc", "state_concurrent_bot")

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := "step"
			sd := `{"n":` + string(rune('0'+i)) + `}`
			userID := "user-" + string(rune('a'+i))
			assert.NoError(t, u.SetState(ctx, bot, userID, &st, &sd))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		state, _, err := u.GetState(ctx, bot, "user-"+string(rune('a'+i)))
		require.NoError(t, err)
		assert.Equal(t, "step", state)
	}
}

func TestStore_GetChatMember(t *testing.T) {
	u, s := setupStore(t)
	ctx := context.Background()

	bot := createStateBot(t, s, "bot_cm", "chat_member_bot")

	_, err := u.GetChatMember(ctx, bot, "stranger")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.TouchBotUser(ctx, "bot_cm", "u1"))
	require.NoError(t, s.TouchBotUser(ctx, "bot_cm", "u1"))

	member, err := u.GetChatMember(ctx, bot, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), member.MessagesCount)
	assert.False(t, member.Blocked)
}

func TestStore_BlockUnblock(t *testing.T) {
	u, s := setupStore(t)
	ctx := context.Background()

	createStateBot(t, s, "bot_bl", "state_block_bot")

	require.NoError(t, u.Block(ctx, "bot_bl", "u1"))
	blocked, err := s.IsBlocked(ctx, "bot_bl", "u1")
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, u.Unblock(ctx, "bot_bl", "u1"))
	blocked, err = s.IsBlocked(ctx, "bot_bl", "u1")
	require.NoError(t, err)
	assert.False(t, blocked)
}
