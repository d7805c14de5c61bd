package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_TouchBotUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_bu", "bot_user_test_bot")

	require.NoError(t, s.TouchBotUser(ctx, "bot_bu", "u1"))
	require.NoError(t, s.TouchBotUser(ctx, "bot_bu", "u1"))
	require.NoError(t, s.TouchBotUser(ctx, "bot_bu", "u2"))

	bu, err := s.GetBotUser(ctx, "bot_bu", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), bu.MessagesCount)

	// total_users counts distinct users, not interactions.
	bot, err := s.GetBot(ctx, "bot_bu")
	require.NoError(t, err)
	assert.Equal(t, int64(2), bot.TotalUsers)
}

func TestStore_GetBotUser_NotFound(t *testing.T) {
	s := setupTestStore(t)

	createTestBot(t, s, "bot_nf", "no_user_test_bot")

	_, err := s.GetBotUser(context.Background(), "bot_nf", "stranger")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_IsBlocked(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_blk", "block_test_bot")

	// Users the bot has never seen have not blocked it.
	blocked, err := s.IsBlocked(ctx, "bot_blk", "stranger")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, s.TouchBotUser(ctx, "bot_blk", "u1"))
	require.NoError(t, s.SetBlocked(ctx, "bot_blk", "u1", true))

	blocked, err = s.IsBlocked(ctx, "bot_blk", "u1")
	require.NoError(t, err)
	assert.True(t, blocked)

	// Unblocking works on the existing row.
	require.NoError(t, s.SetBlocked(ctx, "bot_blk", "u1", false))
	blocked, err = s.IsBlocked(ctx, "bot_blk", "u1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestStore_SetUserState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_st", "state_test_bot")

	state := "awaiting_email"
	data := `{"step":2}`
	require.NoError(t, s.SetUserState(ctx, "bot_st", "u1", &state, &data))

	bu, err := s.GetBotUser(ctx, "bot_st", "u1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_email", bu.State)
	assert.Equal(t, `{"step":2}`, bu.StateData)

	// nil clears the state.
	require.NoError(t, s.SetUserState(ctx, "bot_st", "u1", nil, nil))

	bu, err = s.GetBotUser(ctx, "bot_st", "u1")
	require.NoError(t, err)
	assert.Empty(t, bu.State)
	assert.Empty(t, bu.StateData)
}

func TestStore_RefreshActiveUserCounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestBot(t, s, "bot_act", "active_count_bot")
	require.NoError(t, s.TouchBotUser(ctx, "bot_act", "u1"))
	require.NoError(t, s.TouchBotUser(ctx, "bot_act", "u2"))

	// Push one user's last interaction outside the 24h window.
	_, err := s.db.ExecContext(ctx, `
		UPDATE bot_users SET last_interaction_at = '2020-01-01T00:00:00Z'
		WHERE bot_id = ? AND user_id = ?`, "bot_act", "u2")
	require.NoError(t, err)

	require.NoError(t, s.RefreshActiveUserCounts(ctx))

	bot, err := s.GetBot(ctx, "bot_act")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bot.ActiveUsers24h)
}
