package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldmates/bot-gateway/internal/store"
)

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createBotWithToken(t *testing.T, s *store.SQLiteStore, id, username string) string {
	t.Helper()
	token, digest, err := GenerateToken(id)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.CreateBot(context.Background(), &store.Bot{
		ID: id, OwnerID: "owner-1", TokenDigest: digest, Username: username,
		DisplayName: "Bot", Status: store.BotStatusActive,
		CreatedAt: now, UpdatedAt: now,
	}))
	return token
}

func TestGenerateToken(t *testing.T) {
	token, digest, err := GenerateToken("bot_x1")
	require.NoError(t, err)

	parts := strings.SplitN(token, ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "bot_x1", parts[0])
	assert.Len(t, parts[1], 64)
	assert.Equal(t, DigestSecret(parts[1]), digest)

	// Tokens are random, not derived.
	token2, _, err := GenerateToken("bot_x1")
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestBotAuthenticator_Authenticate(t *testing.T) {
	s := setupTestStore(t)
	a := NewBotAuthenticator(s)
	ctx := context.Background()

	token := createBotWithToken(t, s, "bot_a1", "auth_test_bot")

	bot, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "bot_a1", bot.ID)
}

func TestBotAuthenticator_RejectsBadTokens(t *testing.T) {
	s := setupTestStore(t)
	a := NewBotAuthenticator(s)
	ctx := context.Background()

	createBotWithToken(t, s, "bot_a2", "reject_test_bot")

	tests := []struct {
		name  string
		token string
	}{
		{"no separator", "bot_a2abcdef"},
		{"empty secret", "bot_a2:"},
		{"empty id", ":abcdef"},
		{"wrong secret", "bot_a2:" + strings.Repeat("0", 64)},
		{"unknown bot", "bot_ghost:" + strings.Repeat("0", 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(ctx, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBotAuthenticator_RotationInvalidatesOldToken(t *testing.T) {
	s := setupTestStore(t)
	a := NewBotAuthenticator(s)
	ctx := context.Background()

	oldToken := createBotWithToken(t, s, "bot_rot", "rotate_auth_bot")

	newToken, newDigest, err := GenerateToken("bot_rot")
	require.NoError(t, err)
	require.NoError(t, s.SetBotTokenDigest(ctx, "bot_rot", newDigest))

	_, err = a.Authenticate(ctx, oldToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	bot, err := a.Authenticate(ctx, newToken)
	require.NoError(t, err)
	assert.Equal(t, "bot_rot", bot.ID)
}

func TestBotAuthenticator_SuspendedBot(t *testing.T) {
	s := setupTestStore(t)
	a := NewBotAuthenticator(s)
	ctx := context.Background()

	token := createBotWithToken(t, s, "bot_sus", "suspended_auth_bot")

	bot, err := s.GetBot(ctx, "bot_sus")
	require.NoError(t, err)
	bot.Status = store.BotStatusSuspended
	require.NoError(t, s.UpdateBot(ctx, bot))

	_, err = a.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrBotSuspended)
}
