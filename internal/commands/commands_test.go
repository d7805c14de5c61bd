package commands

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldmates/bot-gateway/internal/store"
)

func setupService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Now().UTC()
	require.NoError(t, s.CreateBot(context.Background(), &store.Bot{
		ID: "bot_cmd", OwnerID: "owner-1", TokenDigest: "d",
		Username: "command_svc_bot", DisplayName: "Cmd",
		Status: store.BotStatusActive, CreatedAt: now, UpdatedAt: now,
	}))

	return New(s, slog.Default()), s
}

func TestService_SetCommands_Cap(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	over := make([]*store.Command, MaxCommands+1)
	for i := range over {
		over[i] = &store.Command{Name: "c", Description: "d"}
	}
	_, err := svc.SetCommands(ctx, "bot_cmd", over)
	assert.ErrorIs(t, err, ErrTooManyCommands)

	// Exactly at the cap is fine; duplicate names collapse in the store.
	atCap := over[:MaxCommands]
	_, err = svc.SetCommands(ctx, "bot_cmd", atCap)
	require.NoError(t, err)
}

func TestService_SetCommands_SilentSkip(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	stored, err := svc.SetCommands(ctx, "bot_cmd", []*store.Command{
		{Name: "keep", Description: "Kept"},
		{Name: "", Description: "Skipped, no name"},
		{Name: "skipped", Description: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	cmds, err := svc.GetCommands(ctx, "bot_cmd", true)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "keep", cmds[0].Name)
}
