// ABOUTME: User State Store: freeform per (bot, user) conversation state
// ABOUTME: Bots define their own FSM semantics; the store only persists and returns

package userstate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/worldmates/bot-gateway/internal/store"
)

// Store persists the opaque state string plus a JSON blob the bot
// attaches to it. No transition table: the platform deliberately does
// not constrain external bot logic.
type Store struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a user state store.
func New(s store.Store, logger *slog.Logger) *Store {
	return &Store{
		store:  s,
		logger: logger.With("component", "userstate"),
	}
}

// SetState writes the conversation state for a (bot, user) pair,
// creating the relationship row when the bot has never seen the user.
// Nil state clears it.
func (u *Store) SetState(ctx context.Context, bot *store.Bot, userID string, state, stateData *string) error {
	if err := u.store.SetUserState(ctx, bot.ID, userID, state, stateData); err != nil {
		return err
	}
	u.logger.Debug("set user state", "bot_id", bot.ID, "user_id", userID, "cleared", state == nil)
	return nil
}

// GetState reads the conversation state. A user the bot has never seen
// reads as empty state, not an error, so bots need no existence probe
// before their first getState.
func (u *Store) GetState(ctx context.Context, bot *store.Bot, userID string) (state, stateData string, err error) {
	bu, err := u.store.GetBotUser(ctx, bot.ID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return bu.State, bu.StateData, nil
}

// GetChatMember returns the full relationship row: block status, state,
// interaction counters. ErrNotFound when the bot has never seen the user.
func (u *Store) GetChatMember(ctx context.Context, bot *store.Bot, userID string) (*store.BotUser, error) {
	return u.store.GetBotUser(ctx, bot.ID, userID)
}

// Block marks the bot as blocked by the user; subsequent sends to the
// user fail with BlockedByUser.
func (u *Store) Block(ctx context.Context, botID, userID string) error {
	return u.store.SetBlocked(ctx, botID, userID, true)
}

// Unblock clears the block.
func (u *Store) Unblock(ctx context.Context, botID, userID string) error {
	return u.store.SetBlocked(ctx, botID, userID, false)
}
