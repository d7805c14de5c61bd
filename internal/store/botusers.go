// ABOUTME: Bot-user relationship persistence for the SQLite store
// ABOUTME: Lazy creation, block status and the freeform per-user FSM state

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TouchBotUser creates the (bot, user) relationship on first interaction
// or bumps its interaction counters. First contact also increments the
// bot's total_users counter, inside the same transaction.
func (s *SQLiteStore) TouchBotUser(ctx context.Context, botID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning touch transaction: %w", err)
	}
	defer tx.Rollback()

	now := fmtTime(time.Now())
	result, err := tx.ExecContext(ctx, `
		UPDATE bot_users
		SET last_interaction_at = ?, messages_count = messages_count + 1
		WHERE bot_id = ? AND user_id = ?`, now, botID, userID)
	if err != nil {
		return fmt.Errorf("updating bot user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rows == 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bot_users (bot_id, user_id, messages_count, first_interaction_at, last_interaction_at)
			VALUES (?, ?, 1, ?, ?)`, botID, userID, now, now)
		if err != nil {
			return fmt.Errorf("inserting bot user: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE bots SET total_users = total_users + 1 WHERE id = ?`, botID)
		if err != nil {
			return fmt.Errorf("bumping total_users: %w", err)
		}
	}

	return tx.Commit()
}

// GetBotUser retrieves the relationship row. Returns ErrNotFound if the
// user has never interacted with the bot.
func (s *SQLiteStore) GetBotUser(ctx context.Context, botID, userID string) (*BotUser, error) {
	var bu BotUser
	var first, last string
	err := s.db.QueryRowContext(ctx, `
		SELECT bot_id, user_id, blocked, state, state_data, custom_data, messages_count,
			first_interaction_at, last_interaction_at
		FROM bot_users WHERE bot_id = ? AND user_id = ?`, botID, userID).Scan(
		&bu.BotID, &bu.UserID, &bu.Blocked, &bu.State, &bu.StateData, &bu.CustomData,
		&bu.MessagesCount, &first, &last)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying bot user: %w", err)
	}

	if bu.FirstInteractionAt, err = parseTime(first); err != nil {
		return nil, fmt.Errorf("parsing first_interaction_at: %w", err)
	}
	if bu.LastInteractionAt, err = parseTime(last); err != nil {
		return nil, fmt.Errorf("parsing last_interaction_at: %w", err)
	}
	return &bu, nil
}

// IsBlocked reports whether the user has blocked the bot. Unknown users
// have not blocked anything.
func (s *SQLiteStore) IsBlocked(ctx context.Context, botID, userID string) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT blocked FROM bot_users WHERE bot_id = ? AND user_id = ?`,
		botID, userID).Scan(&blocked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying block status: %w", err)
	}
	return blocked, nil
}

// SetUserState sets the freeform FSM state for a (bot, user) pair. A nil
// state or stateData clears that field. The relationship is created if
// the user has no prior interaction, so bots can seed state up front.
func (s *SQLiteStore) SetUserState(ctx context.Context, botID, userID string, state, stateData *string) error {
	now := fmtTime(time.Now())
	stateVal := ""
	if state != nil {
		stateVal = *state
	}
	dataVal := ""
	if stateData != nil {
		dataVal = *stateData
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE bot_users SET state = ?, state_data = ?
		WHERE bot_id = ? AND user_id = ?`, stateVal, dataVal, botID, userID)
	if err != nil {
		return fmt.Errorf("updating user state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO bot_users (bot_id, user_id, state, state_data, first_interaction_at, last_interaction_at)
			VALUES (?, ?, ?, ?, ?, ?)`, botID, userID, stateVal, dataVal, now, now)
		if err != nil {
			return fmt.Errorf("inserting user state: %w", err)
		}
	}
	return nil
}

// SetBlocked records whether the user has blocked the bot. The
// relationship row is created if absent so a user can block a bot
// before ever messaging it.
func (s *SQLiteStore) SetBlocked(ctx context.Context, botID, userID string, blocked bool) error {
	now := fmtTime(time.Now())
	result, err := s.db.ExecContext(ctx, `
		UPDATE bot_users SET blocked = ? WHERE bot_id = ? AND user_id = ?`,
		blocked, botID, userID)
	if err != nil {
		return fmt.Errorf("updating block status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO bot_users (bot_id, user_id, blocked, first_interaction_at, last_interaction_at)
			VALUES (?, ?, ?, ?, ?)`, botID, userID, blocked, now, now)
		if err != nil {
			return fmt.Errorf("inserting block status: %w", err)
		}
	}
	return nil
}

// RefreshActiveUserCounts recomputes each bot's active_users_24h counter.
// Run by the retention job.
func (s *SQLiteStore) RefreshActiveUserCounts(ctx context.Context) error {
	cutoff := fmtTime(time.Now().Add(-24 * time.Hour))
	_, err := s.db.ExecContext(ctx, `
		UPDATE bots SET active_users_24h = (
			SELECT COUNT(DISTINCT user_id) FROM bot_users
			WHERE bot_users.bot_id = bots.id AND last_interaction_at >= ?
		)`, cutoff)
	if err != nil {
		return fmt.Errorf("refreshing active user counts: %w", err)
	}
	return nil
}
