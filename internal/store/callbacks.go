// ABOUTME: Callback query persistence for the SQLite store
// ABOUTME: One-shot answer semantics guarded by a conditional UPDATE

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateCallback records a callback query raised by an inline-keyboard tap.
func (s *SQLiteStore) CreateCallback(ctx context.Context, cb *CallbackQuery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_callbacks (id, bot_id, user_id, message_seq, data, answered, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		cb.ID, cb.BotID, cb.UserID, cb.MessageSeq, cb.Data, fmtTime(cb.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting callback query: %w", err)
	}
	return nil
}

// GetCallback retrieves a callback query scoped to the owning bot.
func (s *SQLiteStore) GetCallback(ctx context.Context, botID, id string) (*CallbackQuery, error) {
	var cb CallbackQuery
	var createdAt string
	var answeredAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, bot_id, user_id, message_seq, data, answered, answer_text, show_alert,
			created_at, answered_at
		FROM bot_callbacks WHERE id = ? AND bot_id = ?`, id, botID).Scan(
		&cb.ID, &cb.BotID, &cb.UserID, &cb.MessageSeq, &cb.Data, &cb.Answered,
		&cb.AnswerText, &cb.ShowAlert, &createdAt, &answeredAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying callback query: %w", err)
	}

	if cb.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if cb.AnsweredAt, err = parseTimePtr(answeredAt); err != nil {
		return nil, fmt.Errorf("parsing answered_at: %w", err)
	}
	return &cb, nil
}

// AnswerCallback marks a callback query answered exactly once. The
// conditional UPDATE makes concurrent answers race-safe: only one wins,
// the rest see ErrAlreadyAnswered.
func (s *SQLiteStore) AnswerCallback(ctx context.Context, botID, id, text string, showAlert bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bot_callbacks
		SET answered = 1, answer_text = ?, show_alert = ?, answered_at = ?
		WHERE id = ? AND bot_id = ? AND answered = 0`,
		text, showAlert, fmtTime(time.Now()), id, botID)
	if err != nil {
		return fmt.Errorf("answering callback query: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish already-answered from absent.
		if _, err := s.GetCallback(ctx, botID, id); err != nil {
			return err
		}
		return ErrAlreadyAnswered
	}
	return nil
}
