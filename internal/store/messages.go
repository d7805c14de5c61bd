// ABOUTME: Message queue persistence for the SQLite store
// ABOUTME: Per-bot sequence assignment and the transactional claim for long-polling

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const messageColumns = `bot_id, seq, chat_id, chat_type, direction, text, media_type, media_url,
	reply_to_seq, reply_markup, entities, callback_data, is_command, command_name,
	command_args, processed, processed_at, created_at`

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var replyTo sql.NullInt64
	var processedAt sql.NullString
	var createdAt string

	err := row.Scan(
		&m.BotID, &m.Seq, &m.ChatID, &m.ChatType, &m.Direction, &m.Text, &m.MediaType,
		&m.MediaURL, &replyTo, &m.ReplyMarkup, &m.Entities, &m.CallbackData, &m.IsCommand,
		&m.CommandName, &m.CommandArgs, &m.Processed, &processedAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	if replyTo.Valid {
		m.ReplyToSeq = &replyTo.Int64
	}
	if m.ProcessedAt, err = parseTimePtr(processedAt); err != nil {
		return nil, fmt.Errorf("parsing processed_at: %w", err)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &m, nil
}

// AppendMessage assigns the next per-bot sequence number and persists the
// message in one transaction. The returned seq is the message id and, for
// incoming messages, the long-poll offset. Callers serialize appends for
// the same bot; the transaction keeps the MAX(seq)+1 read and the insert
// atomic against pollers.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM bot_messages WHERE bot_id = ?`,
		msg.BotID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("assigning sequence: %w", err)
	}

	var replyTo any
	if msg.ReplyToSeq != nil {
		replyTo = *msg.ReplyToSeq
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bot_messages (bot_id, seq, chat_id, chat_type, direction, text,
			media_type, media_url, reply_to_seq, reply_markup, entities, callback_data,
			is_command, command_name, command_args, processed, processed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.BotID, seq, msg.ChatID, msg.ChatType, msg.Direction, msg.Text,
		msg.MediaType, msg.MediaURL, replyTo, msg.ReplyMarkup, msg.Entities,
		msg.CallbackData, msg.IsCommand, msg.CommandName, msg.CommandArgs,
		msg.Processed, fmtTimePtr(msg.ProcessedAt), fmtTime(msg.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing message: %w", err)
	}

	msg.Seq = seq
	return seq, nil
}

// GetMessage retrieves one message by bot and sequence number.
func (s *SQLiteStore) GetMessage(ctx context.Context, botID string, seq int64) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM bot_messages WHERE bot_id = ? AND seq = ?`,
		botID, seq)
	return scanMessage(row)
}

// ClaimUpdates returns unprocessed incoming messages with seq > offset,
// ascending, capped at limit, and marks them processed in the same
// transaction. Two concurrent pollers can never both claim the same
// update. An empty allowed list means all update types.
func (s *SQLiteStore) ClaimUpdates(ctx context.Context, botID string, offset int64, limit int, allowed []string) ([]*Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + messageColumns + `
		FROM bot_messages
		WHERE bot_id = ? AND direction = 'incoming' AND processed = 0 AND seq > ?`
	args := []any{botID, offset}

	if len(allowed) > 0 {
		var conds []string
		for _, t := range allowed {
			switch t {
			case UpdateTypeCallbackQuery:
				conds = append(conds, `callback_data != ''`)
			case UpdateTypeCommand:
				conds = append(conds, `is_command = 1`)
			case UpdateTypeMessage:
				conds = append(conds, `(is_command = 0 AND callback_data = '')`)
			}
		}
		if len(conds) > 0 {
			query += ` AND (` + strings.Join(conds, " OR ") + `)`
		}
	}
	query += ` ORDER BY seq ASC LIMIT ?`
	args = append(args, limit)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying updates: %w", err)
	}

	var updates []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		updates = append(updates, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating update rows: %w", err)
	}
	rows.Close()

	if len(updates) == 0 {
		return nil, tx.Commit()
	}

	now := time.Now()
	for _, m := range updates {
		_, err := tx.ExecContext(ctx, `
			UPDATE bot_messages SET processed = 1, processed_at = ?
			WHERE bot_id = ? AND seq = ?`, fmtTime(now), botID, m.Seq)
		if err != nil {
			return nil, fmt.Errorf("marking update %d processed: %w", m.Seq, err)
		}
		m.Processed = true
		t := now
		m.ProcessedAt = &t
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return updates, nil
}

// MarkProcessed flags one incoming message as handled outside the
// claim path, e.g. after a successful webhook delivery. Already
// processed messages are left untouched.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, botID string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bot_messages SET processed = 1, processed_at = ?
		WHERE bot_id = ? AND seq = ? AND direction = 'incoming' AND processed = 0`,
		fmtTime(time.Now()), botID, seq)
	if err != nil {
		return fmt.Errorf("marking message processed: %w", err)
	}
	return nil
}

// UpdateOutgoing edits the text and/or reply markup of an outgoing
// message owned by the bot. Empty text or markup leaves that field
// unchanged; a text edit always rewrites the entities alongside it so
// stored spans never go stale against the new text.
func (s *SQLiteStore) UpdateOutgoing(ctx context.Context, botID string, seq int64, chatID, text, entities, replyMarkup string) error {
	var sets []string
	var args []any
	if text != "" {
		sets = append(sets, "text = ?", "entities = ?")
		args = append(args, text, entities)
	}
	if replyMarkup != "" {
		sets = append(sets, "reply_markup = ?")
		args = append(args, replyMarkup)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, botID, seq, chatID)

	result, err := s.db.ExecContext(ctx, `
		UPDATE bot_messages SET `+strings.Join(sets, ", ")+`
		WHERE bot_id = ? AND seq = ? AND chat_id = ? AND direction = 'outgoing'`, args...)
	if err != nil {
		return fmt.Errorf("updating outgoing message: %w", err)
	}
	return requireRowsAffected(result)
}

// DeleteMessage removes an outgoing message owned by the bot.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, botID string, seq int64, chatID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM bot_messages
		WHERE bot_id = ? AND seq = ? AND chat_id = ? AND direction = 'outgoing'`,
		botID, seq, chatID)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return requireRowsAffected(result)
}

// PurgeProcessedBefore deletes processed incoming messages older than the
// cutoff. Used by the retention job.
func (s *SQLiteStore) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM bot_messages
		WHERE direction = 'incoming' AND processed = 1 AND created_at < ?`,
		fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purging processed messages: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Debug("purged processed messages", "count", rows)
	}
	return rows, nil
}
