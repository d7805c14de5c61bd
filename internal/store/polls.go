// ABOUTME: Poll and vote persistence for the SQLite store
// ABOUTME: Atomic vote counting with single-answer retraction inside one transaction

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreatePoll inserts the poll and its options in one transaction.
func (s *SQLiteStore) CreatePoll(ctx context.Context, poll *Poll, options []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning poll transaction: %w", err)
	}
	defer tx.Rollback()

	var correct any
	if poll.CorrectOptionIndex != nil {
		correct = *poll.CorrectOptionIndex
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bot_polls (id, bot_id, chat_id, question, type, is_anonymous,
			allows_multiple, correct_option_index, explanation, closed, message_seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		poll.ID, poll.BotID, poll.ChatID, poll.Question, poll.Type, poll.IsAnonymous,
		poll.AllowsMultiple, correct, poll.Explanation, poll.MessageSeq, fmtTime(poll.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting poll: %w", err)
	}

	for idx, text := range options {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bot_poll_options (poll_id, opt_index, text, voter_count)
			VALUES (?, ?, ?, 0)`, poll.ID, idx, text)
		if err != nil {
			return fmt.Errorf("inserting poll option %d: %w", idx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing poll: %w", err)
	}

	s.logger.Debug("created poll", "id", poll.ID, "bot_id", poll.BotID, "options", len(options))
	return nil
}

// GetPoll retrieves a poll by ID.
func (s *SQLiteStore) GetPoll(ctx context.Context, id string) (*Poll, error) {
	var p Poll
	var correct sql.NullInt64
	var createdAt string
	var closedAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, bot_id, chat_id, question, type, is_anonymous, allows_multiple,
			correct_option_index, explanation, closed, message_seq, created_at, closed_at
		FROM bot_polls WHERE id = ?`, id).Scan(
		&p.ID, &p.BotID, &p.ChatID, &p.Question, &p.Type, &p.IsAnonymous, &p.AllowsMultiple,
		&correct, &p.Explanation, &p.Closed, &p.MessageSeq, &createdAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying poll: %w", err)
	}

	if correct.Valid {
		idx := int(correct.Int64)
		p.CorrectOptionIndex = &idx
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.ClosedAt, err = parseTimePtr(closedAt); err != nil {
		return nil, fmt.Errorf("parsing closed_at: %w", err)
	}
	return &p, nil
}

// GetPollOptions returns the poll's options in index order.
func (s *SQLiteStore) GetPollOptions(ctx context.Context, id string) ([]*PollOption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT poll_id, opt_index, text, voter_count
		FROM bot_poll_options WHERE poll_id = ? ORDER BY opt_index ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("querying poll options: %w", err)
	}
	defer rows.Close()

	var options []*PollOption
	for rows.Next() {
		var o PollOption
		if err := rows.Scan(&o.PollID, &o.Index, &o.Text, &o.VoterCount); err != nil {
			return nil, fmt.Errorf("scanning poll option: %w", err)
		}
		options = append(options, &o)
	}
	return options, rows.Err()
}

// SetPollMessageSeq links the poll to the outgoing message that published it.
func (s *SQLiteStore) SetPollMessageSeq(ctx context.Context, pollID string, seq int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE bot_polls SET message_seq = ? WHERE id = ?`, seq, pollID)
	if err != nil {
		return fmt.Errorf("linking poll message: %w", err)
	}
	return requireRowsAffected(result)
}

// Vote records a vote for an option. For single-answer polls a repeat
// vote from the same voter retracts the previous vote's increment before
// applying the new one, keeping exactly one active vote per voter. The
// whole exchange runs in one transaction so tallies stay consistent
// under concurrent voters.
func (s *SQLiteStore) Vote(ctx context.Context, pollID string, optionIndex int, voterID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning vote transaction: %w", err)
	}
	defer tx.Rollback()

	var closed, allowsMultiple bool
	err = tx.QueryRowContext(ctx,
		`SELECT closed, allows_multiple FROM bot_polls WHERE id = ?`, pollID).
		Scan(&closed, &allowsMultiple)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying poll state: %w", err)
	}
	if closed {
		return ErrPollClosed
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM bot_poll_options WHERE poll_id = ? AND opt_index = ?`,
		pollID, optionIndex).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrInvalidOption
	}
	if err != nil {
		return fmt.Errorf("querying poll option: %w", err)
	}

	if !allowsMultiple {
		var prevIndex int
		err := tx.QueryRowContext(ctx,
			`SELECT opt_index FROM bot_poll_votes WHERE poll_id = ? AND voter_id = ?`,
			pollID, voterID).Scan(&prevIndex)
		switch {
		case err == sql.ErrNoRows:
			// First vote from this voter.
		case err != nil:
			return fmt.Errorf("querying previous vote: %w", err)
		case prevIndex == optionIndex:
			// Re-voting the same option is a no-op.
			return tx.Commit()
		default:
			_, err := tx.ExecContext(ctx, `
				UPDATE bot_poll_options SET voter_count = voter_count - 1
				WHERE poll_id = ? AND opt_index = ? AND voter_count > 0`,
				pollID, prevIndex)
			if err != nil {
				return fmt.Errorf("retracting previous vote: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`DELETE FROM bot_poll_votes WHERE poll_id = ? AND voter_id = ?`,
				pollID, voterID)
			if err != nil {
				return fmt.Errorf("deleting previous vote: %w", err)
			}
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO bot_poll_votes (poll_id, voter_id, opt_index, voted_at)
		VALUES (?, ?, ?, ?)`, pollID, voterID, optionIndex, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("inserting vote: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		// Duplicate vote for the same option on a multiple-answer poll.
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bot_poll_options SET voter_count = voter_count + 1
		WHERE poll_id = ? AND opt_index = ?`, pollID, optionIndex)
	if err != nil {
		return fmt.Errorf("incrementing voter count: %w", err)
	}

	return tx.Commit()
}

// ClosePoll marks the poll closed and returns the final tally. Closing an
// already-closed poll is idempotent. Returns ErrNotFound if the poll does
// not exist or belongs to another bot.
func (s *SQLiteStore) ClosePoll(ctx context.Context, botID, pollID string) ([]*PollOption, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bot_polls SET closed = 1, closed_at = ?
		WHERE id = ? AND bot_id = ?`, fmtTime(time.Now()), pollID, botID)
	if err != nil {
		return nil, fmt.Errorf("closing poll: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return s.GetPollOptions(ctx, pollID)
}
