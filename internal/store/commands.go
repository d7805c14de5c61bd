// ABOUTME: Command catalog persistence for the SQLite store
// ABOUTME: Implements the full-replace set_commands semantics and ordered reads

package store

import (
	"context"
	"fmt"
	"strings"
)

// ReplaceCommands replaces a bot's command catalog wholesale. Entries
// missing a name or description are silently skipped; names are
// lowercased and stripped of a leading slash. Returns how many commands
// were stored.
func (s *SQLiteStore) ReplaceCommands(ctx context.Context, botID string, commands []*Command) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning commands transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bot_commands WHERE bot_id = ?`, botID); err != nil {
		return 0, fmt.Errorf("clearing commands: %w", err)
	}

	order := 0
	for _, cmd := range commands {
		name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cmd.Name)), "/")
		if name == "" || cmd.Description == "" {
			continue
		}
		scope := cmd.Scope
		if scope == "" {
			scope = "all"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO bot_commands (bot_id, name, description, usage_hint, hidden, scope, sort_order)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			botID, name, cmd.Description, cmd.UsageHint, cmd.Hidden, scope, order)
		if err != nil {
			return 0, fmt.Errorf("inserting command %q: %w", name, err)
		}
		order++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing commands: %w", err)
	}

	s.logger.Debug("replaced commands", "bot_id", botID, "count", order)
	return order, nil
}

// ListCommands returns a bot's commands ordered by sort order.
func (s *SQLiteStore) ListCommands(ctx context.Context, botID string, includeHidden bool) ([]*Command, error) {
	query := `
		SELECT bot_id, name, description, usage_hint, hidden, scope, sort_order
		FROM bot_commands
		WHERE bot_id = ?`
	if !includeHidden {
		query += ` AND hidden = 0`
	}
	query += ` ORDER BY sort_order ASC`

	rows, err := s.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var commands []*Command
	for rows.Next() {
		var c Command
		if err := rows.Scan(&c.BotID, &c.Name, &c.Description, &c.UsageHint, &c.Hidden, &c.Scope, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning command row: %w", err)
		}
		commands = append(commands, &c)
	}
	return commands, rows.Err()
}

// CountCommands returns the number of commands registered for a bot.
func (s *SQLiteStore) CountCommands(ctx context.Context, botID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bot_commands WHERE bot_id = ?`, botID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting commands: %w", err)
	}
	return count, nil
}
