// ABOUTME: Bot persistence for the SQLite store
// ABOUTME: Covers bot CRUD, token digests, webhook config, search and counters

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const botColumns = `id, owner_id, token_digest, username, display_name, description, about,
	category, avatar, tags, status, is_public, can_join_groups, can_read_all_group_messages,
	supports_commands, is_inline, webhook_url, webhook_secret, webhook_enabled,
	webhook_max_connections, webhook_allowed_updates, rate_limit_per_second,
	rate_limit_per_minute, messages_sent, messages_received, total_users, active_users_24h,
	created_at, updated_at, last_active_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (*Bot, error) {
	var b Bot
	var allowedJSON string
	var createdAt, updatedAt string
	var lastActive sql.NullString

	err := row.Scan(
		&b.ID, &b.OwnerID, &b.TokenDigest, &b.Username, &b.DisplayName, &b.Description,
		&b.About, &b.Category, &b.Avatar, &b.Tags, &b.Status, &b.IsPublic, &b.CanJoinGroups,
		&b.CanReadAllGroupMessages, &b.SupportsCommands, &b.IsInline, &b.Webhook.URL,
		&b.Webhook.Secret, &b.Webhook.Enabled, &b.Webhook.MaxConnections, &allowedJSON,
		&b.RateLimitPerSecond, &b.RateLimitPerMinute, &b.MessagesSent, &b.MessagesReceived,
		&b.TotalUsers, &b.ActiveUsers24h, &createdAt, &updatedAt, &lastActive,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning bot: %w", err)
	}

	if allowedJSON != "" {
		if err := json.Unmarshal([]byte(allowedJSON), &b.Webhook.AllowedUpdates); err != nil {
			return nil, fmt.Errorf("parsing allowed updates: %w", err)
		}
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if b.LastActiveAt, err = parseTimePtr(lastActive); err != nil {
		return nil, fmt.Errorf("parsing last_active_at: %w", err)
	}
	return &b, nil
}

func marshalAllowedUpdates(allowed []string) (string, error) {
	if len(allowed) == 0 {
		return "", nil
	}
	data, err := json.Marshal(allowed)
	if err != nil {
		return "", fmt.Errorf("encoding allowed updates: %w", err)
	}
	return string(data), nil
}

// CreateBot inserts a new bot. Returns ErrDuplicateUsername when the
// username is already taken.
func (s *SQLiteStore) CreateBot(ctx context.Context, bot *Bot) error {
	allowedJSON, err := marshalAllowedUpdates(bot.Webhook.AllowedUpdates)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bots (id, owner_id, token_digest, username, display_name, description,
			about, category, avatar, tags, status, is_public, can_join_groups,
			can_read_all_group_messages, supports_commands, is_inline, webhook_url,
			webhook_secret, webhook_enabled, webhook_max_connections, webhook_allowed_updates,
			rate_limit_per_second, rate_limit_per_minute, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		bot.ID, bot.OwnerID, bot.TokenDigest, bot.Username, bot.DisplayName, bot.Description,
		bot.About, bot.Category, bot.Avatar, bot.Tags, bot.Status, bot.IsPublic,
		bot.CanJoinGroups, bot.CanReadAllGroupMessages, bot.SupportsCommands, bot.IsInline,
		bot.Webhook.URL, bot.Webhook.Secret, bot.Webhook.Enabled, bot.Webhook.MaxConnections,
		allowedJSON, bot.RateLimitPerSecond, bot.RateLimitPerMinute,
		fmtTime(bot.CreatedAt), fmtTime(bot.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("inserting bot: %w", err)
	}

	s.logger.Debug("created bot", "id", bot.ID, "username", bot.Username)
	return nil
}

// GetBot retrieves a bot by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetBot(ctx context.Context, id string) (*Bot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+botColumns+` FROM bots WHERE id = ?`, id)
	return scanBot(row)
}

// GetBotByUsername retrieves a bot by its unique username.
func (s *SQLiteStore) GetBotByUsername(ctx context.Context, username string) (*Bot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+botColumns+` FROM bots WHERE username = ?`, username)
	return scanBot(row)
}

// UpdateBot updates the mutable bot fields. Returns ErrNotFound if the
// bot doesn't exist.
func (s *SQLiteStore) UpdateBot(ctx context.Context, bot *Bot) error {
	query := `
		UPDATE bots
		SET display_name = ?, description = ?, about = ?, category = ?, avatar = ?, tags = ?,
			status = ?, is_public = ?, can_join_groups = ?, can_read_all_group_messages = ?,
			supports_commands = ?, is_inline = ?, rate_limit_per_second = ?,
			rate_limit_per_minute = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		bot.DisplayName, bot.Description, bot.About, bot.Category, bot.Avatar, bot.Tags,
		bot.Status, bot.IsPublic, bot.CanJoinGroups, bot.CanReadAllGroupMessages,
		bot.SupportsCommands, bot.IsInline, bot.RateLimitPerSecond, bot.RateLimitPerMinute,
		fmtTime(time.Now()), bot.ID,
	)
	if err != nil {
		return fmt.Errorf("updating bot: %w", err)
	}
	return requireRowsAffected(result)
}

// SetBotTokenDigest replaces the stored token digest in a single UPDATE,
// so the old token is rejected as soon as the call returns.
func (s *SQLiteStore) SetBotTokenDigest(ctx context.Context, id, digest string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE bots SET token_digest = ?, updated_at = ? WHERE id = ?`,
		digest, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating token digest: %w", err)
	}
	return requireRowsAffected(result)
}

// SetWebhook replaces the bot's webhook configuration.
func (s *SQLiteStore) SetWebhook(ctx context.Context, id string, cfg WebhookConfig) error {
	allowedJSON, err := marshalAllowedUpdates(cfg.AllowedUpdates)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE bots
		SET webhook_url = ?, webhook_secret = ?, webhook_enabled = ?,
			webhook_max_connections = ?, webhook_allowed_updates = ?, updated_at = ?
		WHERE id = ?`,
		cfg.URL, cfg.Secret, cfg.Enabled, cfg.MaxConnections, allowedJSON,
		fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating webhook config: %w", err)
	}
	return requireRowsAffected(result)
}

// CountBotsByOwner returns how many bots an owner has registered.
func (s *SQLiteStore) CountBotsByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bots WHERE owner_id = ?`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting bots: %w", err)
	}
	return count, nil
}

// ListBotsByOwner returns an owner's bots, newest first.
func (s *SQLiteStore) ListBotsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Bot, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+botColumns+` FROM bots WHERE owner_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying bots: %w", err)
	}
	defer rows.Close()
	return collectBots(rows)
}

// SearchBots searches public, active bots by username, display name,
// description or tags, most-used first.
func (s *SQLiteStore) SearchBots(ctx context.Context, query, category string, limit, offset int) ([]*Bot, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	where := `status = 'active' AND is_public = 1`
	args := []any{}
	if query != "" {
		like := "%" + query + "%"
		where += ` AND (username LIKE ? OR display_name LIKE ? OR description LIKE ? OR tags LIKE ?)`
		args = append(args, like, like, like, like)
	}
	if category != "" {
		where += ` AND category = ?`
		args = append(args, category)
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+botColumns+` FROM bots WHERE `+where+
			` ORDER BY total_users DESC, created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("searching bots: %w", err)
	}
	defer rows.Close()
	return collectBots(rows)
}

// ListBotCategories returns category facets over public active bots.
func (s *SQLiteStore) ListBotCategories(ctx context.Context) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) AS count
		FROM bots
		WHERE status = 'active' AND is_public = 1
		GROUP BY category
		ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var cats []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning category row: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// DeleteBot removes the bot and all dependent rows in one transaction.
// Foreign keys cascade commands, messages, users, polls, callbacks and
// webhook logs; the explicit deletes keep the cascade visible and make
// a partial re-run idempotent.
func (s *SQLiteStore) DeleteBot(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"bot_commands", "bot_messages", "bot_users", "bot_callbacks", "webhook_deliveries",
	} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE bot_id = ?`, id); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	// Poll options and votes cascade from bot_polls.
	if _, err := tx.ExecContext(ctx, `DELETE FROM bot_polls WHERE bot_id = ?`, id); err != nil {
		return fmt.Errorf("deleting polls: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM bots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting bot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Info("deleted bot", "id", id)
	return nil
}

// BumpMessagesReceived increments the received counter and touches activity.
func (s *SQLiteStore) BumpMessagesReceived(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bots SET messages_received = messages_received + 1, last_active_at = ?
		WHERE id = ?`, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("bumping messages_received: %w", err)
	}
	return nil
}

// BumpMessagesSent increments the sent counter and touches activity.
func (s *SQLiteStore) BumpMessagesSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bots SET messages_sent = messages_sent + 1, last_active_at = ?
		WHERE id = ?`, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("bumping messages_sent: %w", err)
	}
	return nil
}

func collectBots(rows *sql.Rows) ([]*Bot, error) {
	var bots []*Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

func requireRowsAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
