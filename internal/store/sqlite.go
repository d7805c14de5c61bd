// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides schema creation and shared scan/format helpers

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between the claim transaction and concurrent appends.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS bots (
			id                          TEXT PRIMARY KEY,
			owner_id                    TEXT NOT NULL,
			token_digest                TEXT NOT NULL,
			username                    TEXT NOT NULL UNIQUE,
			display_name                TEXT NOT NULL,
			description                 TEXT NOT NULL DEFAULT '',
			about                       TEXT NOT NULL DEFAULT '',
			category                    TEXT NOT NULL DEFAULT 'general',
			avatar                      TEXT NOT NULL DEFAULT '',
			tags                        TEXT NOT NULL DEFAULT '',
			status                      TEXT NOT NULL DEFAULT 'active',
			is_public                   INTEGER NOT NULL DEFAULT 1,
			can_join_groups             INTEGER NOT NULL DEFAULT 1,
			can_read_all_group_messages INTEGER NOT NULL DEFAULT 0,
			supports_commands           INTEGER NOT NULL DEFAULT 1,
			is_inline                   INTEGER NOT NULL DEFAULT 0,
			webhook_url                 TEXT NOT NULL DEFAULT '',
			webhook_secret              TEXT NOT NULL DEFAULT '',
			webhook_enabled             INTEGER NOT NULL DEFAULT 0,
			webhook_max_connections     INTEGER NOT NULL DEFAULT 40,
			webhook_allowed_updates     TEXT NOT NULL DEFAULT '',
			rate_limit_per_second       INTEGER NOT NULL DEFAULT 0,
			rate_limit_per_minute       INTEGER NOT NULL DEFAULT 0,
			messages_sent               INTEGER NOT NULL DEFAULT 0,
			messages_received           INTEGER NOT NULL DEFAULT 0,
			total_users                 INTEGER NOT NULL DEFAULT 0,
			active_users_24h            INTEGER NOT NULL DEFAULT 0,
			created_at                  TEXT NOT NULL,
			updated_at                  TEXT NOT NULL,
			last_active_at              TEXT,

			CHECK (status IN ('active', 'suspended', 'deleted'))
		);

		CREATE INDEX IF NOT EXISTS idx_bots_owner ON bots(owner_id);
		CREATE INDEX IF NOT EXISTS idx_bots_username ON bots(username);

		CREATE TABLE IF NOT EXISTS bot_commands (
			bot_id      TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL,
			usage_hint  TEXT NOT NULL DEFAULT '',
			hidden      INTEGER NOT NULL DEFAULT 0,
			scope       TEXT NOT NULL DEFAULT 'all',
			sort_order  INTEGER NOT NULL DEFAULT 0,

			PRIMARY KEY (bot_id, name)
		);

		CREATE TABLE IF NOT EXISTS bot_messages (
			bot_id        TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			seq           INTEGER NOT NULL,
			chat_id       TEXT NOT NULL,
			chat_type     TEXT NOT NULL DEFAULT 'private',
			direction     TEXT NOT NULL,
			text          TEXT NOT NULL DEFAULT '',
			media_type    TEXT NOT NULL DEFAULT '',
			media_url     TEXT NOT NULL DEFAULT '',
			reply_to_seq  INTEGER,
			reply_markup  TEXT NOT NULL DEFAULT '',
			entities      TEXT NOT NULL DEFAULT '',
			callback_data TEXT NOT NULL DEFAULT '',
			is_command    INTEGER NOT NULL DEFAULT 0,
			command_name  TEXT NOT NULL DEFAULT '',
			command_args  TEXT NOT NULL DEFAULT '',
			processed     INTEGER NOT NULL DEFAULT 0,
			processed_at  TEXT,
			created_at    TEXT NOT NULL,

			PRIMARY KEY (bot_id, seq),
			CHECK (direction IN ('incoming', 'outgoing'))
		);

		CREATE INDEX IF NOT EXISTS idx_bot_messages_unprocessed
			ON bot_messages(bot_id, processed, seq) WHERE direction = 'incoming';

		CREATE TABLE IF NOT EXISTS bot_users (
			bot_id               TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			user_id              TEXT NOT NULL,
			blocked              INTEGER NOT NULL DEFAULT 0,
			state                TEXT NOT NULL DEFAULT '',
			state_data           TEXT NOT NULL DEFAULT '',
			custom_data          TEXT NOT NULL DEFAULT '',
			messages_count       INTEGER NOT NULL DEFAULT 0,
			first_interaction_at TEXT NOT NULL,
			last_interaction_at  TEXT NOT NULL,

			PRIMARY KEY (bot_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS bot_polls (
			id                   TEXT PRIMARY KEY,
			bot_id               TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			chat_id              TEXT NOT NULL,
			question             TEXT NOT NULL,
			type                 TEXT NOT NULL DEFAULT 'regular',
			is_anonymous         INTEGER NOT NULL DEFAULT 1,
			allows_multiple      INTEGER NOT NULL DEFAULT 0,
			correct_option_index INTEGER,
			explanation          TEXT NOT NULL DEFAULT '',
			closed               INTEGER NOT NULL DEFAULT 0,
			message_seq          INTEGER NOT NULL DEFAULT 0,
			created_at           TEXT NOT NULL,
			closed_at            TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_bot_polls_bot ON bot_polls(bot_id);

		CREATE TABLE IF NOT EXISTS bot_poll_options (
			poll_id     TEXT NOT NULL REFERENCES bot_polls(id) ON DELETE CASCADE,
			opt_index   INTEGER NOT NULL,
			text        TEXT NOT NULL,
			voter_count INTEGER NOT NULL DEFAULT 0,

			PRIMARY KEY (poll_id, opt_index)
		);

		CREATE TABLE IF NOT EXISTS bot_poll_votes (
			poll_id   TEXT NOT NULL REFERENCES bot_polls(id) ON DELETE CASCADE,
			voter_id  TEXT NOT NULL,
			opt_index INTEGER NOT NULL,
			voted_at  TEXT NOT NULL,

			PRIMARY KEY (poll_id, voter_id, opt_index)
		);

		CREATE TABLE IF NOT EXISTS bot_callbacks (
			id           TEXT PRIMARY KEY,
			bot_id       TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			user_id      TEXT NOT NULL,
			message_seq  INTEGER NOT NULL,
			data         TEXT NOT NULL,
			answered     INTEGER NOT NULL DEFAULT 0,
			answer_text  TEXT NOT NULL DEFAULT '',
			show_alert   INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,
			answered_at  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_bot_callbacks_bot ON bot_callbacks(bot_id);

		CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id            TEXT PRIMARY KEY,
			bot_id        TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			update_seq    INTEGER NOT NULL,
			event_type    TEXT NOT NULL,
			url           TEXT NOT NULL,
			payload       TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'pending',
			attempts      INTEGER NOT NULL DEFAULT 0,
			max_attempts  INTEGER NOT NULL DEFAULT 5,
			response_code INTEGER NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			next_retry_at TEXT,
			delivered_at  TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (status IN ('pending', 'retrying', 'delivered', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_bot
			ON webhook_deliveries(bot_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// fmtTime formats a time for storage
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// fmtTimePtr formats an optional time for storage, nil stays NULL
func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

// parseTime parses a stored RFC3339 timestamp
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// parseTimePtr parses an optional stored timestamp
func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
