// ABOUTME: Webhook delivery log persistence for the SQLite store
// ABOUTME: Tracks per-attempt state for get_webhook_info and the retention job

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const deliveryColumns = `id, bot_id, update_seq, event_type, url, payload, status, attempts,
	max_attempts, response_code, response_body, next_retry_at, delivered_at, created_at, updated_at`

func scanDelivery(row rowScanner) (*WebhookDelivery, error) {
	var d WebhookDelivery
	var nextRetry, deliveredAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&d.ID, &d.BotID, &d.UpdateSeq, &d.EventType, &d.URL, &d.Payload, &d.Status,
		&d.Attempts, &d.MaxAttempts, &d.ResponseCode, &d.ResponseBody,
		&nextRetry, &deliveredAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning delivery: %w", err)
	}

	if d.NextRetryAt, err = parseTimePtr(nextRetry); err != nil {
		return nil, fmt.Errorf("parsing next_retry_at: %w", err)
	}
	if d.DeliveredAt, err = parseTimePtr(deliveredAt); err != nil {
		return nil, fmt.Errorf("parsing delivered_at: %w", err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

// GetDelivery retrieves one delivery record by id.
func (s *SQLiteStore) GetDelivery(ctx context.Context, id string) (*WebhookDelivery, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = ?`, id)
	return scanDelivery(row)
}

// CreateDelivery inserts a new webhook delivery record.
func (s *SQLiteStore) CreateDelivery(ctx context.Context, d *WebhookDelivery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, bot_id, update_seq, event_type, url, payload,
			status, attempts, max_attempts, response_code, response_body, next_retry_at,
			delivered_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.BotID, d.UpdateSeq, d.EventType, d.URL, d.Payload, d.Status, d.Attempts,
		d.MaxAttempts, d.ResponseCode, d.ResponseBody, fmtTimePtr(d.NextRetryAt),
		fmtTimePtr(d.DeliveredAt), fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// UpdateDelivery persists the outcome of a delivery attempt.
func (s *SQLiteStore) UpdateDelivery(ctx context.Context, d *WebhookDelivery) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = ?, attempts = ?, response_code = ?, response_body = ?,
			next_retry_at = ?, delivered_at = ?, updated_at = ?
		WHERE id = ?`,
		d.Status, d.Attempts, d.ResponseCode, d.ResponseBody,
		fmtTimePtr(d.NextRetryAt), fmtTimePtr(d.DeliveredAt), fmtTime(time.Now()), d.ID)
	if err != nil {
		return fmt.Errorf("updating delivery: %w", err)
	}
	return requireRowsAffected(result)
}

// CountPendingDeliveries counts deliveries still pending or retrying for a bot.
func (s *SQLiteStore) CountPendingDeliveries(ctx context.Context, botID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM webhook_deliveries
		WHERE bot_id = ? AND status IN ('pending', 'retrying')`, botID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pending deliveries: %w", err)
	}
	return count, nil
}

// LastFailedDelivery returns the most recent terminally-failed delivery
// for a bot, or ErrNotFound when there is none.
func (s *SQLiteStore) LastFailedDelivery(ctx context.Context, botID string) (*WebhookDelivery, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE bot_id = ? AND status = 'failed'
		ORDER BY updated_at DESC LIMIT 1`, botID)
	return scanDelivery(row)
}

// PurgeDeliveriesBefore deletes terminal delivery records older than the
// cutoff. Used by the retention job.
func (s *SQLiteStore) PurgeDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM webhook_deliveries
		WHERE status IN ('delivered', 'failed') AND created_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purging deliveries: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Debug("purged webhook deliveries", "count", rows)
	}
	return rows, nil
}
