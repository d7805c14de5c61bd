// ABOUTME: Webhook Dispatcher: async push of updates to bot webhook URLs
// ABOUTME: Bounded worker pool, HMAC signing, capped retries and per-bot cancellation

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/worldmates/bot-gateway/internal/dedupe"
	"github.com/worldmates/bot-gateway/internal/metrics"
	"github.com/worldmates/bot-gateway/internal/store"
)

// ErrInvalidWebhookURL is returned by set_webhook for non-HTTPS URLs.
var ErrInvalidWebhookURL = errors.New("webhook url must be https")

const (
	maxAttempts   = 5
	userAgent     = "WorldMates-BotGateway/1.0"
	responseLimit = 4 << 10 // stored response body cap
)

// backoffSchedule is the wait before attempt n+1.
var backoffSchedule = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
}

// ValidateURL enforces the HTTPS-only webhook policy.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ErrInvalidWebhookURL
	}
	return nil
}

// job is one delivery handed to the worker pool.
type job struct {
	deliveryID string
	botID      string
	secret     string
}

// Dispatcher pushes incoming updates to bot webhooks.
type Dispatcher struct {
	store   store.Store
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger

	workers int
	jobs    chan job

	// cancels tracks in-flight deliveries per bot so disabling a
	// webhook aborts pending retries, not just future pushes.
	mu      sync.Mutex
	cancels map[string]map[string]context.CancelFunc

	// seen guards against enqueueing the same update twice, e.g. a
	// retried relay racing a webhook re-enable.
	seen *dedupe.Cache

	// backoff is variable for tests.
	backoff []time.Duration
}

// NewDispatcher creates a dispatcher with the given worker count.
func NewDispatcher(s store.Store, m *metrics.Metrics, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		store:   s,
		client:  &http.Client{Timeout: 10 * time.Second},
		metrics: m,
		logger:  logger.With("component", "webhook"),
		workers: workers,
		jobs:    make(chan job, 256),
		cancels: make(map[string]map[string]context.CancelFunc),
		seen:    dedupe.New(5*time.Minute, 8192),
		backoff: backoffSchedule,
	}
}

// Run consumes delivery jobs until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.seen.Close()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case j := <-d.jobs:
					d.process(ctx, j)
				}
			}
		})
	}
	return g.Wait()
}

// Push enqueues a webhook delivery for an incoming update. No-op when
// the bot has no enabled webhook or the update type is filtered out.
// Implements the router's Pusher.
func (d *Dispatcher) Push(bot *store.Bot, msg *store.Message) {
	if !bot.Webhook.Enabled || bot.Webhook.URL == "" {
		return
	}
	if !typeAllowed(msg.UpdateType(), bot.Webhook.AllowedUpdates) {
		return
	}
	if d.seen.CheckAndMark(fmt.Sprintf("%s|%d", bot.ID, msg.Seq)) {
		d.logger.Debug("duplicate webhook push suppressed", "bot_id", bot.ID, "seq", msg.Seq)
		return
	}

	payload, err := buildPayload(msg)
	if err != nil {
		d.logger.Error("encoding webhook payload", "bot_id", bot.ID, "seq", msg.Seq, "error", err)
		return
	}

	now := time.Now().UTC()
	delivery := &store.WebhookDelivery{
		ID:          uuid.NewString(),
		BotID:       bot.ID,
		UpdateSeq:   msg.Seq,
		EventType:   msg.UpdateType(),
		URL:         bot.Webhook.URL,
		Payload:     string(payload),
		Status:      store.DeliveryStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.store.CreateDelivery(context.Background(), delivery); err != nil {
		d.logger.Error("recording webhook delivery", "bot_id", bot.ID, "error", err)
		return
	}

	select {
	case d.jobs <- job{deliveryID: delivery.ID, botID: bot.ID, secret: bot.Webhook.Secret}:
	default:
		// Queue full: mark failed rather than block the enqueue path.
		delivery.Status = store.DeliveryStatusFailed
		delivery.ResponseBody = "dispatch queue overflow"
		if err := d.store.UpdateDelivery(context.Background(), delivery); err != nil {
			d.logger.Error("marking overflow delivery failed", "bot_id", bot.ID, "error", err)
		}
		d.metrics.IncWebhook("overflow")
	}
}

func typeAllowed(updateType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, t := range allowed {
		if t == updateType {
			return true
		}
	}
	return false
}

// register tracks a cancellable delivery; returns the derived context.
func (d *Dispatcher) register(ctx context.Context, botID, deliveryID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	if d.cancels[botID] == nil {
		d.cancels[botID] = make(map[string]context.CancelFunc)
	}
	d.cancels[botID][deliveryID] = cancel
	d.mu.Unlock()

	return ctx, func() {
		cancel()
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.cancels[botID], deliveryID)
		if len(d.cancels[botID]) == 0 {
			delete(d.cancels, botID)
		}
	}
}

// CancelBot aborts every in-flight delivery for the bot. Called when
// the webhook is disabled or the bot deleted.
func (d *Dispatcher) CancelBot(botID string) {
	d.mu.Lock()
	cancels := d.cancels[botID]
	delete(d.cancels, botID)
	d.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		d.logger.Info("cancelled in-flight webhook deliveries", "bot_id", botID, "count", len(cancels))
	}
}

// process runs one delivery through the retry state machine:
// pending -> delivered, or pending -> retrying -> ... -> failed after
// maxAttempts. Cancellation (shutdown or CancelBot) leaves the record
// in whatever state it reached.
func (d *Dispatcher) process(ctx context.Context, j job) {
	ctx, done := d.register(ctx, j.botID, j.deliveryID)
	defer done()

	delivery, err := d.store.GetDelivery(ctx, j.deliveryID)
	if err != nil {
		d.logger.Error("loading webhook delivery", "delivery_id", j.deliveryID, "error", err)
		return
	}

	for delivery.Attempts < delivery.MaxAttempts {
		delivery.Attempts++

		code, body, attemptErr := d.attempt(ctx, delivery, j.secret)
		delivery.ResponseCode = code
		delivery.ResponseBody = body

		if attemptErr == nil && code >= 200 && code < 300 {
			now := time.Now().UTC()
			delivery.Status = store.DeliveryStatusDelivered
			delivery.DeliveredAt = &now
			delivery.NextRetryAt = nil
			d.update(delivery)
			// The update is now with the bot; take it out of the poll
			// queue so it is not handed out a second time.
			d.markProcessed(delivery.BotID, delivery.UpdateSeq)
			d.metrics.IncWebhook("delivered")
			return
		}
		if attemptErr != nil {
			delivery.ResponseBody = attemptErr.Error()
		}

		if delivery.Attempts >= delivery.MaxAttempts {
			break
		}

		wait := d.backoff[min(delivery.Attempts-1, len(d.backoff)-1)]
		next := time.Now().UTC().Add(wait)
		delivery.Status = store.DeliveryStatusRetrying
		delivery.NextRetryAt = &next
		d.update(delivery)
		d.metrics.IncWebhook("retried")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	delivery.Status = store.DeliveryStatusFailed
	delivery.NextRetryAt = nil
	d.update(delivery)
	d.metrics.IncWebhook("failed")
	d.logger.Warn("webhook delivery failed terminally",
		"bot_id", delivery.BotID, "delivery_id", delivery.ID,
		"attempts", delivery.Attempts, "code", delivery.ResponseCode)
}

// attempt performs one signed POST to the webhook URL.
func (d *Dispatcher) attempt(ctx context.Context, delivery *store.WebhookDelivery, secret string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		delivery.URL, strings.NewReader(delivery.Payload))
	if err != nil {
		return 0, "", fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Bot-Id", delivery.BotID)
	req.Header.Set("X-Bot-Signature", "sha256="+sign(delivery.Payload, secret))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	return resp.StatusCode, string(body), nil
}

// update persists delivery state, using a fresh context so records are
// written even while the delivery context is being cancelled.
func (d *Dispatcher) update(delivery *store.WebhookDelivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.UpdateDelivery(ctx, delivery); err != nil {
		d.logger.Error("updating webhook delivery", "delivery_id", delivery.ID, "error", err)
	}
}

// markProcessed flags the delivered update, with a fresh context for
// the same reason as update.
func (d *Dispatcher) markProcessed(botID string, seq int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.MarkProcessed(ctx, botID, seq); err != nil {
		d.logger.Error("marking update processed", "bot_id", botID, "seq", seq, "error", err)
	}
}

// sign computes the hex HMAC-SHA256 of the payload under the bot's
// webhook secret.
func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// buildPayload shapes the update JSON pushed to the bot.
func buildPayload(msg *store.Message) ([]byte, error) {
	update := map[string]any{
		"update_id": msg.Seq,
		"type":      msg.UpdateType(),
		"message": map[string]any{
			"message_id": msg.Seq,
			"chat": map[string]any{
				"id":   msg.ChatID,
				"type": msg.ChatType,
			},
			"text": msg.Text,
			"date": msg.CreatedAt.Unix(),
		},
	}
	if msg.IsCommand {
		update["command"] = map[string]any{
			"name": msg.CommandName,
			"args": msg.CommandArgs,
		}
	}
	if msg.CallbackData != "" {
		update["callback_data"] = msg.CallbackData
	}
	return json.Marshal(update)
}
