// ABOUTME: Handlers for webhook configuration and delivery status
// ABOUTME: Disabling a webhook cancels the bot's in-flight retries

package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/worldmates/bot-gateway/internal/auth"
	"github.com/worldmates/bot-gateway/internal/store"
	"github.com/worldmates/bot-gateway/internal/webhook"
)

type setWebhookRequest struct {
	URL            string   `json:"url" validate:"required"`
	Secret         string   `json:"secret"`
	MaxConnections int      `json:"max_connections" validate:"omitempty,min=1,max=100"`
	AllowedUpdates []string `json:"allowed_updates" validate:"omitempty,dive,oneof=message command callback_query"`
}

func (g *Gateway) handleSetWebhook(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req setWebhookRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}
	if err := webhook.ValidateURL(req.URL); err != nil {
		return nil, err
	}

	cfg := store.WebhookConfig{
		URL:            req.URL,
		Secret:         req.Secret,
		Enabled:        true,
		MaxConnections: req.MaxConnections,
		AllowedUpdates: req.AllowedUpdates,
	}
	if err := g.store.SetWebhook(ctx, id.Bot.ID, cfg); err != nil {
		return nil, err
	}
	return map[string]any{"url": req.URL, "enabled": true}, nil
}

func (g *Gateway) handleDeleteWebhook(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	if err := g.store.SetWebhook(ctx, id.Bot.ID, store.WebhookConfig{}); err != nil {
		return nil, err
	}
	// Abort retries already in flight, not just future pushes.
	g.dispatcher.CancelBot(id.Bot.ID)

	return map[string]any{"enabled": false}, nil
}

func (g *Gateway) handleGetWebhookInfo(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	// Re-read: the identity's bot snapshot predates any set_webhook in
	// this request's session.
	bot, err := g.store.GetBot(ctx, id.Bot.ID)
	if err != nil {
		return nil, err
	}

	pending, err := g.store.CountPendingDeliveries(ctx, bot.ID)
	if err != nil {
		return nil, err
	}

	info := map[string]any{
		"url":                  bot.Webhook.URL,
		"enabled":              bot.Webhook.Enabled,
		"max_connections":      bot.Webhook.MaxConnections,
		"allowed_updates":      bot.Webhook.AllowedUpdates,
		"pending_update_count": pending,
	}

	last, err := g.store.LastFailedDelivery(ctx, bot.ID)
	switch {
	case err == nil:
		info["last_error_date"] = last.UpdatedAt.Format(time.RFC3339)
		info["last_error_message"] = last.ResponseBody
	case errors.Is(err, store.ErrNotFound):
		// No failures on record.
	default:
		return nil, err
	}
	return info, nil
}
