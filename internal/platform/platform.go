// ABOUTME: Interfaces for the external services the gateway collaborates with
// ABOUTME: Message delivery, media upload and realtime notification

package platform

import (
	"context"
)

// DeliveryRequest asks the delivery service to place a bot message into
// a user's or group's chat.
type DeliveryRequest struct {
	BotID       string `json:"bot_id"`
	BotUsername string `json:"bot_username"`
	ChatID      string `json:"chat_id"`
	ChatType    string `json:"chat_type"`
	MessageSeq  int64  `json:"message_seq"`
	Text        string `json:"text"`
	MediaType   string `json:"media_type,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
	ReplyMarkup string `json:"reply_markup,omitempty"`
	Entities    string `json:"entities,omitempty"`
}

// MessageDelivery places outgoing bot messages into user chats. The
// gateway persists first and delivers after; delivery failures are
// logged, not surfaced to the bot.
type MessageDelivery interface {
	Deliver(ctx context.Context, req DeliveryRequest) error
}

// MediaUploader stores inline media payloads and returns a serving URL.
type MediaUploader interface {
	Upload(ctx context.Context, data []byte, mediaType string) (url string, err error)
}

// Event is a realtime notification about bot activity, consumed by the
// platform's socket layer so open clients update without polling.
type Event struct {
	Kind   string `json:"kind"` // "bot_message", "poll_update", "callback_answer"
	BotID  string `json:"bot_id"`
	ChatID string `json:"chat_id"`
	Seq    int64  `json:"seq,omitempty"`
}

// Notifier pushes events to the realtime transport. Implementations
// must not block the caller; dropping events is acceptable.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}
