// ABOUTME: Handlers for message flow: relay, send, edit, delete, long-poll
// ABOUTME: Poll-vote callbacks are intercepted here before reaching the bot

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/worldmates/bot-gateway/internal/auth"
	"github.com/worldmates/bot-gateway/internal/router"
)

type relayUserMessageRequest struct {
	BotID        string `json:"bot_id" validate:"required"`
	ChatID       string `json:"chat_id"`
	ChatType     string `json:"chat_type" validate:"omitempty,oneof=private group channel"`
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

func (g *Gateway) handleRelayUserMessage(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req relayUserMessageRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	// Private chats are keyed by the sender.
	chatID := req.ChatID
	if chatID == "" {
		chatID = id.UserID
	}

	msg, cb, err := g.router.EnqueueIncoming(ctx, req.BotID, id.UserID, chatID,
		req.ChatType, req.Text, req.CallbackData)
	if err != nil {
		return nil, err
	}

	result := map[string]any{"message": newMessageView(msg)}
	if cb != nil {
		result["callback_query_id"] = cb.ID

		// Poll votes are platform-handled: the tap lands in the tally
		// and the bot still receives the callback update.
		handled, voteErr := g.polls.HandleVoteCallback(ctx, id.UserID, cb.Data)
		if voteErr != nil {
			return nil, voteErr
		}
		result["poll_vote_recorded"] = handled
	}
	return result, nil
}

type sendMessageRequest struct {
	ChatID      string `json:"chat_id" validate:"required"`
	ChatType    string `json:"chat_type" validate:"omitempty,oneof=private group channel"`
	Text        string `json:"text"`
	MediaType   string `json:"media_type"`
	MediaURL    string `json:"media_url"`
	MediaData   []byte `json:"media_data"`
	ReplyToSeq  *int64 `json:"reply_to_message_id"`
	ReplyMarkup string `json:"reply_markup"`
	ParseMode   string `json:"parse_mode" validate:"omitempty,oneof=markdown html"`
}

func (g *Gateway) handleSendMessage(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req sendMessageRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	msg, err := g.router.EnqueueOutgoing(ctx, id.Bot, router.OutgoingRequest{
		ChatID:      req.ChatID,
		ChatType:    req.ChatType,
		Text:        req.Text,
		MediaType:   req.MediaType,
		MediaURL:    req.MediaURL,
		MediaData:   req.MediaData,
		ReplyToSeq:  req.ReplyToSeq,
		ReplyMarkup: req.ReplyMarkup,
		ParseMode:   req.ParseMode,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": newMessageView(msg)}, nil
}

type editMessageRequest struct {
	MessageID   int64  `json:"message_id" validate:"required"`
	ChatID      string `json:"chat_id" validate:"required"`
	Text        string `json:"text"`
	ReplyMarkup string `json:"reply_markup"`
	ParseMode   string `json:"parse_mode" validate:"omitempty,oneof=markdown html"`
}

func (g *Gateway) handleEditMessage(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req editMessageRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	msg, err := g.router.EditMessage(ctx, id.Bot, req.ChatID, req.MessageID,
		req.Text, req.ReplyMarkup, req.ParseMode)
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": newMessageView(msg)}, nil
}

type deleteMessageRequest struct {
	MessageID int64  `json:"message_id" validate:"required"`
	ChatID    string `json:"chat_id" validate:"required"`
}

func (g *Gateway) handleDeleteMessage(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req deleteMessageRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	if err := g.router.DeleteMessage(ctx, id.Bot, req.ChatID, req.MessageID); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true}, nil
}

type pollUpdatesRequest struct {
	Offset         int64    `json:"offset" validate:"omitempty,min=0"`
	Limit          int      `json:"limit" validate:"omitempty,min=1,max=100"`
	Timeout        int      `json:"timeout" validate:"omitempty,min=0,max=60"`
	AllowedUpdates []string `json:"allowed_updates" validate:"omitempty,dive,oneof=message command callback_query"`
}

func (g *Gateway) handlePollUpdates(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req pollUpdatesRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	// The filter is per request; the bot's stored webhook filter does
	// not apply to polling.
	updates, err := g.router.PollUpdates(ctx, id.Bot, req.Offset, req.Limit,
		time.Duration(req.Timeout)*time.Second, req.AllowedUpdates)
	if err != nil {
		return nil, err
	}
	return map[string]any{"updates": newMessageViews(updates)}, nil
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id" validate:"required"`
	Text            string `json:"text"`
	ShowAlert       bool   `json:"show_alert"`
}

func (g *Gateway) handleAnswerCallbackQuery(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req answerCallbackRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	cb, err := g.callbacks.Answer(ctx, id.Bot, req.CallbackQueryID, req.Text, req.ShowAlert)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"callback_query_id": cb.ID,
		"answered":          true,
	}, nil
}
