// ABOUTME: Handlers for poll creation and closing
// ABOUTME: Votes themselves arrive through relay_user_message callbacks

package gateway

import (
	"context"
	"net/http"

	"github.com/worldmates/bot-gateway/internal/auth"
	"github.com/worldmates/bot-gateway/internal/polls"
)

type sendPollRequest struct {
	ChatID                string   `json:"chat_id" validate:"required"`
	Question              string   `json:"question" validate:"required"`
	Options               []string `json:"options" validate:"required"`
	Type                  string   `json:"type" validate:"omitempty,oneof=regular quiz"`
	IsAnonymous           bool     `json:"is_anonymous"`
	AllowsMultipleAnswers bool     `json:"allows_multiple_answers"`
	CorrectOptionIndex    *int     `json:"correct_option_index"`
	Explanation           string   `json:"explanation"`
}

func (g *Gateway) handleSendPoll(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req sendPollRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	poll, msg, err := g.polls.Create(ctx, id.Bot, polls.CreateRequest{
		ChatID:             req.ChatID,
		Question:           req.Question,
		Options:            req.Options,
		Type:               req.Type,
		IsAnonymous:        req.IsAnonymous,
		AllowsMultiple:     req.AllowsMultipleAnswers,
		CorrectOptionIndex: req.CorrectOptionIndex,
		Explanation:        req.Explanation,
	})
	if err != nil {
		return nil, err
	}

	options, err := g.store.GetPollOptions(ctx, poll.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"poll":    newPollView(poll, options),
		"message": newMessageView(msg),
	}, nil
}

type stopPollRequest struct {
	PollID string `json:"poll_id" validate:"required"`
}

func (g *Gateway) handleStopPoll(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req stopPollRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	poll, options, err := g.polls.Stop(ctx, id.Bot, req.PollID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"poll": newPollView(poll, options)}, nil
}
