// ABOUTME: Handlers for per-user relationship reads and FSM state
// ABOUTME: State is freeform; the gateway only validates presence of the user id

package gateway

import (
	"context"
	"net/http"

	"github.com/worldmates/bot-gateway/internal/auth"
)

type userIDRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (g *Gateway) handleGetChatMember(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req userIDRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	member, err := g.userstate.GetChatMember(ctx, id.Bot, req.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"member": newChatMemberView(member)}, nil
}

type setUserStateRequest struct {
	UserID    string  `json:"user_id" validate:"required"`
	State     *string `json:"state"`
	StateData *string `json:"state_data"`
}

func (g *Gateway) handleSetUserState(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req setUserStateRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	if err := g.userstate.SetState(ctx, id.Bot, req.UserID, req.State, req.StateData); err != nil {
		return nil, err
	}
	return map[string]any{"updated": true}, nil
}

func (g *Gateway) handleGetUserState(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req userIDRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	state, stateData, err := g.userstate.GetState(ctx, id.Bot, req.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"state": state, "state_data": stateData}, nil
}
