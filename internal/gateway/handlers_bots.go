// ABOUTME: Handlers for bot lifecycle, command catalog and public reads
// ABOUTME: Owner-session operations go through the registry's ownership checks

package gateway

import (
	"context"
	"net/http"

	"github.com/worldmates/bot-gateway/internal/auth"
	"github.com/worldmates/bot-gateway/internal/registry"
	"github.com/worldmates/bot-gateway/internal/store"
)

type registerBotRequest struct {
	Username    string `json:"username" validate:"required"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	About       string `json:"about"`
	Category    string `json:"category"`
	Avatar      string `json:"avatar"`
	Tags        string `json:"tags"`
	IsPublic    bool   `json:"is_public"`
}

func (g *Gateway) handleRegisterBot(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req registerBotRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	bot, token, err := g.registry.Register(ctx, id.UserID, registry.Registration{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Description: req.Description,
		About:       req.About,
		Category:    req.Category,
		Avatar:      req.Avatar,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		return nil, err
	}

	// The token appears in this response and never again.
	return map[string]any{
		"bot":   newBotView(bot),
		"token": token,
	}, nil
}

type listMyBotsRequest struct {
	Limit  int `json:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `json:"offset" validate:"omitempty,min=0"`
}

func (g *Gateway) handleListMyBots(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req listMyBotsRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}
	if req.Limit == 0 {
		req.Limit = 50
	}

	summaries, total, err := g.registry.ListMyBots(ctx, id.UserID, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}

	bots := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		bots = append(bots, map[string]any{
			"bot":           newBotView(s.Bot),
			"command_count": s.CommandCount,
		})
	}
	return map[string]any{"bots": bots, "total": total}, nil
}

type updateBotRequest struct {
	BotID              string  `json:"bot_id" validate:"required"`
	DisplayName        *string `json:"display_name"`
	Description        *string `json:"description"`
	About              *string `json:"about"`
	Category           *string `json:"category"`
	Avatar             *string `json:"avatar"`
	Tags               *string `json:"tags"`
	IsPublic           *bool   `json:"is_public"`
	CanJoinGroups      *bool   `json:"can_join_groups"`
	SupportsCommands   *bool   `json:"supports_commands"`
	IsInline           *bool   `json:"is_inline"`
	RateLimitPerSecond *int    `json:"rate_limit_per_second" validate:"omitempty,min=1"`
	RateLimitPerMinute *int    `json:"rate_limit_per_minute" validate:"omitempty,min=1"`
}

func (g *Gateway) handleUpdateBot(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req updateBotRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	bot, err := g.registry.UpdateBot(ctx, id.UserID, req.BotID, registry.Update{
		DisplayName:        req.DisplayName,
		Description:        req.Description,
		About:              req.About,
		Category:           req.Category,
		Avatar:             req.Avatar,
		Tags:               req.Tags,
		IsPublic:           req.IsPublic,
		CanJoinGroups:      req.CanJoinGroups,
		SupportsCommands:   req.SupportsCommands,
		IsInline:           req.IsInline,
		RateLimitPerSecond: req.RateLimitPerSecond,
		RateLimitPerMinute: req.RateLimitPerMinute,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"bot": newBotView(bot)}, nil
}

type botIDRequest struct {
	BotID string `json:"bot_id" validate:"required"`
}

func (g *Gateway) handleDeleteBot(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req botIDRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	if err := g.registry.DeleteBot(ctx, id.UserID, req.BotID); err != nil {
		return nil, err
	}
	// Everything webhook-related dies with the bot.
	g.dispatcher.CancelBot(req.BotID)
	g.router.Wake(req.BotID)
	g.router.ForgetBot(req.BotID)

	return map[string]any{"deleted": true}, nil
}

func (g *Gateway) handleRotateToken(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req botIDRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	token, err := g.registry.RotateToken(ctx, id.UserID, req.BotID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"token": token}, nil
}

type commandPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UsageHint   string `json:"usage_hint"`
	Hidden      bool   `json:"hidden"`
	Scope       string `json:"scope"`
}

type setCommandsRequest struct {
	Commands []commandPayload `json:"commands"`
}

func (g *Gateway) handleSetCommands(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req setCommandsRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	cmds := make([]*store.Command, 0, len(req.Commands))
	for _, c := range req.Commands {
		cmds = append(cmds, &store.Command{
			Name:        c.Name,
			Description: c.Description,
			UsageHint:   c.UsageHint,
			Hidden:      c.Hidden,
			Scope:       c.Scope,
		})
	}

	stored, err := g.commands.SetCommands(ctx, id.Bot.ID, cmds)
	if err != nil {
		return nil, err
	}
	return map[string]any{"stored": stored}, nil
}

type getCommandsRequest struct {
	BotID string `json:"bot_id"`
}

func (g *Gateway) handleGetCommands(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req getCommandsRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	// Bots read their own catalog including hidden commands; sessions
	// name a bot and see hidden entries only when they own it.
	botID := req.BotID
	includeHidden := false
	switch {
	case id.IsBot():
		botID = id.Bot.ID
		includeHidden = true
	case botID == "":
		return nil, errValidation("bot_id is required")
	default:
		bot, err := g.store.GetBot(ctx, botID)
		if err != nil {
			return nil, err
		}
		includeHidden = bot.OwnerID == id.UserID
	}

	cmds, err := g.commands.GetCommands(ctx, botID, includeHidden)
	if err != nil {
		return nil, err
	}
	return map[string]any{"commands": newCommandViews(cmds)}, nil
}

type getBotInfoRequest struct {
	BotID    string `json:"bot_id"`
	Username string `json:"username"`
}

func (g *Gateway) handleGetBotInfo(ctx context.Context, id *auth.Identity, r *http.Request) (any, error) {
	var req getBotInfoRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}

	botID := req.BotID
	if botID == "" {
		if req.Username == "" {
			return nil, errValidation("bot_id or username is required")
		}
		bot, err := g.store.GetBotByUsername(ctx, req.Username)
		if err != nil {
			return nil, err
		}
		botID = bot.ID
	}

	bot, cmds, err := g.registry.GetBotInfo(ctx, id.UserID, botID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"bot":      newBotView(bot),
		"commands": newCommandViews(cmds),
	}, nil
}

type searchBotsRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	Limit    int    `json:"limit" validate:"omitempty,min=1,max=100"`
	Offset   int    `json:"offset" validate:"omitempty,min=0"`
}

func (g *Gateway) handleSearchBots(ctx context.Context, _ *auth.Identity, r *http.Request) (any, error) {
	var req searchBotsRequest
	if err := g.bind(r, &req); err != nil {
		return nil, err
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	bots, cats, err := g.registry.Search(ctx, req.Query, req.Category, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}

	views := make([]botView, 0, len(bots))
	for _, b := range bots {
		views = append(views, newBotView(b))
	}
	categories := make([]map[string]any, 0, len(cats))
	for _, c := range cats {
		categories = append(categories, map[string]any{"category": c.Category, "count": c.Count})
	}
	return map[string]any{"bots": views, "categories": categories}, nil
}
