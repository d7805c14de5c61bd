// ABOUTME: Bot Registry service: registration, token lifecycle, quotas, search
// ABOUTME: Owns the username policy and the owner-only mutation paths

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/worldmates/bot-gateway/internal/auth"
	"github.com/worldmates/bot-gateway/internal/store"
)

// Registry errors
var (
	ErrInvalidUsername = errors.New("invalid bot username")
	ErrQuotaExceeded   = errors.New("bot quota exceeded")
	ErrNotOwner        = errors.New("not the bot owner")
)

// usernameRe is the bot username policy: letter first, 3-31 chars
// before the mandatory _bot suffix.
var usernameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,30}_bot$`)

// defaultCommands are registered for every new bot.
var defaultCommands = []*store.Command{
	{Name: "start", Description: "Start interacting with the bot"},
	{Name: "help", Description: "Show available commands"},
	{Name: "settings", Description: "Bot settings"},
}

// Config tunes registry policy.
type Config struct {
	MaxBotsPerOwner    int
	RateLimitPerSecond int
	RateLimitPerMinute int
}

// Registration is the owner's register_bot input.
type Registration struct {
	Username    string
	DisplayName string
	Description string
	About       string
	Category    string
	Avatar      string
	Tags        string
	IsPublic    bool
}

// Update carries the fields update_bot may change; nil means unchanged.
type Update struct {
	DisplayName        *string
	Description        *string
	About              *string
	Category           *string
	Avatar             *string
	Tags               *string
	IsPublic           *bool
	CanJoinGroups      *bool
	SupportsCommands   *bool
	IsInline           *bool
	RateLimitPerSecond *int
	RateLimitPerMinute *int
}

// BotSummary is one list_my_bots row.
type BotSummary struct {
	Bot          *store.Bot
	CommandCount int
}

// Registry implements the bot lifecycle.
type Registry struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger
}

// New creates a Registry.
func New(s store.Store, cfg Config, logger *slog.Logger) *Registry {
	if cfg.MaxBotsPerOwner <= 0 {
		cfg.MaxBotsPerOwner = 20
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 30
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 600
	}
	return &Registry{store: s, cfg: cfg, logger: logger.With("component", "registry")}
}

// newBotID mints an opaque prefixed bot id.
func newBotID() string {
	return "bot_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Register creates a bot for the owner and returns it with the
// plaintext token. The token is never retrievable again.
func (r *Registry) Register(ctx context.Context, ownerID string, reg Registration) (*store.Bot, string, error) {
	if !usernameRe.MatchString(reg.Username) {
		return nil, "", ErrInvalidUsername
	}

	count, err := r.store.CountBotsByOwner(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("checking owner quota: %w", err)
	}
	if count >= r.cfg.MaxBotsPerOwner {
		return nil, "", ErrQuotaExceeded
	}

	id := newBotID()
	token, digest, err := auth.GenerateToken(id)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	bot := &store.Bot{
		ID:                 id,
		OwnerID:            ownerID,
		TokenDigest:        digest,
		Username:           reg.Username,
		DisplayName:        reg.DisplayName,
		Description:        reg.Description,
		About:              reg.About,
		Category:           reg.Category,
		Avatar:             reg.Avatar,
		Tags:               reg.Tags,
		Status:             store.BotStatusActive,
		IsPublic:           reg.IsPublic,
		CanJoinGroups:      true,
		SupportsCommands:   true,
		RateLimitPerSecond: r.cfg.RateLimitPerSecond,
		RateLimitPerMinute: r.cfg.RateLimitPerMinute,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if bot.DisplayName == "" {
		bot.DisplayName = strings.TrimSuffix(reg.Username, "_bot")
	}
	if bot.Category == "" {
		bot.Category = "general"
	}

	if err := r.store.CreateBot(ctx, bot); err != nil {
		return nil, "", err
	}

	if _, err := r.store.ReplaceCommands(ctx, id, defaultCommands); err != nil {
		r.logger.Warn("registering default commands failed", "bot_id", id, "error", err)
	}

	r.logger.Info("registered bot", "bot_id", id, "username", reg.Username, "owner_id", ownerID)
	return bot, token, nil
}

// requireOwned loads a bot and verifies ownership.
func (r *Registry) requireOwned(ctx context.Context, ownerID, botID string) (*store.Bot, error) {
	bot, err := r.store.GetBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return bot, nil
}

// RotateToken replaces the bot's token. The old token is rejected by
// the next authenticated request; the new one is returned exactly once.
func (r *Registry) RotateToken(ctx context.Context, ownerID, botID string) (string, error) {
	if _, err := r.requireOwned(ctx, ownerID, botID); err != nil {
		return "", err
	}

	token, digest, err := auth.GenerateToken(botID)
	if err != nil {
		return "", err
	}
	if err := r.store.SetBotTokenDigest(ctx, botID, digest); err != nil {
		return "", err
	}

	r.logger.Info("rotated bot token", "bot_id", botID)
	return token, nil
}

// UpdateBot applies a partial update over the allow-listed fields.
func (r *Registry) UpdateBot(ctx context.Context, ownerID, botID string, upd Update) (*store.Bot, error) {
	bot, err := r.requireOwned(ctx, ownerID, botID)
	if err != nil {
		return nil, err
	}

	if upd.DisplayName != nil {
		bot.DisplayName = *upd.DisplayName
	}
	if upd.Description != nil {
		bot.Description = *upd.Description
	}
	if upd.About != nil {
		bot.About = *upd.About
	}
	if upd.Category != nil {
		bot.Category = *upd.Category
	}
	if upd.Avatar != nil {
		bot.Avatar = *upd.Avatar
	}
	if upd.Tags != nil {
		bot.Tags = *upd.Tags
	}
	if upd.IsPublic != nil {
		bot.IsPublic = *upd.IsPublic
	}
	if upd.CanJoinGroups != nil {
		bot.CanJoinGroups = *upd.CanJoinGroups
	}
	if upd.SupportsCommands != nil {
		bot.SupportsCommands = *upd.SupportsCommands
	}
	if upd.IsInline != nil {
		bot.IsInline = *upd.IsInline
	}
	if upd.RateLimitPerSecond != nil {
		bot.RateLimitPerSecond = *upd.RateLimitPerSecond
	}
	if upd.RateLimitPerMinute != nil {
		bot.RateLimitPerMinute = *upd.RateLimitPerMinute
	}

	if err := r.store.UpdateBot(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}

// DeleteBot removes the bot and everything hanging off it.
func (r *Registry) DeleteBot(ctx context.Context, ownerID, botID string) error {
	if _, err := r.requireOwned(ctx, ownerID, botID); err != nil {
		return err
	}
	return r.store.DeleteBot(ctx, botID)
}

// ListMyBots returns the owner's bots with their command counts.
func (r *Registry) ListMyBots(ctx context.Context, ownerID string, limit, offset int) ([]BotSummary, int, error) {
	bots, err := r.store.ListBotsByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.store.CountBotsByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]BotSummary, 0, len(bots))
	for _, b := range bots {
		count, err := r.store.CountCommands(ctx, b.ID)
		if err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, BotSummary{Bot: b, CommandCount: count})
	}
	return summaries, total, nil
}

// Search finds public active bots; also returns category facets.
func (r *Registry) Search(ctx context.Context, query, category string, limit, offset int) ([]*store.Bot, []store.CategoryCount, error) {
	bots, err := r.store.SearchBots(ctx, query, category, limit, offset)
	if err != nil {
		return nil, nil, err
	}
	cats, err := r.store.ListBotCategories(ctx)
	if err != nil {
		return nil, nil, err
	}
	return bots, cats, nil
}

// GetBotInfo is the public read: the bot plus its visible commands.
// Non-public bots are only visible to their owner.
func (r *Registry) GetBotInfo(ctx context.Context, callerID, botID string) (*store.Bot, []*store.Command, error) {
	bot, err := r.store.GetBot(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	if !bot.IsPublic && bot.OwnerID != callerID {
		return nil, nil, store.ErrNotFound
	}

	commands, err := r.store.ListCommands(ctx, botID, false)
	if err != nil {
		return nil, nil, err
	}
	return bot, commands, nil
}
