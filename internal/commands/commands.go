// ABOUTME: Command Registry service over the per-bot slash-command catalog
// ABOUTME: Full-replace semantics with the 100-entry cap

package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/worldmates/bot-gateway/internal/store"
)

// MaxCommands caps one bot's catalog.
const MaxCommands = 100

// ErrTooManyCommands is returned when set_commands exceeds MaxCommands.
var ErrTooManyCommands = errors.New("too many commands")

// Service manages bot command catalogs.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a command Service.
func New(s store.Store, logger *slog.Logger) *Service {
	return &Service{store: s, logger: logger.With("component", "commands")}
}

// SetCommands replaces the bot's whole catalog. Entries missing a name
// or description are skipped without error; more than MaxCommands
// entries is rejected outright. Returns how many commands were stored.
func (s *Service) SetCommands(ctx context.Context, botID string, cmds []*store.Command) (int, error) {
	if len(cmds) > MaxCommands {
		return 0, ErrTooManyCommands
	}

	stored, err := s.store.ReplaceCommands(ctx, botID, cmds)
	if err != nil {
		return 0, err
	}

	s.logger.Info("set commands", "bot_id", botID, "submitted", len(cmds), "stored", stored)
	return stored, nil
}

// GetCommands returns the catalog in sort order. Hidden commands are
// included only for the bot itself or its owner.
func (s *Service) GetCommands(ctx context.Context, botID string, includeHidden bool) ([]*store.Command, error) {
	return s.store.ListCommands(ctx, botID, includeHidden)
}
