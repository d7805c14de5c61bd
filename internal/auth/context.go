// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating auth info via context

package auth

import (
	"context"

	"github.com/worldmates/bot-gateway/internal/store"
)

// Identity holds the authenticated caller extracted from a request.
// Exactly one of UserID or Bot is set: owner sessions carry a UserID,
// bot tokens carry the resolved Bot.
type Identity struct {
	UserID string
	Bot    *store.Bot
}

// IsBot returns true when the caller authenticated with a bot token.
func (id *Identity) IsBot() bool {
	return id.Bot != nil
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}
