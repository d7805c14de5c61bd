// ABOUTME: Bot token generation, digesting and verification
// ABOUTME: Tokens are <botID>:<64 hex>; only the SHA-256 digest is stored

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/worldmates/bot-gateway/internal/store"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrBotSuspended = errors.New("bot is suspended")
)

// secretBytes is the length of the random token secret before hex encoding.
const secretBytes = 32

// GenerateToken mints a fresh bot token and returns it together with the
// digest to store. The plaintext token is shown to the owner exactly once.
func GenerateToken(botID string) (token, digest string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating token secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	return botID + ":" + secret, DigestSecret(secret), nil
}

// DigestSecret returns the hex SHA-256 of a token secret.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// splitToken splits a bot token into its ID and secret parts.
func splitToken(token string) (botID, secret string, err error) {
	idx := strings.IndexByte(token, ':')
	if idx <= 0 || idx == len(token)-1 {
		return "", "", ErrInvalidToken
	}
	return token[:idx], token[idx+1:], nil
}

// BotAuthenticator verifies bot tokens against stored digests.
type BotAuthenticator struct {
	store store.Store
}

// NewBotAuthenticator creates an authenticator backed by the given store.
func NewBotAuthenticator(s store.Store) *BotAuthenticator {
	return &BotAuthenticator{store: s}
}

// Authenticate resolves a bot token to its bot. It returns ErrInvalidToken
// for malformed tokens, unknown bots and digest mismatches alike, so
// callers can't probe which bot IDs exist. Suspended and deleted bots
// fail with ErrBotSuspended even when the token is right.
func (a *BotAuthenticator) Authenticate(ctx context.Context, token string) (*store.Bot, error) {
	botID, secret, err := splitToken(token)
	if err != nil {
		return nil, err
	}

	bot, err := a.store.GetBot(ctx, botID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up bot: %w", err)
	}

	digest := DigestSecret(secret)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(bot.TokenDigest)) != 1 {
		return nil, ErrInvalidToken
	}

	if bot.Status != store.BotStatusActive {
		return nil, ErrBotSuspended
	}
	return bot, nil
}
