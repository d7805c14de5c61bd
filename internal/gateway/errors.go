// ABOUTME: API error taxonomy with stable machine-readable codes
// ABOUTME: Maps domain sentinel errors to coded responses and HTTP statuses

package gateway

import (
	"errors"
	"net/http"

	"github.com/worldmates/bot-gateway/internal/auth"
	"github.com/worldmates/bot-gateway/internal/commands"
	"github.com/worldmates/bot-gateway/internal/polls"
	"github.com/worldmates/bot-gateway/internal/ratelimit"
	"github.com/worldmates/bot-gateway/internal/registry"
	"github.com/worldmates/bot-gateway/internal/router"
	"github.com/worldmates/bot-gateway/internal/store"
	"github.com/worldmates/bot-gateway/internal/webhook"
)

// Stable error codes. Callers branch on these, never on messages.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeValidation      = "validation_error"
	CodeConflict        = "conflict"
	CodeNotFound        = "not_found"
	CodeRateLimited     = "rate_limited"
	CodeBlocked         = "blocked"
	CodeInternal        = "internal"
)

// Error is the coded API error returned to callers.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// httpStatus maps an error code to its transport status.
func httpStatus(code string) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBlocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errValidation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func errUnauthenticated(msg string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: msg}
}

func errNotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// mapError translates domain sentinels into coded API errors. Unknown
// errors become internal and keep no detail: storage messages are for
// logs, not callers.
func mapError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingClaim):
		return errUnauthenticated(err.Error())
	case errors.Is(err, auth.ErrBotSuspended):
		return &Error{Code: CodeBlocked, Message: "bot is suspended"}

	case errors.Is(err, registry.ErrInvalidUsername),
		errors.Is(err, registry.ErrQuotaExceeded),
		errors.Is(err, commands.ErrTooManyCommands),
		errors.Is(err, polls.ErrInvalidOptionCount),
		errors.Is(err, polls.ErrInvalidPollType),
		errors.Is(err, polls.ErrInvalidCorrectOption),
		errors.Is(err, polls.ErrEmptyQuestion),
		errors.Is(err, webhook.ErrInvalidWebhookURL),
		errors.Is(err, router.ErrEmptyPayload),
		errors.Is(err, store.ErrInvalidOption):
		return errValidation(err.Error())

	case errors.Is(err, store.ErrDuplicateUsername),
		errors.Is(err, store.ErrAlreadyAnswered),
		errors.Is(err, store.ErrPollClosed),
		errors.Is(err, router.ErrBotInactive):
		return &Error{Code: CodeConflict, Message: err.Error()}

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, registry.ErrNotOwner):
		// Not-owned reads as absent: existence is not leaked.
		return errNotFound("not found")

	case errors.Is(err, ratelimit.ErrRateLimited):
		return &Error{Code: CodeRateLimited, Message: "rate limit exceeded, retry later"}

	case errors.Is(err, router.ErrBlockedByUser):
		return &Error{Code: CodeBlocked, Message: "user has blocked the bot"}

	default:
		return &Error{Code: CodeInternal, Message: "internal error"}
	}
}
