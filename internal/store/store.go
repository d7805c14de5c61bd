// ABOUTME: Store interface and data types for bot-gateway persistence
// ABOUTME: Defines Bot, Message, Poll structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned when a bot username is already taken
var ErrDuplicateUsername = errors.New("username already taken")

// ErrPollClosed is returned when voting on a closed poll
var ErrPollClosed = errors.New("poll is closed")

// ErrInvalidOption is returned when voting for an option index the poll does not have
var ErrInvalidOption = errors.New("invalid poll option")

// ErrAlreadyAnswered is returned when answering a callback query twice
var ErrAlreadyAnswered = errors.New("callback query already answered")

// BotStatus constants for bot lifecycle states
const (
	BotStatusActive    = "active"
	BotStatusSuspended = "suspended"
	BotStatusDeleted   = "deleted"
)

// Message direction constants
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Update type constants used for allowed_updates filtering
const (
	UpdateTypeMessage       = "message"
	UpdateTypeCommand       = "command"
	UpdateTypeCallbackQuery = "callback_query"
)

// Webhook delivery status constants
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusRetrying  = "retrying"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

// WebhookConfig is the per-bot webhook push configuration
type WebhookConfig struct {
	URL            string
	Secret         string
	Enabled        bool
	MaxConnections int
	AllowedUpdates []string
}

// Bot represents a registered bot with its identity, capabilities and counters
type Bot struct {
	ID                      string
	OwnerID                 string
	TokenDigest             string // SHA-256 of the token secret, never the token itself
	Username                string
	DisplayName             string
	Description             string
	About                   string
	Category                string
	Avatar                  string
	Tags                    string
	Status                  string
	IsPublic                bool
	CanJoinGroups           bool
	CanReadAllGroupMessages bool
	SupportsCommands        bool
	IsInline                bool
	Webhook                 WebhookConfig
	RateLimitPerSecond      int
	RateLimitPerMinute      int
	MessagesSent            int64
	MessagesReceived        int64
	TotalUsers              int64
	ActiveUsers24h          int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
	LastActiveAt            *time.Time
}

// Command is one slash command in a bot's catalog
type Command struct {
	BotID       string
	Name        string
	Description string
	UsageHint   string
	Hidden      bool
	Scope       string
	SortOrder   int
}

// Message is one queued inbound update or one outbound send.
// Seq is strictly increasing per bot and doubles as the long-poll offset.
type Message struct {
	Seq          int64
	BotID        string
	ChatID       string
	ChatType     string
	Direction    string
	Text         string
	MediaType    string
	MediaURL     string
	ReplyToSeq   *int64
	ReplyMarkup  string
	Entities     string
	CallbackData string
	IsCommand    bool
	CommandName  string
	CommandArgs  string
	Processed    bool
	ProcessedAt  *time.Time
	CreatedAt    time.Time
}

// UpdateType classifies a message for allowed_updates filtering
func (m *Message) UpdateType() string {
	switch {
	case m.CallbackData != "":
		return UpdateTypeCallbackQuery
	case m.IsCommand:
		return UpdateTypeCommand
	default:
		return UpdateTypeMessage
	}
}

// BotUser is the lazily-created relationship between a bot and a user,
// carrying block status and the freeform conversation state.
type BotUser struct {
	BotID              string
	UserID             string
	Blocked            bool
	State              string
	StateData          string
	CustomData         string
	MessagesCount      int64
	FirstInteractionAt time.Time
	LastInteractionAt  time.Time
}

// Poll is an interactive poll published by a bot
type Poll struct {
	ID                 string
	BotID              string
	ChatID             string
	Question           string
	Type               string // "regular" or "quiz"
	IsAnonymous        bool
	AllowsMultiple     bool
	CorrectOptionIndex *int
	Explanation        string
	Closed             bool
	MessageSeq         int64
	CreatedAt          time.Time
	ClosedAt           *time.Time
}

// PollOption is one answer with its running voter tally
type PollOption struct {
	PollID     string
	Index      int
	Text       string
	VoterCount int64
}

// CallbackQuery is raised when a user taps an inline-keyboard button.
// It is consumed exactly once by answer_callback_query.
type CallbackQuery struct {
	ID         string
	BotID      string
	UserID     string
	MessageSeq int64
	Data       string
	Answered   bool
	AnswerText string
	ShowAlert  bool
	CreatedAt  time.Time
	AnsweredAt *time.Time
}

// WebhookDelivery is one record per attempted webhook push
type WebhookDelivery struct {
	ID           string
	BotID        string
	UpdateSeq    int64
	EventType    string
	URL          string
	Payload      string
	Status       string
	Attempts     int
	MaxAttempts  int
	ResponseCode int
	ResponseBody string
	NextRetryAt  *time.Time
	DeliveredAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CategoryCount is a bot category facet for search results
type CategoryCount struct {
	Category string
	Count    int64
}

// Store defines the interface for bot-gateway persistence
type Store interface {
	// Bots
	CreateBot(ctx context.Context, bot *Bot) error
	GetBot(ctx context.Context, id string) (*Bot, error)
	GetBotByUsername(ctx context.Context, username string) (*Bot, error)
	UpdateBot(ctx context.Context, bot *Bot) error
	SetBotTokenDigest(ctx context.Context, id, digest string) error
	SetWebhook(ctx context.Context, id string, cfg WebhookConfig) error
	CountBotsByOwner(ctx context.Context, ownerID string) (int, error)
	ListBotsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Bot, error)
	SearchBots(ctx context.Context, query, category string, limit, offset int) ([]*Bot, error)
	ListBotCategories(ctx context.Context) ([]CategoryCount, error)
	DeleteBot(ctx context.Context, id string) error
	BumpMessagesReceived(ctx context.Context, id string) error
	BumpMessagesSent(ctx context.Context, id string) error

	// Commands
	ReplaceCommands(ctx context.Context, botID string, commands []*Command) (int, error)
	ListCommands(ctx context.Context, botID string, includeHidden bool) ([]*Command, error)
	CountCommands(ctx context.Context, botID string) (int, error)

	// Messages
	AppendMessage(ctx context.Context, msg *Message) (int64, error)
	GetMessage(ctx context.Context, botID string, seq int64) (*Message, error)
	ClaimUpdates(ctx context.Context, botID string, offset int64, limit int, allowed []string) ([]*Message, error)
	MarkProcessed(ctx context.Context, botID string, seq int64) error
	UpdateOutgoing(ctx context.Context, botID string, seq int64, chatID, text, entities, replyMarkup string) error
	DeleteMessage(ctx context.Context, botID string, seq int64, chatID string) error
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Bot users
	TouchBotUser(ctx context.Context, botID, userID string) error
	GetBotUser(ctx context.Context, botID, userID string) (*BotUser, error)
	IsBlocked(ctx context.Context, botID, userID string) (bool, error)
	SetBlocked(ctx context.Context, botID, userID string, blocked bool) error
	SetUserState(ctx context.Context, botID, userID string, state, stateData *string) error
	RefreshActiveUserCounts(ctx context.Context) error

	// Polls
	CreatePoll(ctx context.Context, poll *Poll, options []string) error
	GetPoll(ctx context.Context, id string) (*Poll, error)
	GetPollOptions(ctx context.Context, id string) ([]*PollOption, error)
	SetPollMessageSeq(ctx context.Context, pollID string, seq int64) error
	Vote(ctx context.Context, pollID string, optionIndex int, voterID string) error
	ClosePoll(ctx context.Context, botID, pollID string) ([]*PollOption, error)

	// Callback queries
	CreateCallback(ctx context.Context, cb *CallbackQuery) error
	GetCallback(ctx context.Context, botID, id string) (*CallbackQuery, error)
	AnswerCallback(ctx context.Context, botID, id, text string, showAlert bool) error

	// Webhook delivery log
	CreateDelivery(ctx context.Context, d *WebhookDelivery) error
	GetDelivery(ctx context.Context, id string) (*WebhookDelivery, error)
	UpdateDelivery(ctx context.Context, d *WebhookDelivery) error
	CountPendingDeliveries(ctx context.Context, botID string) (int, error)
	LastFailedDelivery(ctx context.Context, botID string) (*WebhookDelivery, error)
	PurgeDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases any resources held by the store
	Close() error
}
