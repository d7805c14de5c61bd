// ABOUTME: Message Router: ordered per-bot queues, long-poll and outbound sends
// ABOUTME: Sequence assignment under a per-bot lock; claim and mark are one transaction

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worldmates/bot-gateway/internal/entity"
	"github.com/worldmates/bot-gateway/internal/metrics"
	"github.com/worldmates/bot-gateway/internal/platform"
	"github.com/worldmates/bot-gateway/internal/ratelimit"
	"github.com/worldmates/bot-gateway/internal/store"
)

// Router errors
var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrBotInactive   = errors.New("bot is not active")
	ErrBlockedByUser = errors.New("user has blocked the bot")
)

// maxPollTimeout caps how long poll_updates may block.
const maxPollTimeout = 60 * time.Second

// Pusher receives every enqueued incoming update, for webhook push.
type Pusher interface {
	Push(bot *store.Bot, msg *store.Message)
}

// OutgoingRequest is one send_message call after validation.
type OutgoingRequest struct {
	ChatID      string
	ChatType    string
	Text        string
	MediaType   string
	MediaURL    string
	MediaData   []byte
	ReplyToSeq  *int64
	ReplyMarkup string
	ParseMode   string
}

// Router moves messages between users and bots.
type Router struct {
	store    store.Store
	limiter  *ratelimit.Limiter
	delivery platform.MessageDelivery
	uploader platform.MediaUploader
	realtime platform.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	wake   *wakeup
	pusher Pusher

	// seqLocks serializes sequence assignment per bot so concurrent
	// appends never race MAX(seq)+1.
	mu       sync.Mutex
	seqLocks map[string]*sync.Mutex
}

// New creates a Router. pusher may be nil (no webhook push).
func New(s store.Store, limiter *ratelimit.Limiter, delivery platform.MessageDelivery,
	uploader platform.MediaUploader, realtime platform.Notifier,
	m *metrics.Metrics, logger *slog.Logger) *Router {
	return &Router{
		store:    s,
		limiter:  limiter,
		delivery: delivery,
		uploader: uploader,
		realtime: realtime,
		metrics:  m,
		logger:   logger.With("component", "router"),
		wake:     newWakeup(),
		seqLocks: make(map[string]*sync.Mutex),
	}
}

// SetPusher wires the webhook dispatcher in after construction, since
// the dispatcher needs the store too.
func (r *Router) SetPusher(p Pusher) {
	r.pusher = p
}

func (r *Router) seqLock(botID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.seqLocks[botID]
	if !ok {
		l = &sync.Mutex{}
		r.seqLocks[botID] = l
	}
	return l
}

// append persists a message with the next per-bot sequence.
func (r *Router) append(ctx context.Context, msg *store.Message) (int64, error) {
	l := r.seqLock(msg.BotID)
	l.Lock()
	defer l.Unlock()
	return r.store.AppendMessage(ctx, msg)
}

// EnqueueIncoming accepts a user-originated message or callback tap for
// a bot. It detects commands, creates the callback query record when
// callback data is present, touches the bot-user relationship, wakes
// long-pollers and hands the update to the webhook pusher.
func (r *Router) EnqueueIncoming(ctx context.Context, botID, userID, chatID, chatType, text, callbackData string) (*store.Message, *store.CallbackQuery, error) {
	if text == "" && callbackData == "" {
		return nil, nil, ErrEmptyPayload
	}

	bot, err := r.store.GetBot(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	if bot.Status != store.BotStatusActive {
		return nil, nil, ErrBotInactive
	}

	if chatType == "" {
		chatType = "private"
	}

	msg := &store.Message{
		BotID:        botID,
		ChatID:       chatID,
		ChatType:     chatType,
		Direction:    store.DirectionIncoming,
		Text:         text,
		CallbackData: callbackData,
		CreatedAt:    time.Now().UTC(),
	}
	if callbackData == "" {
		msg.IsCommand, msg.CommandName, msg.CommandArgs = entity.ParseCommand(text)
	}

	seq, err := r.append(ctx, msg)
	if err != nil {
		return nil, nil, err
	}

	var cb *store.CallbackQuery
	if callbackData != "" {
		cb = &store.CallbackQuery{
			ID:         uuid.NewString(),
			BotID:      botID,
			UserID:     userID,
			MessageSeq: seq,
			Data:       callbackData,
			CreatedAt:  msg.CreatedAt,
		}
		if err := r.store.CreateCallback(ctx, cb); err != nil {
			return nil, nil, fmt.Errorf("recording callback query: %w", err)
		}
	}

	if err := r.store.TouchBotUser(ctx, botID, userID); err != nil {
		r.logger.Warn("touching bot user failed", "bot_id", botID, "user_id", userID, "error", err)
	}
	if err := r.store.BumpMessagesReceived(ctx, botID); err != nil {
		r.logger.Warn("bumping received counter failed", "bot_id", botID, "error", err)
	}
	r.metrics.IncReceived()

	r.wake.Wake(botID)
	if r.pusher != nil {
		r.pusher.Push(bot, msg)
	}

	return msg, cb, nil
}

// EnqueueOutgoing accepts a bot's send. The rate limiter runs first; a
// rejected send is never enqueued. Text is entity-parsed per the parse
// mode, inline media is uploaded, and the persisted message is handed
// to the delivery service and the realtime notifier.
func (r *Router) EnqueueOutgoing(ctx context.Context, bot *store.Bot, req OutgoingRequest) (*store.Message, error) {
	if req.Text == "" && req.MediaURL == "" && len(req.MediaData) == 0 {
		return nil, ErrEmptyPayload
	}

	if err := r.limiter.Allow(bot.ID, bot.RateLimitPerSecond, bot.RateLimitPerMinute); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			r.metrics.IncRateLimited()
		}
		return nil, err
	}

	blocked, err := r.store.IsBlocked(ctx, bot.ID, req.ChatID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlockedByUser
	}

	text := req.Text
	var entitiesJSON string
	if req.Text != "" {
		clean, entities, err := entity.Parse(req.Text, req.ParseMode)
		if err != nil {
			return nil, err
		}
		text = clean
		if len(entities) > 0 {
			data, err := json.Marshal(entities)
			if err != nil {
				return nil, fmt.Errorf("encoding entities: %w", err)
			}
			entitiesJSON = string(data)
		}
	}

	mediaURL := req.MediaURL
	if mediaURL == "" && len(req.MediaData) > 0 {
		mediaURL, err = r.uploader.Upload(ctx, req.MediaData, req.MediaType)
		if err != nil {
			return nil, fmt.Errorf("uploading media: %w", err)
		}
	}

	chatType := req.ChatType
	if chatType == "" {
		chatType = "private"
	}

	msg := &store.Message{
		BotID:       bot.ID,
		ChatID:      req.ChatID,
		ChatType:    chatType,
		Direction:   store.DirectionOutgoing,
		Text:        text,
		MediaType:   req.MediaType,
		MediaURL:    mediaURL,
		ReplyToSeq:  req.ReplyToSeq,
		ReplyMarkup: req.ReplyMarkup,
		Entities:    entitiesJSON,
		CreatedAt:   time.Now().UTC(),
	}
	seq, err := r.append(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := r.store.BumpMessagesSent(ctx, bot.ID); err != nil {
		r.logger.Warn("bumping sent counter failed", "bot_id", bot.ID, "error", err)
	}
	r.metrics.IncSent()

	// Delivery is best-effort: the message is already durable here.
	if err := r.delivery.Deliver(ctx, platform.DeliveryRequest{
		BotID:       bot.ID,
		BotUsername: bot.Username,
		ChatID:      msg.ChatID,
		ChatType:    msg.ChatType,
		MessageSeq:  seq,
		Text:        msg.Text,
		MediaType:   msg.MediaType,
		MediaURL:    msg.MediaURL,
		ReplyMarkup: msg.ReplyMarkup,
		Entities:    msg.Entities,
	}); err != nil {
		r.logger.Warn("message delivery failed", "bot_id", bot.ID, "seq", seq, "error", err)
	}

	r.realtime.Notify(ctx, platform.Event{
		Kind: "bot_message", BotID: bot.ID, ChatID: msg.ChatID, Seq: seq,
	})

	return msg, nil
}

// PollUpdates returns unprocessed incoming updates after offset, up to
// limit, blocking up to timeout until at least one is available. The
// claim marks returned updates processed in the same transaction, so
// two concurrent pollers never share an update. Cancellation returns
// an empty set. The allowed filter is scoped to this call: an empty
// filter means every update type, independent of any webhook filter
// the bot may have stored.
func (r *Router) PollUpdates(ctx context.Context, bot *store.Bot, offset int64, limit int, timeout time.Duration, allowed []string) ([]*store.Message, error) {
	if timeout < 0 {
		timeout = 0
	}
	if timeout > maxPollTimeout {
		timeout = maxPollTimeout
	}

	deadline := time.Now().Add(timeout)

	for {
		updates, err := r.store.ClaimUpdates(ctx, bot.ID, offset, limit, allowed)
		if err != nil {
			return nil, err
		}
		if len(updates) > 0 {
			return updates, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			return nil, nil
		}
		// Woken or not, loop and re-claim; spurious wakeups just cost
		// one extra query.
		r.wake.Wait(ctx, bot.ID, remaining)
	}
}

// EditMessage edits an outgoing message's text and/or reply markup.
func (r *Router) EditMessage(ctx context.Context, bot *store.Bot, chatID string, seq int64, text, replyMarkup, parseMode string) (*store.Message, error) {
	if text == "" && replyMarkup == "" {
		return nil, ErrEmptyPayload
	}

	var entitiesJSON string
	if text != "" {
		clean, entities, err := entity.Parse(text, parseMode)
		if err != nil {
			return nil, err
		}
		text = clean
		if len(entities) > 0 {
			data, err := json.Marshal(entities)
			if err != nil {
				return nil, fmt.Errorf("encoding entities: %w", err)
			}
			entitiesJSON = string(data)
		}
	}

	if err := r.store.UpdateOutgoing(ctx, bot.ID, seq, chatID, text, entitiesJSON, replyMarkup); err != nil {
		return nil, err
	}

	r.realtime.Notify(ctx, platform.Event{
		Kind: "bot_message", BotID: bot.ID, ChatID: chatID, Seq: seq,
	})
	return r.store.GetMessage(ctx, bot.ID, seq)
}

// DeleteMessage removes an outgoing message owned by the bot.
func (r *Router) DeleteMessage(ctx context.Context, bot *store.Bot, chatID string, seq int64) error {
	return r.store.DeleteMessage(ctx, bot.ID, seq, chatID)
}

// Wake signals the bot's long-poll waiters.
func (r *Router) Wake(botID string) {
	r.wake.Wake(botID)
}

// ForgetBot drops the bot's rate-limit counters after deletion.
func (r *Router) ForgetBot(botID string) {
	r.limiter.Forget(botID)
}
