// ABOUTME: Poll Manager: creates, publishes and tallies interactive polls
// ABOUTME: Votes arrive as inline-keyboard callbacks carrying poll_vote_{id}_{index} data

package polls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/worldmates/bot-gateway/internal/metrics"
	"github.com/worldmates/bot-gateway/internal/router"
	"github.com/worldmates/bot-gateway/internal/store"
)

const (
	minOptions = 2
	maxOptions = 10

	// voteCallbackPrefix marks callback data routed to the poll manager.
	voteCallbackPrefix = "poll_vote_"

	PollTypeRegular = "regular"
	PollTypeQuiz    = "quiz"
)

var (
	// ErrInvalidOptionCount is returned for polls outside [2,10] options.
	ErrInvalidOptionCount = fmt.Errorf("polls must have between %d and %d options", minOptions, maxOptions)

	// ErrInvalidPollType is returned for types other than regular or quiz.
	ErrInvalidPollType = errors.New("poll type must be regular or quiz")

	// ErrInvalidCorrectOption is returned when a quiz's correct option
	// index is missing or out of range.
	ErrInvalidCorrectOption = errors.New("quiz polls need a correct option index within range")

	// ErrEmptyQuestion is returned for polls without a question.
	ErrEmptyQuestion = errors.New("poll question is required")
)

// Publisher places the poll announcement into the target chat as a
// regular outgoing message. Satisfied by the message router.
type Publisher interface {
	EnqueueOutgoing(ctx context.Context, bot *store.Bot, req router.OutgoingRequest) (*store.Message, error)
}

// Manager owns poll lifecycle: creation, publication, voting and closing.
type Manager struct {
	store     store.Store
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewManager creates a poll manager.
func NewManager(s store.Store, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		store:     s,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With("component", "polls"),
	}
}

// CreateRequest carries the send_poll parameters.
type CreateRequest struct {
	ChatID             string
	Question           string
	Options            []string
	Type               string // defaults to regular
	IsAnonymous        bool
	AllowsMultiple     bool
	CorrectOptionIndex *int
	Explanation        string
}

// Create validates the request, stores the poll and publishes it to the
// chat as an outgoing message carrying the generated vote keyboard. The
// send is subject to the bot's rate limit like any other message.
func (m *Manager) Create(ctx context.Context, bot *store.Bot, req CreateRequest) (*store.Poll, *store.Message, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, nil, ErrEmptyQuestion
	}
	if len(req.Options) < minOptions || len(req.Options) > maxOptions {
		return nil, nil, ErrInvalidOptionCount
	}

	pollType := req.Type
	if pollType == "" {
		pollType = PollTypeRegular
	}
	switch pollType {
	case PollTypeRegular:
	case PollTypeQuiz:
		if req.CorrectOptionIndex == nil ||
			*req.CorrectOptionIndex < 0 || *req.CorrectOptionIndex >= len(req.Options) {
			return nil, nil, ErrInvalidCorrectOption
		}
	default:
		return nil, nil, ErrInvalidPollType
	}

	poll := &store.Poll{
		ID:                 uuid.NewString(),
		BotID:              bot.ID,
		ChatID:             req.ChatID,
		Question:           req.Question,
		Type:               pollType,
		IsAnonymous:        req.IsAnonymous,
		AllowsMultiple:     req.AllowsMultiple,
		CorrectOptionIndex: req.CorrectOptionIndex,
		Explanation:        req.Explanation,
		CreatedAt:          time.Now().UTC(),
	}
	if err := m.store.CreatePoll(ctx, poll, req.Options); err != nil {
		return nil, nil, fmt.Errorf("creating poll: %w", err)
	}

	markup, err := voteKeyboard(poll.ID, req.Options)
	if err != nil {
		return nil, nil, fmt.Errorf("building vote keyboard: %w", err)
	}

	msg, err := m.publisher.EnqueueOutgoing(ctx, bot, router.OutgoingRequest{
		ChatID:      req.ChatID,
		Text:        req.Question,
		ReplyMarkup: markup,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("publishing poll: %w", err)
	}

	if err := m.store.SetPollMessageSeq(ctx, poll.ID, msg.Seq); err != nil {
		m.logger.Warn("linking poll to message", "poll_id", poll.ID, "error", err)
	}
	poll.MessageSeq = msg.Seq

	m.logger.Info("created poll", "poll_id", poll.ID, "bot_id", bot.ID,
		"type", pollType, "options", len(req.Options))
	return poll, msg, nil
}

// Vote records one vote. Single-answer polls retract the voter's
// previous choice first, so each voter holds exactly one active vote.
func (m *Manager) Vote(ctx context.Context, pollID string, optionIndex int, voterID string) error {
	if err := m.store.Vote(ctx, pollID, optionIndex, voterID); err != nil {
		return err
	}
	m.metrics.IncPollVote()
	return nil
}

// HandleVoteCallback routes callback data of the form
// poll_vote_{pollID}_{optionIndex} to Vote. Returns false when the data
// is not a poll vote, leaving it for the bot to consume as a plain
// callback query.
func (m *Manager) HandleVoteCallback(ctx context.Context, voterID, data string) (bool, error) {
	pollID, optionIndex, ok := parseVoteCallback(data)
	if !ok {
		return false, nil
	}
	return true, m.Vote(ctx, pollID, optionIndex, voterID)
}

// Stop closes the poll and returns it with the final tally. Closing an
// already-closed poll returns the same tally again.
func (m *Manager) Stop(ctx context.Context, bot *store.Bot, pollID string) (*store.Poll, []*store.PollOption, error) {
	options, err := m.store.ClosePoll(ctx, bot.ID, pollID)
	if err != nil {
		return nil, nil, err
	}
	poll, err := m.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, nil, err
	}
	m.logger.Info("closed poll", "poll_id", pollID, "bot_id", bot.ID)
	return poll, options, nil
}

// Get returns a poll with its options.
func (m *Manager) Get(ctx context.Context, pollID string) (*store.Poll, []*store.PollOption, error) {
	poll, err := m.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, nil, err
	}
	options, err := m.store.GetPollOptions(ctx, pollID)
	if err != nil {
		return nil, nil, err
	}
	return poll, options, nil
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

// voteKeyboard builds the reply markup: one button row per option.
func voteKeyboard(pollID string, options []string) (string, error) {
	rows := make([][]inlineButton, len(options))
	for i, text := range options {
		rows[i] = []inlineButton{{
			Text:         text,
			CallbackData: fmt.Sprintf("%s%s_%d", voteCallbackPrefix, pollID, i),
		}}
	}
	raw, err := json.Marshal(inlineKeyboard{InlineKeyboard: rows})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// parseVoteCallback splits poll_vote_{pollID}_{optionIndex}. The option
// index sits after the last underscore since poll ids never contain one.
func parseVoteCallback(data string) (pollID string, optionIndex int, ok bool) {
	rest, found := strings.CutPrefix(data, voteCallbackPrefix)
	if !found {
		return "", 0, false
	}
	sep := strings.LastIndex(rest, "_")
	if sep <= 0 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(rest[sep+1:])
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return rest[:sep], idx, true
}
