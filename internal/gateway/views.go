// ABOUTME: JSON response shapes for API results
// ABOUTME: Views never expose token digests or other at-rest secrets

package gateway

import (
	"time"

	"github.com/worldmates/bot-gateway/internal/store"
)

type botView struct {
	ID                      string `json:"id"`
	Username                string `json:"username"`
	DisplayName             string `json:"display_name"`
	Description             string `json:"description,omitempty"`
	About                   string `json:"about,omitempty"`
	Category                string `json:"category,omitempty"`
	Avatar                  string `json:"avatar,omitempty"`
	Tags                    string `json:"tags,omitempty"`
	Status                  string `json:"status"`
	IsPublic                bool   `json:"is_public"`
	CanJoinGroups           bool   `json:"can_join_groups"`
	CanReadAllGroupMessages bool   `json:"can_read_all_group_messages"`
	SupportsCommands        bool   `json:"supports_commands"`
	IsInline                bool   `json:"is_inline"`
	RateLimitPerSecond      int    `json:"rate_limit_per_second"`
	RateLimitPerMinute      int    `json:"rate_limit_per_minute"`
	MessagesSent            int64  `json:"messages_sent"`
	MessagesReceived        int64  `json:"messages_received"`
	TotalUsers              int64  `json:"total_users"`
	ActiveUsers24h          int64  `json:"active_users_24h"`
	CreatedAt               string `json:"created_at"`
}

func newBotView(b *store.Bot) botView {
	return botView{
		ID:                      b.ID,
		Username:                b.Username,
		DisplayName:             b.DisplayName,
		Description:             b.Description,
		About:                   b.About,
		Category:                b.Category,
		Avatar:                  b.Avatar,
		Tags:                    b.Tags,
		Status:                  b.Status,
		IsPublic:                b.IsPublic,
		CanJoinGroups:           b.CanJoinGroups,
		CanReadAllGroupMessages: b.CanReadAllGroupMessages,
		SupportsCommands:        b.SupportsCommands,
		IsInline:                b.IsInline,
		RateLimitPerSecond:      b.RateLimitPerSecond,
		RateLimitPerMinute:      b.RateLimitPerMinute,
		MessagesSent:            b.MessagesSent,
		MessagesReceived:        b.MessagesReceived,
		TotalUsers:              b.TotalUsers,
		ActiveUsers24h:          b.ActiveUsers24h,
		CreatedAt:               b.CreatedAt.Format(time.RFC3339),
	}
}

type commandView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UsageHint   string `json:"usage_hint,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

func newCommandViews(cmds []*store.Command) []commandView {
	out := make([]commandView, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, commandView{
			Name:        c.Name,
			Description: c.Description,
			UsageHint:   c.UsageHint,
			Hidden:      c.Hidden,
			Scope:       c.Scope,
		})
	}
	return out
}

type messageView struct {
	MessageID    int64  `json:"message_id"`
	ChatID       string `json:"chat_id"`
	ChatType     string `json:"chat_type"`
	Direction    string `json:"direction"`
	Text         string `json:"text,omitempty"`
	MediaType    string `json:"media_type,omitempty"`
	MediaURL     string `json:"media_url,omitempty"`
	ReplyToSeq   *int64 `json:"reply_to_message_id,omitempty"`
	ReplyMarkup  string `json:"reply_markup,omitempty"`
	Entities     string `json:"entities,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
	IsCommand    bool   `json:"is_command,omitempty"`
	CommandName  string `json:"command_name,omitempty"`
	CommandArgs  string `json:"command_args,omitempty"`
	Date         int64  `json:"date"`
}

func newMessageView(m *store.Message) messageView {
	return messageView{
		MessageID:    m.Seq,
		ChatID:       m.ChatID,
		ChatType:     m.ChatType,
		Direction:    m.Direction,
		Text:         m.Text,
		MediaType:    m.MediaType,
		MediaURL:     m.MediaURL,
		ReplyToSeq:   m.ReplyToSeq,
		ReplyMarkup:  m.ReplyMarkup,
		Entities:     m.Entities,
		CallbackData: m.CallbackData,
		IsCommand:    m.IsCommand,
		CommandName:  m.CommandName,
		CommandArgs:  m.CommandArgs,
		Date:         m.CreatedAt.Unix(),
	}
}

func newMessageViews(msgs []*store.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, newMessageView(m))
	}
	return out
}

type pollOptionView struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	VoterCount int64  `json:"voter_count"`
}

type pollView struct {
	ID                 string           `json:"id"`
	ChatID             string           `json:"chat_id"`
	Question           string           `json:"question"`
	Type               string           `json:"type"`
	IsAnonymous        bool             `json:"is_anonymous"`
	AllowsMultiple     bool             `json:"allows_multiple_answers"`
	CorrectOptionIndex *int             `json:"correct_option_index,omitempty"`
	Explanation        string           `json:"explanation,omitempty"`
	Closed             bool             `json:"is_closed"`
	MessageID          int64            `json:"message_id"`
	Options            []pollOptionView `json:"options"`
}

func newPollView(p *store.Poll, options []*store.PollOption) pollView {
	v := pollView{
		ID:                 p.ID,
		ChatID:             p.ChatID,
		Question:           p.Question,
		Type:               p.Type,
		IsAnonymous:        p.IsAnonymous,
		AllowsMultiple:     p.AllowsMultiple,
		CorrectOptionIndex: p.CorrectOptionIndex,
		Explanation:        p.Explanation,
		Closed:             p.Closed,
		MessageID:          p.MessageSeq,
		Options:            make([]pollOptionView, 0, len(options)),
	}
	for _, o := range options {
		v.Options = append(v.Options, pollOptionView{
			Index: o.Index, Text: o.Text, VoterCount: o.VoterCount,
		})
	}
	return v
}

type chatMemberView struct {
	UserID             string `json:"user_id"`
	Blocked            bool   `json:"blocked"`
	State              string `json:"state,omitempty"`
	StateData          string `json:"state_data,omitempty"`
	CustomData         string `json:"custom_data,omitempty"`
	MessagesCount      int64  `json:"messages_count"`
	FirstInteractionAt string `json:"first_interaction_at"`
	LastInteractionAt  string `json:"last_interaction_at"`
}

func newChatMemberView(bu *store.BotUser) chatMemberView {
	return chatMemberView{
		UserID:             bu.UserID,
		Blocked:            bu.Blocked,
		State:              bu.State,
		StateData:          bu.StateData,
		CustomData:         bu.CustomData,
		MessagesCount:      bu.MessagesCount,
		FirstInteractionAt: bu.FirstInteractionAt.Format(time.RFC3339),
		LastInteractionAt:  bu.LastInteractionAt.Format(time.RFC3339),
	}
}
