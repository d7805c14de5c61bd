package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldmates/bot-gateway/internal/auth"
	"github.com/worldmates/bot-gateway/internal/callbacks"
	"github.com/worldmates/bot-gateway/internal/commands"
	"github.com/worldmates/bot-gateway/internal/platform"
	"github.com/worldmates/bot-gateway/internal/polls"
	"github.com/worldmates/bot-gateway/internal/ratelimit"
	"github.com/worldmates/bot-gateway/internal/registry"
	"github.com/worldmates/bot-gateway/internal/router"
	"github.com/worldmates/bot-gateway/internal/store"
	"github.com/worldmates/bot-gateway/internal/userstate"
	"github.com/worldmates/bot-gateway/internal/webhook"
)

type testEnv struct {
	srv      *httptest.Server
	store    *store.SQLiteStore
	verifier *auth.JWTVerifier
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.Default()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	limiter := ratelimit.New(100, 1000, logger)
	rt := router.New(s, limiter, platform.NoopDelivery{}, platform.NoopUploader{},
		platform.NoopNotifier{}, nil, logger)
	dispatcher := webhook.NewDispatcher(s, nil, 1, logger)
	rt.SetPusher(dispatcher)

	verifier := auth.NewJWTVerifier([]byte("test-secret"))

	g := New(Options{
		Store:      s,
		Registry:   registry.New(s, registry.Config{}, logger),
		Commands:   commands.New(s, logger),
		Router:     rt,
		Dispatcher: dispatcher,
		Polls:      polls.NewManager(s, rt, nil, logger),
		Callbacks:  callbacks.NewManager(s, platform.NoopNotifier{}, nil, logger),
		UserState:  userstate.New(s, logger),
		Sessions:   verifier,
		BotAuth:    auth.NewBotAuthenticator(s),
		Logger:     logger,
	})

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: s, verifier: verifier}
}

func (e *testEnv) sessionToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}

type apiResponse struct {
	status int
	OK     bool           `json:"ok"`
	Result map[string]any `json:"result"`
	Error  *Error         `json:"error"`
}

func (e *testEnv) call(t *testing.T, token, op string, body any) apiResponse {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+basePath+op, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	out.status = resp.StatusCode
	return out
}

// registerBot registers a bot and returns its id and token.
func (e *testEnv) registerBot(t *testing.T, ownerToken, username string) (string, string) {
	t.Helper()
	resp := e.call(t, ownerToken, "register_bot", map[string]any{
		"username": username, "is_public": true,
	})
	require.True(t, resp.OK, "register_bot failed: %+v", resp.Error)
	bot := resp.Result["bot"].(map[string]any)
	return bot["id"].(string), resp.Result["token"].(string)
}

func TestGateway_RegisterBot(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")

	resp := e.call(t, owner, "register_bot", map[string]any{"username": "weather_helper_bot"})
	require.True(t, resp.OK)
	assert.Equal(t, http.StatusOK, resp.status)

	bot := resp.Result["bot"].(map[string]any)
	assert.Equal(t, "weather_helper_bot", bot["username"])
	assert.Equal(t, "weather_helper", bot["display_name"])
	assert.NotEmpty(t, resp.Result["token"])

	// Default commands come with registration.
	cmds := e.call(t, owner, "get_commands", map[string]any{"bot_id": bot["id"]})
	require.True(t, cmds.OK)
	assert.Len(t, cmds.Result["commands"], 3)
}

func TestGateway_RegisterBot_Errors(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")

	// No _bot suffix.
	resp := e.call(t, owner, "register_bot", map[string]any{"username": "abc"})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, CodeValidation, resp.Error.Code)

	// Duplicate username.
	e.registerBot(t, owner, "taken_name_bot")
	resp = e.call(t, owner, "register_bot", map[string]any{"username": "taken_name_bot"})
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, CodeConflict, resp.Error.Code)

	// No session at all.
	resp = e.call(t, "", "register_bot", map[string]any{"username": "anon_bot"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, CodeUnauthenticated, resp.Error.Code)
}

func TestGateway_RotateToken(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	botID, oldToken := e.registerBot(t, owner, "rotate_target_bot")

	// Old token works before rotation.
	resp := e.call(t, oldToken, "get_commands", nil)
	require.True(t, resp.OK)

	rot := e.call(t, owner, "rotate_token", map[string]any{"bot_id": botID})
	require.True(t, rot.OK)
	newToken := rot.Result["token"].(string)

	// No grace window for the old token.
	resp = e.call(t, oldToken, "get_commands", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	resp = e.call(t, newToken, "get_commands", nil)
	require.True(t, resp.OK)

	// Only the owner may rotate.
	other := e.sessionToken(t, "owner-2")
	resp = e.call(t, other, "rotate_token", map[string]any{"bot_id": botID})
	assert.Equal(t, http.StatusNotFound, resp.status)
}

func TestGateway_CommandCatalog(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	id, botToken := e.registerBot(t, owner, "catalog_test_bot")

	resp := e.call(t, botToken, "set_commands", map[string]any{
		"commands": []map[string]any{
			{"name": "/Weather", "description": "Current weather"},
			{"name": "forecast", "description": "Weekly forecast", "hidden": true},
			{"name": "broken"}, // no description: silently skipped
		},
	})
	require.True(t, resp.OK)
	assert.Equal(t, float64(2), resp.Result["stored"])

	// The bot sees hidden commands, anonymous-by-session callers don't.
	botCmds := e.call(t, botToken, "get_commands", nil)
	require.True(t, botCmds.OK)
	assert.Len(t, botCmds.Result["commands"], 2)

	stranger := e.sessionToken(t, "stranger-1")
	pubCmds := e.call(t, stranger, "get_commands", map[string]any{"bot_id": id})
	require.True(t, pubCmds.OK)
	require.Len(t, pubCmds.Result["commands"], 1)
	first := pubCmds.Result["commands"].([]any)[0].(map[string]any)
	assert.Equal(t, "weather", first["name"])

	// The owner sees the hidden one through a session too.
	ownCmds := e.call(t, owner, "get_commands", map[string]any{"bot_id": id})
	require.True(t, ownCmds.OK)
	assert.Len(t, ownCmds.Result["commands"], 2)
}

func TestGateway_RelayAndPollUpdates(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	id, botToken := e.registerBot(t, owner, "relay_flow_bot")
	user := e.sessionToken(t, "user-9")

	relay := e.call(t, user, "relay_user_message", map[string]any{
		"bot_id": id, "text": "/start hello world",
	})
	require.True(t, relay.OK)
	msg := relay.Result["message"].(map[string]any)
	assert.Equal(t, true, msg["is_command"])
	assert.Equal(t, "start", msg["command_name"])
	assert.Equal(t, "hello world", msg["command_args"])

	poll := e.call(t, botToken, "poll_updates", map[string]any{"timeout": 0})
	require.True(t, poll.OK)
	updates := poll.Result["updates"].([]any)
	require.Len(t, updates, 1)
	got := updates[0].(map[string]any)
	assert.Equal(t, "/start hello world", got["text"])
	seq := got["message_id"].(float64)

	// Claimed updates never come back, with or without offset.
	again := e.call(t, botToken, "poll_updates", map[string]any{"offset": 0, "timeout": 0})
	require.True(t, again.OK)
	assert.Empty(t, again.Result["updates"])

	// Offsets filter out older ids entirely.
	relay2 := e.call(t, user, "relay_user_message", map[string]any{"bot_id": id, "text": "plain"})
	require.True(t, relay2.OK)
	after := e.call(t, botToken, "poll_updates", map[string]any{"offset": seq, "timeout": 0})
	require.True(t, after.OK)
	require.Len(t, after.Result["updates"], 1)
}

func TestGateway_SendEditDeleteMessage(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	_, botToken := e.registerBot(t, owner, "send_flow_bot")

	sent := e.call(t, botToken, "send_message", map[string]any{
		"chat_id": "user-9", "text": "hello *world*", "parse_mode": "markdown",
	})
	require.True(t, sent.OK)
	msg := sent.Result["message"].(map[string]any)
	assert.Equal(t, "hello world", msg["text"])
	assert.Contains(t, msg["entities"], "bold")
	seq := msg["message_id"].(float64)

	edited := e.call(t, botToken, "edit_message", map[string]any{
		"message_id": seq, "chat_id": "user-9", "text": "updated",
	})
	require.True(t, edited.OK)
	assert.Equal(t, "updated", edited.Result["message"].(map[string]any)["text"])

	deleted := e.call(t, botToken, "delete_message", map[string]any{
		"message_id": seq, "chat_id": "user-9",
	})
	require.True(t, deleted.OK)

	// Gone means gone.
	resp := e.call(t, botToken, "edit_message", map[string]any{
		"message_id": seq, "chat_id": "user-9", "text": "zombie",
	})
	assert.Equal(t, http.StatusNotFound, resp.status)
}

func TestGateway_SendMessage_Blocked(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	id, botToken := e.registerBot(t, owner, "blocked_send_bot")

	ctx := context.Background()
	require.NoError(t, e.store.TouchBotUser(ctx, id, "user-9"))
	require.NoError(t, e.store.SetBlocked(ctx, id, "user-9", true))

	resp := e.call(t, botToken, "send_message", map[string]any{
		"chat_id": "user-9", "text": "hi",
	})
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, CodeBlocked, resp.Error.Code)
}

func TestGateway_WebhookLifecycle(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	_, botToken := e.registerBot(t, owner, "webhook_flow_bot")

	// HTTPS only.
	resp := e.call(t, botToken, "set_webhook", map[string]any{"url": "http://example.com/hook"})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, CodeValidation, resp.Error.Code)

	resp = e.call(t, botToken, "set_webhook", map[string]any{
		"url": "https://example.com/hook", "secret": "s3cret",
		"allowed_updates": []string{"command"},
	})
	require.True(t, resp.OK)

	info := e.call(t, botToken, "get_webhook_info", nil)
	require.True(t, info.OK)
	assert.Equal(t, "https://example.com/hook", info.Result["url"])
	assert.Equal(t, true, info.Result["enabled"])
	assert.Equal(t, float64(0), info.Result["pending_update_count"])
	assert.NotContains(t, info.Result, "last_error_date")

	del := e.call(t, botToken, "delete_webhook", nil)
	require.True(t, del.OK)
	info = e.call(t, botToken, "get_webhook_info", nil)
	require.True(t, info.OK)
	assert.Equal(t, false, info.Result["enabled"])
	assert.Equal(t, "", info.Result["url"])
}

func TestGateway_PollLifecycle(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	id, botToken := e.registerBot(t, owner, "poll_flow_bot")
	user := e.sessionToken(t, "user-9")

	// Option count outside [2,10].
	resp := e.call(t, botToken, "send_poll", map[string]any{
		"chat_id": "user-9", "question": "q", "options": []string{"only"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	created := e.call(t, botToken, "send_poll", map[string]any{
		"chat_id": "user-9", "question": "Tea or coffee?", "options": []string{"Tea", "Coffee"},
	})
	require.True(t, created.OK)
	poll := created.Result["poll"].(map[string]any)
	pollID := poll["id"].(string)
	markup := created.Result["message"].(map[string]any)["reply_markup"].(string)
	assert.Contains(t, markup, "poll_vote_"+pollID+"_0")

	// A tap on the Coffee button lands in the tally.
	vote := e.call(t, user, "relay_user_message", map[string]any{
		"bot_id": id, "callback_data": "poll_vote_" + pollID + "_1",
	})
	require.True(t, vote.OK)
	assert.Equal(t, true, vote.Result["poll_vote_recorded"])

	stopped := e.call(t, botToken, "stop_poll", map[string]any{"poll_id": pollID})
	require.True(t, stopped.OK)
	final := stopped.Result["poll"].(map[string]any)
	assert.Equal(t, true, final["is_closed"])
	options := final["options"].([]any)
	assert.Equal(t, float64(0), options[0].(map[string]any)["voter_count"])
	assert.Equal(t, float64(1), options[1].(map[string]any)["voter_count"])
}

func TestGateway_AnswerCallbackQuery(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	id, botToken := e.registerBot(t, owner, "callback_flow_bot")
	user := e.sessionToken(t, "user-9")

	relay := e.call(t, user, "relay_user_message", map[string]any{
		"bot_id": id, "callback_data": "action_confirm",
	})
	require.True(t, relay.OK)
	cbID := relay.Result["callback_query_id"].(string)
	assert.Equal(t, false, relay.Result["poll_vote_recorded"])

	answer := e.call(t, botToken, "answer_callback_query", map[string]any{
		"callback_query_id": cbID, "text": "Confirmed", "show_alert": true,
	})
	require.True(t, answer.OK)

	// One-shot.
	again := e.call(t, botToken, "answer_callback_query", map[string]any{
		"callback_query_id": cbID,
	})
	assert.Equal(t, http.StatusConflict, again.status)
	assert.Equal(t, CodeConflict, again.Error.Code)
}

func TestGateway_UserState(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	_, botToken := e.registerBot(t, owner, "state_flow_bot")

	set := e.call(t, botToken, "set_user_state", map[string]any{
		"user_id": "user-9", "state": "awaiting_email", "state_data": `{"step":1}`,
	})
	require.True(t, set.OK)

	get := e.call(t, botToken, "get_user_state", map[string]any{"user_id": "user-9"})
	require.True(t, get.OK)
	assert.Equal(t, "awaiting_email", get.Result["state"])
	assert.Equal(t, `{"step":1}`, get.Result["state_data"])

	member := e.call(t, botToken, "get_chat_member", map[string]any{"user_id": "user-9"})
	require.True(t, member.OK)
	assert.Equal(t, "user-9", member.Result["member"].(map[string]any)["user_id"])

	// Missing user_id fails validation.
	resp := e.call(t, botToken, "get_user_state", nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

func TestGateway_PublicReads(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	e.registerBot(t, owner, "public_search_bot")

	// Anonymous search finds the public bot.
	found := e.call(t, "", "search_bots", map[string]any{"query": "public_search"})
	require.True(t, found.OK)
	require.Len(t, found.Result["bots"], 1)

	info := e.call(t, "", "get_bot_info", map[string]any{"username": "public_search_bot"})
	require.True(t, info.OK)
	assert.Equal(t, "public_search_bot", info.Result["bot"].(map[string]any)["username"])

	// Private bots are invisible to strangers but visible to the owner.
	priv := e.call(t, owner, "register_bot", map[string]any{"username": "hidden_gem_bot"})
	require.True(t, priv.OK)
	privID := priv.Result["bot"].(map[string]any)["id"].(string)

	resp := e.call(t, "", "get_bot_info", map[string]any{"bot_id": privID})
	assert.Equal(t, http.StatusNotFound, resp.status)
	resp = e.call(t, owner, "get_bot_info", map[string]any{"bot_id": privID})
	require.True(t, resp.OK)
}

func TestGateway_DeleteBotCascades(t *testing.T) {
	e := setupEnv(t)
	owner := e.sessionToken(t, "owner-1")
	id, botToken := e.registerBot(t, owner, "doomed_test_bot")

	require.True(t, e.call(t, owner, "delete_bot", map[string]any{"bot_id": id}).OK)

	// Token dies with the bot.
	resp := e.call(t, botToken, "get_commands", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	list := e.call(t, owner, "list_my_bots", nil)
	require.True(t, list.OK)
	assert.Empty(t, list.Result["bots"])
}

func TestGateway_Healthz(t *testing.T) {
	e := setupEnv(t)

	resp, err := e.srv.Client().Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
