// ABOUTME: The operation table: every API call, its auth mode and handler
// ABOUTME: Routes are derived from this table, one POST route per operation

package gateway

// operations lists every API operation. The table is the single place
// where a call's name, auth mode and handler meet; Handler() derives
// the routes from it.
func (g *Gateway) operations() []operation {
	return []operation{
		// Bot lifecycle (owner session)
		{name: "register_bot", auth: authOwner, handler: g.handleRegisterBot},
		{name: "list_my_bots", auth: authOwner, handler: g.handleListMyBots},
		{name: "update_bot", auth: authOwner, handler: g.handleUpdateBot},
		{name: "delete_bot", auth: authOwner, handler: g.handleDeleteBot},
		{name: "rotate_token", auth: authOwner, handler: g.handleRotateToken},

		// Command catalog
		{name: "set_commands", auth: authBot, handler: g.handleSetCommands},
		{name: "get_commands", auth: authEither, handler: g.handleGetCommands},

		// Messaging
		{name: "relay_user_message", auth: authUser, handler: g.handleRelayUserMessage},
		{name: "send_message", auth: authBot, handler: g.handleSendMessage},
		{name: "edit_message", auth: authBot, handler: g.handleEditMessage},
		{name: "delete_message", auth: authBot, handler: g.handleDeleteMessage},
		{name: "poll_updates", auth: authBot, handler: g.handlePollUpdates},
		{name: "answer_callback_query", auth: authBot, handler: g.handleAnswerCallbackQuery},

		// Webhooks
		{name: "set_webhook", auth: authBot, handler: g.handleSetWebhook},
		{name: "delete_webhook", auth: authBot, handler: g.handleDeleteWebhook},
		{name: "get_webhook_info", auth: authBot, handler: g.handleGetWebhookInfo},

		// Polls
		{name: "send_poll", auth: authBot, handler: g.handleSendPoll},
		{name: "stop_poll", auth: authBot, handler: g.handleStopPoll},

		// Public reads
		{name: "get_bot_info", auth: authPublic, handler: g.handleGetBotInfo},
		{name: "search_bots", auth: authPublic, handler: g.handleSearchBots},

		// Per-user state
		{name: "get_chat_member", auth: authBot, handler: g.handleGetChatMember},
		{name: "set_user_state", auth: authBot, handler: g.handleSetUserState},
		{name: "get_user_state", auth: authBot, handler: g.handleGetUserState},
	}
}
