// Package userstate persists per (bot, user) conversation state. The
// state is an opaque string with an optional JSON payload; bots run
// whatever FSM they like on top of it. Reads are consistent with the
// last write, and different (bot, user) pairs never block each other.
package userstate
