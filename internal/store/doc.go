// Package store provides persistent storage for the bot gateway using SQLite.
//
// # Architecture
//
// All persistence goes through the Store interface; SQLiteStore is the
// single implementation. Services (registry, router, polls, callbacks,
// webhook dispatcher) receive a Store and never touch database handles
// directly.
//
// # Data Models
//
//   - Bot: registered bot identity, token digest, webhook and rate-limit config, counters
//   - Command: per-bot slash command catalog entry
//   - Message: one queue item; Seq is strictly increasing per bot and is the long-poll offset
//   - BotUser: lazily-created (bot, user) relationship with block status and FSM state
//   - Poll / PollOption: interactive polls with atomic vote tallies
//   - CallbackQuery: inline-keyboard taps, answered exactly once
//   - WebhookDelivery: per-attempt webhook push records
//
// # Concurrency
//
// The claim path (ClaimUpdates) reads unprocessed updates and marks them
// processed in one transaction, which is what gives pollers at-most-once
// delivery. Sequence assignment (AppendMessage) likewise reads MAX(seq)
// and inserts in one transaction; the router additionally serializes
// appends per bot so two writers for the same bot never interleave.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// All timestamps are stored as UTC RFC3339 strings.
package store
