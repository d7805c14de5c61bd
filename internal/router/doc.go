// Package router is the heart of the gateway: the ordered per-bot
// message queue.
//
// Incoming messages get a strictly increasing per-bot sequence number
// assigned under a per-bot mutex, so the number doubles as a race-free
// long-poll offset. PollUpdates claims unprocessed updates and marks
// them processed inside one store transaction, which is what gives
// at-most-once delivery to pollers; when nothing is queued it blocks
// on a per-bot wakeup channel until an update arrives, the timeout
// passes or the caller goes away.
//
// Outgoing sends clear the rate limiter before anything is persisted,
// then flow through entity parsing, media upload, the delivery service
// and the realtime notifier.
package router
