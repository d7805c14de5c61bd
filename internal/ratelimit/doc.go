// Package ratelimit throttles outbound bot sends.
//
// Each bot gets two sliding windows, the trailing second and the
// trailing minute, held in an in-memory arena of send timestamps.
// Allow is check-then-consume under a per-bot
// mutex: when a ceiling is hit nothing is consumed, so a burst of N+1
// concurrent senders against a ceiling of N admits exactly N. Bots
// never contend with each other; idle entries are pruned by the
// maintenance job.
package ratelimit
