// Package maintenance runs the periodic retention sweep: terminal
// webhook delivery records and processed incoming messages past their
// retention window are deleted, per-bot active-user counters are
// refreshed, and idle rate-limiter entries are pruned.
package maintenance
