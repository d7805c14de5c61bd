// Package dedupe tracks recently seen update keys in a TTL cache so
// the webhook dispatcher enqueues each update at most once per window.
package dedupe
