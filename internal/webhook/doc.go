// Package webhook pushes incoming updates to bots that registered a
// webhook instead of polling.
//
// Every eligible update becomes a durable delivery record, then a job
// for the bounded worker pool. A worker POSTs the JSON payload with an
// HMAC-SHA256 signature header and walks the retry state machine:
// pending, retrying with 1s/2s/4s/8s/16s backoff, then delivered or
// terminally failed after five attempts. Disabling a webhook cancels
// the bot's in-flight retries; failures surface only through
// get_webhook_info.
package webhook
