// Package gateway is the HTTP surface of the bot platform.
//
// Every API call is one named operation in a single table mapping the
// operation to its auth mode and handler; routes under /api/bot/v1/
// are derived from that table. Handlers share one contract: decode and
// validate the JSON body, call the owning service, return a result or
// a domain error. Domain errors are translated once, at the edge, into
// stable machine-readable codes and HTTP statuses.
//
// Auth modes: owner/user sessions are HS256 JWTs from the identity
// service; bots present their "<id>:<secret>" token. Public operations
// accept anonymous callers and quietly honor a session when present.
package gateway
