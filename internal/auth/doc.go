// Package auth handles both caller populations of the gateway.
//
// Bot owners authenticate with short-lived HS256 JWT session tokens
// (JWTVerifier). Bots authenticate with long-lived opaque tokens of the
// form <botID>:<64 hex secret>; only the SHA-256 digest of the secret is
// stored, so a database leak never leaks usable tokens, and rotation is
// a single digest swap.
//
// Both paths converge on Identity, carried through request contexts with
// WithIdentity/FromContext. Handlers never re-parse credentials.
package auth
