// Package registry owns bot identity and lifecycle: registration with
// the username policy and per-owner quota, token rotation, partial
// updates, cascading deletion, listing and public search. Tokens are
// minted here and returned exactly once; only digests reach the store.
package registry
