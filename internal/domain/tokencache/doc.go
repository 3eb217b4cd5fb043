// Package tokencache caches short-lived micro-app capability tokens per
// (user, app) in the durable key-value store.
//
// Expiry comes from the issuer's expiresAt, else the token's own JWT exp
// claim, and is only checked on read. Tokens with neither never expire.
package tokencache
