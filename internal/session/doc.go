// Package session keeps the relay's table of live cryptographic sessions.
//
// A session is created when a connection authenticates, gets its key
// replaced by the key exchange, and disappears on close, logout, expiry or
// eviction. Expiry is enforced lazily on every lookup and eagerly by a
// periodic sweep. Each user holds at most MaxPerUser sessions; creating one
// more evicts the least recently active.
//
// All state sits behind one mutex, so "look up, check expiry, refresh
// activity" and "count, evict, insert" are each a single atomic step.
package session
