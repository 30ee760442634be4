// Package store provides the relay's persistence.
//
// BoltStore keeps the monitor's metric samples and alerts, the security
// audit log, and registered accounts in a single bbolt database, with
// values encoded as CBOR. Time-ordered buckets use big-endian
// (timestamp, sequence) keys so range scans and pruning walk in order.
//
// KeyFileStore keeps one Ed25519 signing key on disk, sealed under a
// passphrase (scrypt + ChaCha20-Poly1305). The relay uses it for its
// identity key and relayctl for each user's signing key.
//
// ProfileFileStore is relayctl's JSON record of relay URL, user ID and
// token per username.
package store
