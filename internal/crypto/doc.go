// Package crypto exposes the primitives the relay builds its envelopes from.
//
// Contents
//
//   - Memory-hard key derivation from a password (DeriveKey, scrypt)
//   - Authenticated symmetric encryption (Encrypt, Decrypt; XSalsa20-Poly1305)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     Sign, Verify)
//   - X25519 key agreement hashed to a session key (GenerateX25519,
//     KeyExchange)
//   - Keyed BLAKE2b message authentication (MAC, VerifyMAC)
//   - Sealed and signed message envelopes (SealEnvelope, OpenEnvelope)
//   - Best-effort memory wiping for sensitive byte slices and keys (Wipe,
//     WipeKey)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Every function is pure apart from reading randomness. Failures are
// reported with the sentinel errors in errors.go and are never retried.
// Callers should treat returned secrets as sensitive and rely on Wipe when
// practical to reduce lifetime in memory.
package crypto
