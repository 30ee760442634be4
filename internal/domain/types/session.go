package types

import "time"

// Session is the relay's record of one authenticated connection's
// cryptographic context.
type Session struct {
	ID        SessionID     `json:"id"`
	UserID    UserID        `json:"user_id"`
	PublicKey Ed25519Public `json:"public_key"`

	// Key is the symmetric key used for envelopes on this session. Until the
	// key exchange completes it holds the relay's ephemeral X25519 scalar.
	Key SymmetricKey `json:"-"`
	// Keyed is set once a key exchange has replaced the initial material.
	Keyed bool `json:"keyed"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}
