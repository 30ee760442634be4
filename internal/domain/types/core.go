package types

// UserID identifies a registered account on the relay.
type UserID string

// String returns the string form of the user identifier.
func (u UserID) String() string { return string(u) }

// Username is the human-chosen login name of an account.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

// SessionID is the hex encoding of 32 random bytes.
type SessionID string

// String returns the string form of the session identifier.
func (id SessionID) String() string { return string(id) }

// ConnID identifies one live transport connection.
type ConnID string

// String returns the string form of the connection identifier.
func (id ConnID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented in logs.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
