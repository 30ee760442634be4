package interfaces

import (
	domaintypes "cipherline/internal/domain/types"
)

// TokenVerifier validates bearer tokens presented in auth frames.
type TokenVerifier interface {
	VerifyToken(token string) (domaintypes.Claims, error)
	// ClaimedAccount returns the account a token names without checking it,
	// so failures can be charged to that account.
	ClaimedAccount(token string) string
}

// TokenIssuer mints bearer tokens for authenticated accounts.
type TokenIssuer interface {
	IssueToken(account domaintypes.Account) (string, error)
}

// Authenticator checks credentials and registers accounts.
type Authenticator interface {
	Register(username domaintypes.Username, password string, pub domaintypes.Ed25519Public) (domaintypes.Account, error)
	Login(username domaintypes.Username, password string, addr string) (string, error)
}

// EventSink receives audit events.
type EventSink interface {
	RecordEvent(event domaintypes.SecurityEvent)
}
