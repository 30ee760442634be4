package interfaces

import (
	"time"

	domaintypes "cipherline/internal/domain/types"
)

// AccountStore persists registered accounts.
type AccountStore interface {
	CreateAccount(account domaintypes.Account) error
	AccountByName(username domaintypes.Username) (domaintypes.Account, bool, error)
	AccountByID(id domaintypes.UserID) (domaintypes.Account, bool, error)
}

// EventStore is the append-only log behind the monitor and the audit trail.
type EventStore interface {
	AppendSample(sample domaintypes.MetricSample) error
	Samples(since time.Time) ([]domaintypes.MetricSample, error)

	AppendAlert(alert domaintypes.Alert) (uint64, error)
	ResolveAlert(id uint64) error
	Alerts(unresolvedOnly bool) ([]domaintypes.Alert, error)

	AppendEvent(event domaintypes.SecurityEvent) error
	Events(since time.Time) ([]domaintypes.SecurityEvent, error)

	// Prune drops samples and resolved alerts older than before and
	// returns how many records were removed.
	Prune(before time.Time) (int, error)
	// Size reports the on-disk footprint in bytes.
	Size() (int64, error)
}

// RelayKeyStore keeps the relay's long-term signing key.
type RelayKeyStore interface {
	SaveRelayKey(passphrase string, key domaintypes.Ed25519Private) error
	LoadRelayKey(passphrase string) (domaintypes.Ed25519Private, error)
}
