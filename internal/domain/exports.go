package domain

import (
	interfaces "cipherline/internal/domain/interfaces"
	types "cipherline/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID         = types.UserID
	Username       = types.Username
	SessionID      = types.SessionID
	ConnID         = types.ConnID
	Fingerprint    = types.Fingerprint
	X25519Public   = types.X25519Public
	X25519Private  = types.X25519Private
	Ed25519Public  = types.Ed25519Public
	Ed25519Private = types.Ed25519Private
	SymmetricKey   = types.SymmetricKey
	Session        = types.Session
	Envelope       = types.Envelope
	Account        = types.Account
	Claims         = types.Claims
	Severity       = types.Severity
	AlertKind      = types.AlertKind
	MetricSample   = types.MetricSample
	Alert          = types.Alert
	SecurityEvent  = types.SecurityEvent
)

const (
	SeverityLow    = types.SeverityLow
	SeverityMedium = types.SeverityMedium
	SeverityHigh   = types.SeverityHigh

	AlertLoginFailure       = types.AlertLoginFailure
	AlertRateLimitExceeded  = types.AlertRateLimitExceeded
	AlertSuspiciousActivity = types.AlertSuspiciousActivity
	AlertResourceUsage      = types.AlertResourceUsage
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	AccountStore  = interfaces.AccountStore
	EventStore    = interfaces.EventStore
	RelayKeyStore = interfaces.RelayKeyStore
	TokenVerifier = interfaces.TokenVerifier
	TokenIssuer   = interfaces.TokenIssuer
	Authenticator = interfaces.Authenticator
	EventSink     = interfaces.EventSink
)
