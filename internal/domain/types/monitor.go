package types

import "time"

// Severity grades an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertKind classifies what tripped an alert.
type AlertKind string

const (
	AlertLoginFailure       AlertKind = "login_failure"
	AlertRateLimitExceeded  AlertKind = "rate_limit_exceeded"
	AlertSuspiciousActivity AlertKind = "suspicious_activity"
	AlertResourceUsage      AlertKind = "resource_usage"
)

// MetricSample is one interval snapshot of relay health.
type MetricSample struct {
	Timestamp         time.Time `cbor:"1,keyasint" json:"timestamp"`
	ActiveConnections int       `cbor:"2,keyasint" json:"active_connections"`
	ActiveSessions    int       `cbor:"3,keyasint" json:"active_sessions"`
	FailedLogins      uint64    `cbor:"4,keyasint" json:"failed_logins"`
	FailedRequests    uint64    `cbor:"5,keyasint" json:"failed_requests"`
	MemoryUsage       float64   `cbor:"6,keyasint" json:"memory_usage"`
	CPUUsage          float64   `cbor:"7,keyasint" json:"cpu_usage"`
	StorageBytes      int64     `cbor:"8,keyasint" json:"storage_bytes"`
}

// Alert records a threshold crossing.
type Alert struct {
	ID        uint64            `cbor:"1,keyasint" json:"id"`
	Kind      AlertKind         `cbor:"2,keyasint" json:"kind"`
	Severity  Severity          `cbor:"3,keyasint" json:"severity"`
	Message   string            `cbor:"4,keyasint" json:"message"`
	Details   map[string]string `cbor:"5,keyasint,omitempty" json:"details,omitempty"`
	Timestamp time.Time         `cbor:"6,keyasint" json:"timestamp"`
	Resolved  bool              `cbor:"7,keyasint" json:"resolved"`
}

// SecurityEvent is one audit log entry.
type SecurityEvent struct {
	UserID    UserID            `cbor:"1,keyasint" json:"user_id,omitempty"`
	Type      string            `cbor:"2,keyasint" json:"type"`
	Details   map[string]string `cbor:"3,keyasint,omitempty" json:"details,omitempty"`
	Address   string            `cbor:"4,keyasint,omitempty" json:"address,omitempty"`
	Timestamp time.Time         `cbor:"5,keyasint" json:"timestamp"`
}
