package frame

// Code names an error kind in an Error frame.
type Code string

const (
	CodeMalformedFrame       Code = "malformed_frame"
	CodeInvalidState         Code = "invalid_state"
	CodeAuthenticationFailed Code = "authentication_failed"
	CodeAccountLocked        Code = "account_locked"
	CodeSessionNotFound      Code = "session_not_found"
	CodeSessionExpired       Code = "session_expired"
	CodeSignatureInvalid     Code = "signature_invalid"
	CodeMessageTooOld        Code = "message_too_old"
	CodeMessageReplayed      Code = "message_replayed"
	CodeDecryptFailed        Code = "decrypt_failed"
	CodeRecipientUnreachable Code = "recipient_unreachable"
	CodeRateLimitExceeded    Code = "rate_limit_exceeded"
	CodeTooManyConnections   Code = "too_many_connections"
	CodeInternal             Code = "internal"
)
