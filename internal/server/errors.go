package server

import (
	"errors"

	"cipherline/internal/admission"
	"cipherline/internal/crypto"
	"cipherline/internal/protocol/frame"
	"cipherline/internal/relay"
	"cipherline/internal/session"
)

var (
	ErrConnClosed     = errors.New("server: connection closed")
	ErrSendQueueFull  = errors.New("server: send queue full")
	errMessageReplay  = errors.New("server: envelope replayed")
	errInvalidPayload = errors.New("server: invalid payload")
)

// errorCode maps an internal error to the code reported to the client.
func errorCode(err error) (frame.Code, string) {
	switch {
	case errors.Is(err, frame.ErrMalformedFrame), errors.Is(err, errInvalidPayload):
		return frame.CodeMalformedFrame, "Invalid message format"
	case errors.Is(err, admission.ErrAccountLocked):
		return frame.CodeAccountLocked, "Account temporarily locked"
	case errors.Is(err, session.ErrSessionExpired):
		return frame.CodeSessionExpired, "Session expired"
	case errors.Is(err, session.ErrSessionNotFound):
		return frame.CodeSessionNotFound, "Session not found"
	case errors.Is(err, crypto.ErrSignatureInvalid):
		return frame.CodeSignatureInvalid, "Invalid message signature"
	case errors.Is(err, crypto.ErrMessageTooOld):
		return frame.CodeMessageTooOld, "Message too old"
	case errors.Is(err, errMessageReplay):
		return frame.CodeMessageReplayed, "Message already received"
	case errors.Is(err, crypto.ErrDecrypt), errors.Is(err, crypto.ErrNonceLength), errors.Is(err, crypto.ErrMalformedCiphertext):
		return frame.CodeDecryptFailed, "Message could not be decrypted"
	case errors.Is(err, crypto.ErrPublicKey):
		return frame.CodeMalformedFrame, "Invalid public key"
	case errors.Is(err, relay.ErrRecipientUnreachable):
		return frame.CodeRecipientUnreachable, "Recipient is not connected"
	default:
		return frame.CodeInternal, "Internal error"
	}
}
