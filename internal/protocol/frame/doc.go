// Package frame implements the relay's JSON wire frames.
//
// # Overview
//
// Every frame travels as {"type": <tag>, "data": <payload>}. The set of tags
// is closed:
//   - auth          client sends a token; relay replies with the session
//   - key_exchange  client sends its X25519 public key; relay replies with its own
//   - message       client→relay {recipientId, envelope}; relay→client {senderId, envelope}
//   - ping / pong   application-level liveness
//   - error         relay reports a failed frame as {code, message}
//
// Decode maps a tag to one concrete Go type, so handlers switch
// exhaustively on the result. Unknown tags and malformed payloads yield
// ErrMalformedFrame.
//
// Binary fields ([]byte) are standard base64 in JSON.
package frame
