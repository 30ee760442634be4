package frame

import (
	"encoding/json"
	"errors"
	"fmt"

	"cipherline/internal/domain"
)

// ErrMalformedFrame is returned for undecodable or unknown frames.
var ErrMalformedFrame = errors.New("frame: malformed frame")

// Type is a frame tag.
type Type string

const (
	TypeAuth        Type = "auth"
	TypeKeyExchange Type = "key_exchange"
	TypeMessage     Type = "message"
	TypePing        Type = "ping"
	TypePong        Type = "pong"
	TypeError       Type = "error"
)

// Frame is implemented by every payload type in this package and nothing else.
type Frame interface {
	Type() Type
	frame()
}

// Auth carries a bearer token (client) or the session result (relay).
type Auth struct {
	Token     string `json:"token,omitempty"`
	Success   bool   `json:"success,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	// RelayKey is the relay's Ed25519 public key, which signs every
	// envelope it delivers.
	RelayKey []byte `json:"relayKey,omitempty"`
}

// KeyExchange carries an X25519 public key in either direction.
type KeyExchange struct {
	PublicKey []byte `json:"publicKey"`
	Success   bool   `json:"success,omitempty"`
}

// Message is a sealed envelope addressed to RecipientID (client→relay) or
// from SenderID (relay→client).
type Message struct {
	RecipientID string          `json:"recipientId,omitempty"`
	SenderID    string          `json:"senderId,omitempty"`
	Envelope    domain.Envelope `json:"envelope"`
}

type Ping struct{}

type Pong struct{}

// Error reports why the relay rejected a frame.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (Auth) Type() Type        { return TypeAuth }
func (KeyExchange) Type() Type { return TypeKeyExchange }
func (Message) Type() Type     { return TypeMessage }
func (Ping) Type() Type        { return TypePing }
func (Pong) Type() Type        { return TypePong }
func (Error) Type() Type       { return TypeError }

func (Auth) frame()        {}
func (KeyExchange) frame() {}
func (Message) frame()     {}
func (Ping) frame()        {}
func (Pong) frame()        {}
func (Error) frame()       {}

func (e Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

type wire struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode serialises f into its wire form.
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire{Type: f.Type(), Data: data})
}

// Decode parses one wire frame.
func Decode(b []byte) (Frame, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var f Frame
	switch w.Type {
	case TypeAuth:
		var p Auth
		if err := unmarshalData(w.Data, &p); err != nil {
			return nil, err
		}
		f = p
	case TypeKeyExchange:
		var p KeyExchange
		if err := unmarshalData(w.Data, &p); err != nil {
			return nil, err
		}
		f = p
	case TypeMessage:
		var p Message
		if err := unmarshalData(w.Data, &p); err != nil {
			return nil, err
		}
		f = p
	case TypePing:
		f = Ping{}
	case TypePong:
		f = Pong{}
	case TypeError:
		var p Error
		if err := unmarshalData(w.Data, &p); err != nil {
			return nil, err
		}
		f = p
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, w.Type)
	}
	return f, nil
}

func unmarshalData(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedFrame)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
