package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/protocol/frame"
)

// DefaultMaxAge bounds the age of envelopes accepted from the relay.
const DefaultMaxAge = 5 * time.Minute

var (
	ErrNotKeyed       = errors.New("client: no session key")
	ErrUnexpectedType = errors.New("client: unexpected frame")
)

// Conn is an authenticated relay connection.
type Conn struct {
	ws     *websocket.Conn
	signer domain.Ed25519Private
	MaxAge time.Duration

	wmu sync.Mutex

	mu        sync.Mutex
	userID    domain.UserID
	sessionID domain.SessionID
	relayKey  domain.Ed25519Public
	key       domain.SymmetricKey
	keyed     bool
}

// Received is a message opened from the relay.
type Received struct {
	From      domain.UserID
	Plaintext []byte
	SentAt    time.Time
}

// Dial connects to a relay WebSocket endpoint. signer is the account's
// registered signing key and signs every outbound envelope.
func Dial(ctx context.Context, url string, signer domain.Ed25519Private) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws, signer: signer, MaxAge: DefaultMaxAge}, nil
}

// UserID returns the authenticated user, if any.
func (c *Conn) UserID() domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// SessionID returns the relay session, if any.
func (c *Conn) SessionID() domain.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// RelayKey returns the key the relay signs delivered envelopes with.
func (c *Conn) RelayKey() domain.Ed25519Public {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relayKey
}

// SetReadDeadline bounds the next reads. A zero t clears it.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.ws.SetReadDeadline(t) }

// Write sends one raw frame.
func (c *Conn) Write(f frame.Frame) error {
	b, err := frame.Encode(f)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Next reads the next frame. Error frames are returned as frame.Error values
// alongside a nil error; transport failures return a non-nil error.
func (c *Conn) Next() (frame.Frame, error) {
	_, b, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return frame.Decode(b)
}

// Authenticate presents token and waits for the relay's answer.
func (c *Conn) Authenticate(token string) error {
	if err := c.Write(frame.Auth{Token: token}); err != nil {
		return err
	}
	f, err := c.expect(frame.TypeAuth)
	if err != nil {
		return err
	}
	a := f.(frame.Auth)
	if !a.Success {
		return fmt.Errorf("%w: authentication not confirmed", ErrUnexpectedType)
	}

	c.mu.Lock()
	c.userID = domain.UserID(a.UserID)
	c.sessionID = domain.SessionID(a.SessionID)
	copy(c.relayKey[:], a.RelayKey)
	c.mu.Unlock()
	return nil
}

// KeyExchange agrees a fresh session key with the relay.
func (c *Conn) KeyExchange() error {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	defer crypto.Wipe(priv[:])

	if err := c.Write(frame.KeyExchange{PublicKey: pub[:]}); err != nil {
		return err
	}
	f, err := c.expect(frame.TypeKeyExchange)
	if err != nil {
		return err
	}
	kx := f.(frame.KeyExchange)
	if len(kx.PublicKey) != 32 {
		return crypto.ErrPublicKey
	}
	var relayPub domain.X25519Public
	copy(relayPub[:], kx.PublicKey)

	key, err := crypto.KeyExchange(priv, relayPub)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.key = key
	c.keyed = true
	c.mu.Unlock()
	return nil
}

// Seal encrypts and signs plaintext under the session key.
func (c *Conn) Seal(plaintext []byte) (domain.Envelope, error) {
	c.mu.Lock()
	key, keyed := c.key, c.keyed
	c.mu.Unlock()
	if !keyed {
		return domain.Envelope{}, ErrNotKeyed
	}
	return crypto.SealEnvelope(plaintext, key, c.signer, time.Now())
}

// Send seals plaintext and addresses it to recipient. Delivery failures
// arrive later as Error frames from Next.
func (c *Conn) Send(recipient domain.UserID, plaintext []byte) error {
	env, err := c.Seal(plaintext)
	if err != nil {
		return err
	}
	return c.Write(frame.Message{RecipientID: recipient.String(), Envelope: env})
}

// Open verifies and decrypts a message delivered by the relay.
func (c *Conn) Open(m frame.Message) (Received, error) {
	c.mu.Lock()
	key, keyed, relayKey := c.key, c.keyed, c.relayKey
	c.mu.Unlock()
	if !keyed {
		return Received{}, ErrNotKeyed
	}
	pt, err := crypto.OpenEnvelope(m.Envelope, key, relayKey, time.Now(), c.MaxAge)
	if err != nil {
		return Received{}, err
	}
	return Received{From: domain.UserID(m.SenderID), Plaintext: pt, SentAt: m.Envelope.Time()}, nil
}

// Receive returns the next delivered message. Pongs are skipped; an Error
// frame is returned as the error.
func (c *Conn) Receive() (Received, error) {
	for {
		f, err := c.Next()
		if err != nil {
			return Received{}, err
		}
		switch f := f.(type) {
		case frame.Message:
			return c.Open(f)
		case frame.Error:
			return Received{}, f
		case frame.Pong:
		default:
			return Received{}, fmt.Errorf("%w: %s", ErrUnexpectedType, f.Type())
		}
	}
}

// Close sends a normal close and releases the connection.
func (c *Conn) Close() error {
	c.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.wmu.Unlock()

	c.mu.Lock()
	crypto.WipeKey(&c.key)
	c.keyed = false
	c.mu.Unlock()
	return c.ws.Close()
}

func (c *Conn) expect(t frame.Type) (frame.Frame, error) {
	f, err := c.Next()
	if err != nil {
		return nil, err
	}
	if e, ok := f.(frame.Error); ok {
		return nil, e
	}
	if f.Type() != t {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedType, t, f.Type())
	}
	return f, nil
}
