package relay

import (
	"errors"
	"time"

	"gopkg.in/op/go-logging.v1"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/instrument"
	"cipherline/internal/protocol/frame"
)

// ErrRecipientUnreachable is returned when no keyed connection of the
// recipient could take the message.
var ErrRecipientUnreachable = errors.New("relay: recipient unreachable")

// SessionReader resolves a connection's session without counting as activity.
type SessionReader interface {
	Peek(id domain.SessionID) (domain.Session, error)
}

// Relay delivers messages between users.
type Relay struct {
	registry *Registry
	sessions SessionReader
	signer   domain.Ed25519Private
	metrics  *instrument.Metrics
	log      *logging.Logger
	now      func() time.Time
}

// New returns a Relay that signs outbound envelopes with signer.
func New(registry *Registry, sessions SessionReader, signer domain.Ed25519Private, metrics *instrument.Metrics, log *logging.Logger) *Relay {
	return &Relay{
		registry: registry,
		sessions: sessions,
		signer:   signer,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// PublicKey returns the key recipients verify envelopes against.
func (r *Relay) PublicKey() domain.Ed25519Public { return r.signer.Public() }

type target struct {
	peer Peer
	key  domain.SymmetricKey
}

// Deliver seals plaintext for every keyed connection of recipient and
// returns how many accepted it.
func (r *Relay) Deliver(sender, recipient domain.UserID, plaintext []byte) (int, error) {
	var targets []target
	for _, p := range r.registry.Connections(recipient) {
		sess, err := r.sessions.Peek(p.SessionID())
		if err != nil || !sess.Keyed {
			continue
		}
		targets = append(targets, target{peer: p, key: sess.Key})
	}
	if len(targets) == 0 {
		return 0, ErrRecipientUnreachable
	}

	delivered := 0
	for _, t := range targets {
		env, err := crypto.SealEnvelope(plaintext, t.key, r.signer, r.now())
		if err != nil {
			r.log.Errorf("Failed to seal envelope for %s: %v", t.peer.ConnID(), err)
			r.metrics.DeliveryFailure()
			continue
		}
		msg := frame.Message{SenderID: sender.String(), Envelope: env}
		if err := t.peer.Send(msg); err != nil {
			r.log.Warningf("Dropping message for %s on %s: %v", recipient, t.peer.ConnID(), err)
			r.metrics.DeliveryFailure()
			continue
		}
		r.metrics.Relayed()
		delivered++
	}
	if delivered == 0 {
		return 0, ErrRecipientUnreachable
	}
	r.log.Debugf("Relayed message %s -> %s to %d connection(s)", sender, recipient, delivered)
	return delivered, nil
}
