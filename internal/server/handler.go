package server

import (
	"encoding/hex"
	"errors"
	"time"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/protocol/frame"
)

// handle processes one inbound frame. Errors are reported to the client
// and never close the connection.
func (c *Conn) handle(data []byte) {
	if !c.frames.Allow() {
		c.srv.Metrics.FailedRequest()
		c.reply(frame.Error{Code: frame.CodeRateLimitExceeded, Message: "Too many messages"})
		return
	}

	f, err := frame.Decode(data)
	if err != nil {
		c.fail(err)
		return
	}
	c.srv.Metrics.Frame(string(f.Type()))

	switch f := f.(type) {
	case frame.Auth:
		c.onAuth(f)
	case frame.KeyExchange:
		c.onKeyExchange(f)
	case frame.Message:
		c.onMessage(f)
	case frame.Ping:
		c.alive.Store(true)
		c.reply(frame.Pong{})
	case frame.Pong:
		c.alive.Store(true)
	case frame.Error:
		c.invalidState("Error frames are not accepted")
	}
}

func (c *Conn) onAuth(f frame.Auth) {
	if c.State() != StateUnauthenticated {
		c.invalidState("Already authenticated")
		return
	}
	srv := c.srv

	account := srv.Tokens.ClaimedAccount(f.Token)
	if account != "" {
		if err := srv.Lockout.Check(account); err != nil {
			srv.Metrics.FailedLogin()
			srv.record("", "auth_locked", c.addr, map[string]string{"username": account})
			c.fail(err)
			return
		}
	}

	claims, err := srv.Tokens.VerifyToken(f.Token)
	if err != nil {
		srv.Metrics.FailedLogin()
		if account != "" && srv.Lockout.Fail(account) {
			c.log.Warningf("Locked account after repeated token failures")
		}
		srv.record("", "auth_failure", c.addr, map[string]string{"username": account, "reason": err.Error()})
		c.log.Debugf("Authentication failed: %v", err)
		srv.Metrics.FailedRequest()
		c.reply(frame.Error{Code: frame.CodeAuthenticationFailed, Message: "Authentication failed"})
		return
	}
	if account != "" {
		srv.Lockout.Succeed(account)
	}

	// The session starts out holding the relay's half of the key exchange.
	priv, _, err := crypto.GenerateX25519()
	if err != nil {
		c.fail(err)
		return
	}
	sess, err := srv.Sessions.Create(claims.UserID, claims.PublicKey, domain.SymmetricKey(priv))
	crypto.Wipe(priv[:])
	if err != nil {
		c.fail(err)
		return
	}

	// Bind and register under c.mu so a concurrent close either sees the
	// binding or has already marked the connection closed.
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		srv.Sessions.End(sess.ID)
		return
	}
	c.state = StateAuthenticated
	c.userID = claims.UserID
	c.sessionID = sess.ID
	srv.Registry.Add(claims.UserID, c)
	c.mu.Unlock()

	c.log.Infof("Authenticated as %s", claims.UserID)
	relayKey := srv.Relay.PublicKey()
	c.reply(frame.Auth{
		Success:   true,
		SessionID: sess.ID.String(),
		UserID:    claims.UserID.String(),
		RelayKey:  relayKey[:],
	})
}

func (c *Conn) onKeyExchange(f frame.KeyExchange) {
	state := c.State()
	if state != StateAuthenticated && state != StateActive {
		c.invalidState("Authentication required")
		return
	}
	if len(f.PublicKey) != 32 {
		c.fail(errInvalidPayload)
		return
	}
	var peer domain.X25519Public
	copy(peer[:], f.PublicKey)

	sid := c.SessionID()
	sess, err := c.srv.Sessions.Lookup(sid)
	if err != nil {
		c.fail(err)
		return
	}

	// Before the first exchange the session key slot holds our scalar; a
	// re-key uses a fresh one.
	var priv domain.X25519Private
	if sess.Keyed {
		if priv, _, err = crypto.GenerateX25519(); err != nil {
			c.fail(err)
			return
		}
	} else {
		priv = domain.X25519Private(sess.Key)
	}
	defer crypto.Wipe(priv[:])

	key, err := crypto.KeyExchange(priv, peer)
	if err != nil {
		c.fail(err)
		return
	}
	pub, err := crypto.PublicX25519(priv)
	if err != nil {
		c.fail(err)
		return
	}
	if err := c.srv.Sessions.UpdateKey(sid, key); err != nil {
		c.fail(err)
		return
	}

	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateActive
	}
	c.mu.Unlock()

	c.log.Debugf("Key exchange complete")
	c.reply(frame.KeyExchange{PublicKey: pub[:], Success: true})
}

func (c *Conn) onMessage(f frame.Message) {
	if c.State() != StateActive {
		c.invalidState("Key exchange required")
		return
	}
	if f.RecipientID == "" {
		c.fail(errInvalidPayload)
		return
	}

	// Looking the session up counts as activity.
	sess, err := c.srv.Sessions.Lookup(c.SessionID())
	if err != nil {
		c.fail(err)
		return
	}

	now, maxAge := time.Now(), c.srv.cfg.MaxMessageAge
	pt, err := crypto.OpenEnvelope(f.Envelope, sess.Key, sess.PublicKey, now, maxAge)
	if err != nil {
		c.fail(err)
		return
	}
	defer crypto.Wipe(pt)

	// Only authentic envelopes enter the replay cache, and each stays there
	// for as long as it would pass the freshness check.
	replayKey := sess.UserID.String() + ":" + hex.EncodeToString(f.Envelope.Signature)
	if err := c.srv.replay.Add(replayKey, struct{}{}, replayTTL(f.Envelope, now, maxAge)); err != nil {
		c.srv.Metrics.Replay()
		c.fail(errMessageReplay)
		return
	}

	if _, err := c.srv.Relay.Deliver(sess.UserID, domain.UserID(f.RecipientID), pt); err != nil {
		c.fail(err)
	}
}

// replayTTL is how long env remains fresh after now. Envelopes stamped in
// the future stay fresh for longer than maxAge.
func replayTTL(env domain.Envelope, now time.Time, maxAge time.Duration) time.Duration {
	if ttl := env.Time().Add(maxAge).Sub(now); ttl > maxAge {
		return ttl
	}
	return maxAge
}

func (c *Conn) reply(f frame.Frame) {
	if err := c.Send(f); err != nil && !errors.Is(err, ErrConnClosed) {
		c.log.Warningf("Dropping %s reply: %v", f.Type(), err)
	}
}

func (c *Conn) invalidState(msg string) {
	c.srv.Metrics.FailedRequest()
	c.reply(frame.Error{Code: frame.CodeInvalidState, Message: msg})
}

func (c *Conn) fail(err error) {
	code, msg := errorCode(err)
	if code == frame.CodeInternal {
		c.log.Errorf("Internal error: %v", err)
	} else {
		c.log.Debugf("Rejected frame: %v", err)
	}
	c.srv.Metrics.FailedRequest()
	c.reply(frame.Error{Code: code, Message: msg})
}
