package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gopkg.in/op/go-logging.v1"

	"cipherline/internal/admission"
	"cipherline/internal/domain"
	"cipherline/internal/protocol/frame"
	"cipherline/internal/relay"
)

// State is a connection's position in the protocol.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is one client connection.
type Conn struct {
	id   domain.ConnID
	srv  *Server
	ws   *websocket.Conn
	addr string
	log  *logging.Logger

	frames *admission.FrameLimiter
	sendCh chan []byte
	closed chan struct{}
	once   sync.Once
	alive  atomic.Bool

	mu        sync.RWMutex
	state     State
	userID    domain.UserID
	sessionID domain.SessionID
}

func newConn(srv *Server, ws *websocket.Conn, addr string) *Conn {
	id := domain.ConnID(uuid.NewString())
	c := &Conn{
		id:     id,
		srv:    srv,
		ws:     ws,
		addr:   addr,
		log:    srv.logs.GetLogger("conn:" + id.String()[:8]),
		frames: admission.NewFrameLimiter(srv.cfg.FramesPerMinute),
		sendCh: make(chan []byte, srv.cfg.SendQueueSize),
		closed: make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// ConnID implements relay.Peer.
func (c *Conn) ConnID() domain.ConnID { return c.id }

// SessionID implements relay.Peer.
func (c *Conn) SessionID() domain.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// State returns the current protocol state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Send queues f for the write pump. It never blocks; a full queue drops
// the frame and returns ErrSendQueueFull.
func (c *Conn) Send(f frame.Frame) error {
	b, err := frame.Encode(f)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.sendCh <- b:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

func (c *Conn) run() {
	c.srv.Go(c.writePump)
	c.readLoop()
}

func (c *Conn) readLoop() {
	defer c.close(websocket.CloseNormalClosure, "")

	c.ws.SetReadLimit(c.srv.cfg.MaxPayloadBytes)
	c.ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debugf("Read failed: %v", err)
			}
			return
		}
		c.handle(data)
		if c.State() == StateClosed {
			return
		}
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case <-c.srv.HaltCh():
			return
		case b := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debugf("Write failed: %v", err)
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

func (c *Conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.srv.cfg.WriteTimeout))
}

// close tears the connection down. Cleanup runs exactly once regardless of
// which path gets here first.
func (c *Conn) close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)

		if code != websocket.CloseAbnormalClosure {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = c.ws.Close()

		c.mu.Lock()
		c.state = StateClosed
		uid, sid := c.userID, c.sessionID
		c.mu.Unlock()

		if uid != "" {
			c.srv.Registry.Remove(uid, c)
		}
		if sid != "" {
			c.srv.Sessions.End(sid)
		}
		c.srv.Conns.Release(c.addr)
		c.srv.forget(c)
		c.log.Debugf("Closed (%s)", reason)
	})
}

var _ relay.Peer = (*Conn)(nil)
