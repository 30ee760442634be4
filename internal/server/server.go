package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"gopkg.in/op/go-logging.v1"

	"cipherline/internal/admission"
	"cipherline/internal/domain"
	"cipherline/internal/instrument"
	"cipherline/internal/log"
	"cipherline/internal/relay"
	"cipherline/internal/session"
	"cipherline/internal/worker"
)

// Config holds the transport parameters of the edge.
type Config struct {
	MaxPayloadBytes   int64
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	SendQueueSize     int
	MaxMessageAge     time.Duration
	FramesPerMinute   int
	AllowedOrigins    []string
}

// AccountService is the account collaborator behind the HTTP API.
type AccountService interface {
	domain.Authenticator
	PublicKey(id domain.UserID) (domain.Ed25519Public, bool, error)
}

// Deps are the components a Server drives.
type Deps struct {
	Sessions *session.Store
	Registry *relay.Registry
	Relay    *relay.Relay
	Conns    *admission.ConnLimiter
	Rates    *admission.RateLimiter
	Lockout  *admission.Lockout
	Tokens   domain.TokenVerifier
	Accounts AccountService
	Metrics  *instrument.Metrics
	// Events receives audit events; may be nil.
	Events domain.EventSink
}

// Server accepts client connections and serves the HTTP API.
type Server struct {
	worker.Worker
	Deps

	cfg      Config
	logs     *log.Backend
	log      *logging.Logger
	upgrader websocket.Upgrader
	replay   *cache.Cache
	router   *mux.Router

	sync.Mutex
	live map[domain.ConnID]*Conn

	httpSrv *http.Server
}

// New builds a Server. Call StartHeartbeat (or Start) to begin pinging
// connections.
func New(cfg Config, deps Deps, logs *log.Backend) *Server {
	s := &Server{
		Deps:   deps,
		cfg:    cfg,
		logs:   logs,
		log:    logs.GetLogger("server"),
		replay: cache.New(cfg.MaxMessageAge, cfg.MaxMessageAge),
		live:   make(map[domain.ConnID]*Conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr, serves until Shutdown, and starts the heartbeat.
// It returns the bound address.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Go(func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP server exited: %v", err)
		}
	})
	s.StartHeartbeat()
	s.log.Noticef("Listening on %v", ln.Addr())
	return ln.Addr(), nil
}

// Shutdown stops accepting, closes every connection and stops the workers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	for _, c := range s.snapshot() {
		c.close(websocket.CloseGoingAway, "Server shutting down")
	}
	s.Halt()
	return err
}

// Connections returns the number of open connections, authenticated or not.
func (s *Server) Connections() int {
	s.Lock()
	defer s.Unlock()
	return len(s.live)
}

func (s *Server) track(c *Conn) {
	s.Lock()
	s.live[c.id] = c
	s.Unlock()
}

func (s *Server) forget(c *Conn) {
	s.Lock()
	delete(s.live, c.id)
	s.Unlock()
}

func (s *Server) snapshot() []*Conn {
	s.Lock()
	defer s.Unlock()
	out := make([]*Conn, 0, len(s.live))
	for _, c := range s.live {
		out = append(out, c)
	}
	return out
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (s *Server) record(id domain.UserID, kind, addr string, details map[string]string) {
	if s.Events == nil {
		return
	}
	s.Events.RecordEvent(domain.SecurityEvent{
		UserID:    id,
		Type:      kind,
		Address:   addr,
		Details:   details,
		Timestamp: time.Now(),
	})
}

// clientAddr is the host part of the peer address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
