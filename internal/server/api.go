package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"cipherline/internal/admission"
	"cipherline/internal/domain"
	"cipherline/internal/services/identity"
	"cipherline/internal/store"
)

const wsEndpoint = "/ws"

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	PublicKey []byte `json:"publicKey"`
}

type registerResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type keyResponse struct {
	UserID    string `json:"userId"`
	PublicKey []byte `json:"publicKey"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.accessLog)

	r.HandleFunc(wsEndpoint, s.handleUpgrade).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimited)
	api.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/key", s.handleUserKey).Methods(http.MethodGet)
	return r
}

// handleUpgrade admits and upgrades a WebSocket connection. Rejected
// clients are upgraded anyway so they can be told why with a 1008 close.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)

	reason := ""
	switch {
	case !s.Rates.Allow(addr, wsEndpoint):
		reason = "Rate limit exceeded"
	case !s.Conns.Acquire(addr):
		reason = "Too many connections"
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("Upgrade from %s failed: %v", addr, err)
		if reason == "" {
			s.Conns.Release(addr)
		}
		return
	}

	if reason != "" {
		s.Metrics.RejectedConnection()
		s.record("", "connection_rejected", addr, map[string]string{"reason": reason})
		s.log.Infof("Rejected connection from %s: %s", addr, reason)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
		_ = ws.Close()
		return
	}

	c := newConn(s, ws, addr)
	s.track(c)
	c.log.Debugf("Accepted from %s", addr)
	c.run()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.Connections(),
		"sessions":    s.Sessions.Count(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, s.cfg.MaxPayloadBytes, &req) {
		return
	}
	if len(req.PublicKey) != 32 {
		writeError(w, http.StatusBadRequest, "publicKey must be 32 bytes")
		return
	}
	var pub domain.Ed25519Public
	copy(pub[:], req.PublicKey)

	acct, err := s.Accounts.Register(domain.Username(req.Username), req.Password, pub)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, registerResponse{
			UserID:   acct.ID.String(),
			Username: acct.Username.String(),
		})
	case errors.Is(err, identity.ErrUsernameTaken), errors.Is(err, store.ErrAccountExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidUsername), errors.Is(err, identity.ErrWeakPassphrase):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Errorf("Register failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, s.cfg.MaxPayloadBytes, &req) {
		return
	}
	token, err := s.Accounts.Login(domain.Username(req.Username), req.Password, clientAddr(r))
	switch {
	case err == nil:
		claims, verr := s.Tokens.VerifyToken(token)
		if verr != nil {
			s.log.Errorf("Freshly issued token does not verify: %v", verr)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{Token: token, UserID: claims.UserID.String()})
	case errors.Is(err, admission.ErrAccountLocked):
		s.Metrics.FailedRequest()
		writeError(w, http.StatusLocked, "account temporarily locked")
	case errors.Is(err, identity.ErrInvalidCredentials):
		s.Metrics.FailedRequest()
		writeError(w, http.StatusUnauthorized, "invalid username or password")
	default:
		s.log.Errorf("Login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleUserKey(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		writeError(w, http.StatusUnauthorized, "bearer token required")
		return
	}
	if _, err := s.Tokens.VerifyToken(token); err != nil {
		s.Metrics.FailedRequest()
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	id := domain.UserID(mux.Vars(r)["id"])
	pub, found, err := s.Accounts.PublicKey(id)
	switch {
	case err != nil:
		s.log.Errorf("Key lookup for %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	case !found:
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeJSON(w, http.StatusOK, keyResponse{UserID: id.String(), PublicKey: pub[:]})
	}
}

// rateLimited applies the per-address, per-endpoint request window.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if tmpl, err := mux.CurrentRoute(r).GetPathTemplate(); err == nil {
			endpoint = tmpl
		}
		if !s.Rates.Allow(clientAddr(r), endpoint) {
			s.Metrics.FailedRequest()
			w.Header().Set("Retry-After", "900")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Upgraded connections outlive the request; they log for themselves.
		if r.URL.Path == wsEndpoint {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		s.log.Debugf("%s %s %s %d %dB %v", r.Method, r.URL.Path, clientAddr(r), sw.status, sw.bytes, time.Since(start))
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, out any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
