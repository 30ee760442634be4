package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"cipherline/internal/admission"
	"cipherline/internal/client"
	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/instrument"
	"cipherline/internal/log"
	"cipherline/internal/protocol/frame"
	"cipherline/internal/relay"
	"cipherline/internal/server"
	"cipherline/internal/services/identity"
	"cipherline/internal/session"
	"cipherline/internal/store"
)

const password = "Correct-Horse-9"

type harness struct {
	srv      *server.Server
	api      *client.HTTP
	wsURL    string
	conns    *admission.ConnLimiter
	sessions *session.Store
	registry *relay.Registry
	metrics  *instrument.Metrics
}

type user struct {
	name   string
	id     domain.UserID
	token  string
	signer domain.Ed25519Private
}

func testConfig() server.Config {
	return server.Config{
		MaxPayloadBytes: 1 << 16,
		WriteTimeout:    time.Second,
		SendQueueSize:   16,
		MaxMessageAge:   5 * time.Minute,
		FramesPerMinute: 1000,
	}
}

func newHarness(t *testing.T, cfg server.Config, opts ...session.Option) *harness {
	t.Helper()
	logs := log.Discard()

	db, err := store.OpenBolt(t.TempDir() + "/relay.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tokens, err := identity.NewTokenAuthority([]byte("test secret"), time.Hour)
	require.NoError(t, err)
	_, signer, err := generateSigner()
	require.NoError(t, err)

	metrics := instrument.New()
	lockout := admission.NewLockout(5, 15*time.Minute)
	opts = append([]session.Option{session.WithLogger(logs.GetLogger("session"))}, opts...)
	sessions := session.New(session.DefaultConfig(), opts...)
	registry := relay.NewRegistry()
	conns := admission.NewConnLimiter(3)

	srv := server.New(cfg, server.Deps{
		Sessions: sessions,
		Registry: registry,
		Relay:    relay.New(registry, sessions, signer, metrics, logs.GetLogger("relay")),
		Conns:    conns,
		Rates:    admission.NewRateLimiter(100, 15*time.Minute),
		Lockout:  lockout,
		Tokens:   tokens,
		Accounts: identity.New(db, tokens, lockout, metrics, nil, logs.GetLogger("identity"),
			identity.HashParams{Memory: 1024, Time: 1, Threads: 1}),
		Metrics: metrics,
	}, logs)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &harness{
		srv:      srv,
		api:      client.NewHTTP(ts.URL),
		wsURL:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		conns:    conns,
		sessions: sessions,
		registry: registry,
		metrics:  metrics,
	}
}

func generateSigner() (domain.Ed25519Public, domain.Ed25519Private, error) {
	priv, pub, err := crypto.GenerateEd25519()
	return pub, priv, err
}

func (h *harness) register(t *testing.T, name string) user {
	t.Helper()
	pub, priv, err := generateSigner()
	require.NoError(t, err)
	id, err := h.api.Register(name, password, pub)
	require.NoError(t, err)
	token, loginID, err := h.api.Login(name, password)
	require.NoError(t, err)
	require.Equal(t, id, loginID)
	return user{name: name, id: id, token: token, signer: priv}
}

func (h *harness) dial(t *testing.T, signer domain.Ed25519Private) *client.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, h.wsURL, signer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	return c
}

func (h *harness) connect(t *testing.T, u user) *client.Conn {
	t.Helper()
	c := h.dial(t, u.signer)
	require.NoError(t, c.Authenticate(u.token))
	require.NoError(t, c.KeyExchange())
	return c
}

func requireCode(t *testing.T, err error, code frame.Code) {
	t.Helper()
	var fe frame.Error
	require.True(t, errors.As(err, &fe), "want %s, got %v", code, err)
	require.Equal(t, code, fe.Code)
}

func TestRelay_EndToEnd(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")

	ac := h.connect(t, alice)
	bc := h.connect(t, bob)
	require.Equal(t, alice.id, ac.UserID())
	require.NotEmpty(t, ac.SessionID())
	require.Equal(t, 2, h.sessions.Count())

	require.NoError(t, ac.Send(bob.id, []byte("hello bob")))
	got, err := bc.Receive()
	require.NoError(t, err)
	require.Equal(t, alice.id, got.From)
	require.Equal(t, []byte("hello bob"), got.Plaintext)

	require.NoError(t, bc.Send(alice.id, []byte("hi alice")))
	got, err = ac.Receive()
	require.NoError(t, err)
	require.Equal(t, bob.id, got.From)
	require.Equal(t, []byte("hi alice"), got.Plaintext)
}

func TestRelay_FanOutToEveryRecipientConnection(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")

	ac := h.connect(t, alice)
	b1 := h.connect(t, bob)
	b2 := h.connect(t, bob)

	require.NoError(t, ac.Send(bob.id, []byte("to both")))
	for _, c := range []*client.Conn{b1, b2} {
		got, err := c.Receive()
		require.NoError(t, err)
		require.Equal(t, []byte("to both"), got.Plaintext)
	}
}

func TestRelay_RecipientUnreachable(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")

	ac := h.connect(t, alice)
	require.NoError(t, ac.Send(bob.id, []byte("anyone there?")))
	_, err := ac.Receive()
	requireCode(t, err, frame.CodeRecipientUnreachable)

	// Authenticated but not yet keyed connections do not receive.
	bc := h.dial(t, bob.signer)
	require.NoError(t, bc.Authenticate(bob.token))
	require.NoError(t, ac.Send(bob.id, []byte("still nobody")))
	_, err = ac.Receive()
	requireCode(t, err, frame.CodeRecipientUnreachable)
}

func TestRelay_ReplayRejected(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	ac := h.connect(t, alice)
	bc := h.connect(t, bob)

	env, err := ac.Seal([]byte("once"))
	require.NoError(t, err)
	msg := frame.Message{RecipientID: bob.id.String(), Envelope: env}
	require.NoError(t, ac.Write(msg))
	require.NoError(t, ac.Write(msg))

	got, err := bc.Receive()
	require.NoError(t, err)
	require.Equal(t, []byte("once"), got.Plaintext)

	_, err = ac.Receive()
	requireCode(t, err, frame.CodeMessageReplayed)
}

func TestRelay_ReplayOfFutureStampedEnvelopeRejected(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageAge = time.Second
	h := newHarness(t, cfg)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	ac := h.connect(t, alice)
	bc := h.connect(t, bob)

	// Fresh until roughly 1.9s from now.
	env, err := ac.Seal([]byte("once"))
	require.NoError(t, err)
	env.Timestamp += (900 * time.Millisecond).Milliseconds()
	msg := frame.Message{RecipientID: bob.id.String(), Envelope: env}
	require.NoError(t, ac.Write(msg))
	got, err := bc.Receive()
	require.NoError(t, err)
	require.Equal(t, []byte("once"), got.Plaintext)

	time.Sleep(1300 * time.Millisecond)
	require.NoError(t, ac.Write(msg))
	_, err = ac.Receive()
	requireCode(t, err, frame.CodeMessageReplayed)
}

func TestRelay_ForgedSignatureRejected(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	h.connect(t, bob)

	// Signed with a key that is not alice's registered one.
	_, other, err := generateSigner()
	require.NoError(t, err)
	ac := h.dial(t, other)
	require.NoError(t, ac.Authenticate(alice.token))
	require.NoError(t, ac.KeyExchange())

	require.NoError(t, ac.Send(bob.id, []byte("forged")))
	_, err = ac.Receive()
	requireCode(t, err, frame.CodeSignatureInvalid)
}

func TestRelay_StaleEnvelopeRejected(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")
	h.connect(t, bob)
	ac := h.connect(t, alice)

	env, err := ac.Seal([]byte("late"))
	require.NoError(t, err)
	env.Timestamp -= (10 * time.Minute).Milliseconds()
	require.NoError(t, ac.Write(frame.Message{RecipientID: bob.id.String(), Envelope: env}))
	_, err = ac.Receive()
	requireCode(t, err, frame.CodeMessageTooOld)
}

func TestConn_InvalidStates(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	c := h.dial(t, alice.signer)

	require.NoError(t, c.Write(frame.KeyExchange{PublicKey: make([]byte, 32)}))
	f, err := c.Next()
	require.NoError(t, err)
	require.Equal(t, frame.CodeInvalidState, f.(frame.Error).Code)

	require.NoError(t, c.Write(frame.Message{RecipientID: "x"}))
	f, err = c.Next()
	require.NoError(t, err)
	require.Equal(t, frame.CodeInvalidState, f.(frame.Error).Code)

	require.NoError(t, c.Authenticate(alice.token))

	// Messages still need a key.
	require.NoError(t, c.Write(frame.Message{RecipientID: "x"}))
	f, err = c.Next()
	require.NoError(t, err)
	require.Equal(t, frame.CodeInvalidState, f.(frame.Error).Code)

	// A second auth is refused.
	err = c.Authenticate(alice.token)
	requireCode(t, err, frame.CodeInvalidState)
}

func TestConn_MalformedFrameKeepsConnection(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	c := h.dial(t, alice.signer)

	ws, _, err := websocket.DefaultDialer.Dial(h.wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	_, b, err := ws.ReadMessage()
	require.NoError(t, err)
	f, err := frame.Decode(b)
	require.NoError(t, err)
	require.Equal(t, frame.CodeMalformedFrame, f.(frame.Error).Code)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	_, b, err = ws.ReadMessage()
	require.NoError(t, err)
	f, err = frame.Decode(b)
	require.NoError(t, err)
	require.Equal(t, frame.TypePong, f.Type())

	require.NoError(t, c.Authenticate(alice.token))
}

func TestConn_AuthFailureAndLockout(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	c := h.dial(t, alice.signer)

	payload, _, _ := strings.Cut(alice.token, ".")
	forged := payload + ".AAAA"
	for i := 0; i < 5; i++ {
		requireCode(t, c.Authenticate(forged), frame.CodeAuthenticationFailed)
	}
	requireCode(t, c.Authenticate(alice.token), frame.CodeAccountLocked)
	require.GreaterOrEqual(t, h.metrics.FailedLogins(), uint64(5))

	_, _, err := h.api.Login("alice", password)
	var se *client.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusLocked, se.Status)
}

func TestAdmission_FourthConnectionRejected(t *testing.T) {
	h := newHarness(t, testConfig())
	for i := 0; i < 3; i++ {
		ws, _, err := websocket.DefaultDialer.Dial(h.wsURL, nil)
		require.NoError(t, err)
		defer ws.Close()
	}

	ws, _, err := websocket.DefaultDialer.Dial(h.wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = ws.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	require.Equal(t, 3, h.conns.Count("127.0.0.1"))
}

func TestConn_CloseReleasesEverything(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")
	c := h.connect(t, alice)
	require.Equal(t, 1, h.sessions.Count())
	require.Equal(t, 1, h.srv.Connections())

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool {
		return h.sessions.Count() == 0 && h.srv.Connections() == 0 && h.conns.Count("127.0.0.1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// shutdownOnCreate shuts the server down while a connection is between
// session creation and registration.
type shutdownOnCreate struct {
	once sync.Once
	srv  *server.Server
}

func (s *shutdownOnCreate) RecordEvent(e domain.SecurityEvent) {
	if e.Type != session.EventCreated {
		return
	}
	s.once.Do(func() { _ = s.srv.Shutdown(context.Background()) })
}

func TestConn_CloseDuringAuthLeavesNothingBehind(t *testing.T) {
	sink := &shutdownOnCreate{}
	h := newHarness(t, testConfig(), session.WithEventSink(sink))
	sink.srv = h.srv
	alice := h.register(t, "alice")

	c := h.dial(t, alice.signer)
	require.Error(t, c.Authenticate(alice.token))

	require.Eventually(t, func() bool {
		return h.sessions.Count() == 0 && h.srv.Connections() == 0 && h.conns.Count("127.0.0.1") == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, h.registry.Count())
}

func TestHeartbeat_ClosesSilentConnection(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 50 * time.Millisecond
	h := newHarness(t, cfg)
	h.srv.StartHeartbeat()

	// Never reading means pings are never answered.
	ws, _, err := websocket.DefaultDialer.Dial(h.wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return h.srv.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, h.conns.Count("127.0.0.1"))
}

func TestHeartbeat_KeepsResponsiveConnection(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 50 * time.Millisecond
	h := newHarness(t, cfg)
	h.srv.StartHeartbeat()
	alice := h.register(t, "alice")
	c := h.connect(t, alice)

	// Reading answers pings; the read itself times out.
	require.NoError(t, c.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, err := c.Next()
	require.Error(t, err)
	require.False(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestFrameRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.FramesPerMinute = 2
	h := newHarness(t, cfg)
	alice := h.register(t, "alice")
	c := h.dial(t, alice.signer)

	for i := 0; i < 2; i++ {
		require.NoError(t, c.Write(frame.Ping{}))
		f, err := c.Next()
		require.NoError(t, err)
		require.Equal(t, frame.TypePong, f.Type())
	}
	require.NoError(t, c.Write(frame.Ping{}))
	f, err := c.Next()
	require.NoError(t, err)
	require.Equal(t, frame.CodeRateLimitExceeded, f.(frame.Error).Code)
}

func TestAPI(t *testing.T) {
	h := newHarness(t, testConfig())
	alice := h.register(t, "alice")

	pub, _, err := generateSigner()
	require.NoError(t, err)

	statusOf := func(err error) int {
		var se *client.StatusError
		require.True(t, errors.As(err, &se), "got %v", err)
		return se.Status
	}

	_, err = h.api.Register("alice", password, pub)
	require.Equal(t, http.StatusConflict, statusOf(err))
	_, err = h.api.Register("carol", "short", pub)
	require.Equal(t, http.StatusBadRequest, statusOf(err))
	_, err = h.api.Register("no spaces", password, pub)
	require.Equal(t, http.StatusBadRequest, statusOf(err))

	_, _, err = h.api.Login("alice", "Wrong-Horse-99")
	require.Equal(t, http.StatusUnauthorized, statusOf(err))

	_, err = h.api.FetchKey("", alice.id)
	require.Equal(t, http.StatusUnauthorized, statusOf(err))
	_, err = h.api.FetchKey(alice.token, "nobody")
	require.Equal(t, http.StatusNotFound, statusOf(err))

	key, err := h.api.FetchKey(alice.token, alice.id)
	require.NoError(t, err)
	require.Equal(t, alice.signer.Public(), key)
}

func TestAPI_ConcurrentRegistrationConflicts(t *testing.T) {
	h := newHarness(t, testConfig())
	pub, _, err := generateSigner()
	require.NoError(t, err)

	const n = 8
	statuses := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.api.Register("erin", password, pub)
			var se *client.StatusError
			switch {
			case err == nil:
				statuses <- http.StatusCreated
			case errors.As(err, &se):
				statuses <- se.Status
			default:
				statuses <- 0
			}
		}()
	}
	wg.Wait()
	close(statuses)

	created := 0
	for status := range statuses {
		if status == http.StatusCreated {
			created++
			continue
		}
		require.Equal(t, http.StatusConflict, status)
	}
	require.Equal(t, 1, created)
}
