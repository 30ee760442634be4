package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
	"cipherline/internal/worker"
)

var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionExpired  = errors.New("session: expired")
)

// Audit event types emitted to the EventSink.
const (
	EventCreated    = "session_created"
	EventEnded      = "session_ended"
	EventEvicted    = "session_evicted"
	EventExpired    = "session_expired"
	EventKeyUpdated = "session_key_updated"
)

// Config bounds session lifetime and fan-out.
type Config struct {
	MaxPerUser        int
	Duration          time.Duration
	InactivityTimeout time.Duration
	SweepInterval     time.Duration
}

// DefaultConfig returns 3 sessions per user, 24h lifetime, 30m idle
// timeout, swept every minute.
func DefaultConfig() Config {
	return Config{
		MaxPerUser:        3,
		Duration:          24 * time.Hour,
		InactivityTimeout: 30 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLogger sets the module logger.
func WithLogger(l *logging.Logger) Option { return func(s *Store) { s.log = l } }

// WithEventSink receives lifecycle audit events.
func WithEventSink(sink domain.EventSink) Option { return func(s *Store) { s.sink = sink } }

// Store is the in-memory session table.
type Store struct {
	worker.Worker
	sync.Mutex

	cfg  Config
	now  func() time.Time
	log  *logging.Logger
	sink domain.EventSink

	sessions map[domain.SessionID]*domain.Session
	byUser   map[domain.UserID]map[domain.SessionID]struct{}
}

// New returns an empty Store.
func New(cfg Config, opts ...Option) *Store {
	s := &Store{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[domain.SessionID]*domain.Session),
		byUser:   make(map[domain.UserID]map[domain.SessionID]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logging.MustGetLogger("session")
	}
	return s
}

// Create opens a session for userID. If the user is already at the cap,
// the least recently active session is evicted first.
func (s *Store) Create(userID domain.UserID, pub domain.Ed25519Public, key domain.SymmetricKey) (domain.Session, error) {
	id, err := newID()
	if err != nil {
		return domain.Session{}, err
	}

	var events []domain.SecurityEvent
	s.Lock()
	now := s.now()

	for sid := range s.byUser[userID] {
		if reason, dead := s.deadLocked(s.sessions[sid], now); dead {
			s.removeLocked(sid)
			events = append(events, s.event(userID, reason, sid))
		}
	}
	for len(s.byUser[userID]) >= s.cfg.MaxPerUser && s.cfg.MaxPerUser > 0 {
		victim := s.oldestLocked(userID)
		s.removeLocked(victim)
		events = append(events, s.event(userID, EventEvicted, victim))
		s.log.Debugf("Evicted session %s for %s", short(victim), userID)
	}

	sess := &domain.Session{
		ID:           id,
		UserID:       userID,
		PublicKey:    pub,
		Key:          key,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.cfg.Duration),
	}
	s.sessions[id] = sess
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[domain.SessionID]struct{})
	}
	s.byUser[userID][id] = struct{}{}
	out := *sess
	s.Unlock()

	events = append(events, s.event(userID, EventCreated, id))
	s.emit(events)
	return out, nil
}

// Lookup returns the session and refreshes its last activity. A session
// past its absolute or idle deadline is removed and ErrSessionExpired
// returned.
func (s *Store) Lookup(id domain.SessionID) (domain.Session, error) {
	return s.get(id, true)
}

// Peek is Lookup without refreshing activity.
func (s *Store) Peek(id domain.SessionID) (domain.Session, error) {
	return s.get(id, false)
}

func (s *Store) get(id domain.SessionID, touch bool) (domain.Session, error) {
	s.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.Unlock()
		return domain.Session{}, ErrSessionNotFound
	}
	now := s.now()
	if reason, dead := s.deadLocked(sess, now); dead {
		s.removeLocked(id)
		s.Unlock()
		s.emit([]domain.SecurityEvent{s.event(sess.UserID, reason, id)})
		return domain.Session{}, ErrSessionExpired
	}
	if touch {
		sess.LastActivity = now
	}
	out := *sess
	s.Unlock()
	return out, nil
}

// UpdateKey replaces the session key and marks the session keyed.
func (s *Store) UpdateKey(id domain.SessionID, key domain.SymmetricKey) error {
	s.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.Unlock()
		return ErrSessionNotFound
	}
	now := s.now()
	if reason, dead := s.deadLocked(sess, now); dead {
		s.removeLocked(id)
		s.Unlock()
		s.emit([]domain.SecurityEvent{s.event(sess.UserID, reason, id)})
		return ErrSessionExpired
	}
	crypto.WipeKey(&sess.Key)
	sess.Key = key
	sess.Keyed = true
	sess.LastActivity = now
	uid := sess.UserID
	s.Unlock()

	s.emit([]domain.SecurityEvent{s.event(uid, EventKeyUpdated, id)})
	return nil
}

// End removes one session. Ending an unknown session is a no-op.
func (s *Store) End(id domain.SessionID) {
	s.Lock()
	sess, ok := s.sessions[id]
	if ok {
		s.removeLocked(id)
	}
	s.Unlock()
	if ok {
		s.emit([]domain.SecurityEvent{s.event(sess.UserID, EventEnded, id)})
	}
}

// EndAll removes every session owned by userID and returns how many there were.
func (s *Store) EndAll(userID domain.UserID) int {
	var events []domain.SecurityEvent
	s.Lock()
	for id := range s.byUser[userID] {
		s.removeLocked(id)
		events = append(events, s.event(userID, EventEnded, id))
	}
	s.Unlock()
	s.emit(events)
	return len(events)
}

// Sweep drops every session that is expired or idle as of now.
func (s *Store) Sweep(now time.Time) int {
	var events []domain.SecurityEvent
	s.Lock()
	for id, sess := range s.sessions {
		if reason, dead := s.deadLocked(sess, now); dead {
			s.removeLocked(id)
			events = append(events, s.event(sess.UserID, reason, id))
		}
	}
	s.Unlock()
	if n := len(events); n > 0 {
		s.log.Debugf("Swept %d sessions", n)
	}
	s.emit(events)
	return len(events)
}

// StartSweeper launches the periodic sweep. Stop it with Halt.
func (s *Store) StartSweeper() {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	s.Every(s.cfg.SweepInterval, func(time.Time) { s.Sweep(s.now()) })
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.Lock()
	defer s.Unlock()
	return len(s.sessions)
}

// CountForUser returns the number of sessions held by userID.
func (s *Store) CountForUser(userID domain.UserID) int {
	s.Lock()
	defer s.Unlock()
	return len(s.byUser[userID])
}

func (s *Store) deadLocked(sess *domain.Session, now time.Time) (string, bool) {
	if now.After(sess.ExpiresAt) {
		return EventExpired, true
	}
	if s.cfg.InactivityTimeout > 0 && now.Sub(sess.LastActivity) > s.cfg.InactivityTimeout {
		return EventExpired, true
	}
	return "", false
}

func (s *Store) oldestLocked(userID domain.UserID) domain.SessionID {
	ids := make([]domain.SessionID, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.sessions[ids[i]].LastActivity.Before(s.sessions[ids[j]].LastActivity)
	})
	return ids[0]
}

func (s *Store) removeLocked(id domain.SessionID) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	crypto.WipeKey(&sess.Key)
	if set := s.byUser[sess.UserID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
}

func (s *Store) event(userID domain.UserID, kind string, id domain.SessionID) domain.SecurityEvent {
	return domain.SecurityEvent{
		UserID:    userID,
		Type:      kind,
		Details:   map[string]string{"session": short(id)},
		Timestamp: s.now(),
	}
}

func (s *Store) emit(events []domain.SecurityEvent) {
	if s.sink == nil {
		return
	}
	for _, e := range events {
		s.sink.RecordEvent(e)
	}
}

func newID() (domain.SessionID, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return domain.SessionID(hex.EncodeToString(b[:])), nil
}

func short(id domain.SessionID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}
