package identity

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"cipherline/internal/admission"
	"cipherline/internal/domain"
	"cipherline/internal/instrument"
)

var (
	ErrInvalidUsername    = errors.New("identity: username must be 3-32 letters, digits, '_' or '-'")
	ErrInvalidCredentials = errors.New("identity: invalid username or password")
	ErrUsernameTaken      = errors.New("identity: username already registered")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// Audit event types.
const (
	EventRegistered   = "account_registered"
	EventLoginSuccess = "login_success"
	EventLoginFailure = "login_failure"
	EventLoginLocked  = "login_locked"
)

// Service registers accounts and exchanges credentials for tokens.
type Service struct {
	accounts domain.AccountStore
	tokens   domain.TokenIssuer
	lockout  *admission.Lockout
	metrics  *instrument.Metrics
	sink     domain.EventSink
	log      *logging.Logger
	params   HashParams
	now      func() time.Time

	// dummyHash is checked against when the username is unknown, so both
	// outcomes cost one Argon2id evaluation.
	dummyOnce sync.Once
	dummyHash string
	check     func(password, encoded string) (bool, error)
}

// New returns an identity service. sink may be nil.
func New(
	accounts domain.AccountStore,
	tokens domain.TokenIssuer,
	lockout *admission.Lockout,
	metrics *instrument.Metrics,
	sink domain.EventSink,
	log *logging.Logger,
	params HashParams,
) *Service {
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		lockout:  lockout,
		metrics:  metrics,
		sink:     sink,
		log:      log,
		params:   params,
		now:      time.Now,
		check:    checkPassword,
	}
}

func (s *Service) placeholderHash() string {
	s.dummyOnce.Do(func() {
		h, err := hashPassword(uuid.NewString(), s.params)
		if err != nil {
			s.log.Errorf("Failed to hash placeholder password: %v", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Register creates an account bound to the caller's Ed25519 public key.
func (s *Service) Register(username domain.Username, password string, pub domain.Ed25519Public) (domain.Account, error) {
	if !usernamePattern.MatchString(username.String()) {
		return domain.Account{}, ErrInvalidUsername
	}
	if !isSecurePassphrase(password) {
		return domain.Account{}, ErrWeakPassphrase
	}
	if pub == (domain.Ed25519Public{}) {
		return domain.Account{}, fmt.Errorf("identity: public key required")
	}
	if _, ok, err := s.accounts.AccountByName(username); err != nil {
		return domain.Account{}, err
	} else if ok {
		return domain.Account{}, ErrUsernameTaken
	}

	hash, err := hashPassword(password, s.params)
	if err != nil {
		return domain.Account{}, err
	}
	acct := domain.Account{
		ID:           domain.UserID(uuid.NewString()),
		Username:     username,
		PasswordHash: hash,
		PublicKey:    pub,
		CreatedAt:    s.now(),
	}
	if err := s.accounts.CreateAccount(acct); err != nil {
		return domain.Account{}, err
	}
	s.log.Noticef("Registered account %s (%s)", acct.Username, acct.ID)
	s.record(acct.ID, EventRegistered, "")
	return acct, nil
}

// Login verifies credentials and returns a bearer token. A locked account
// is refused before the password is checked.
func (s *Service) Login(username domain.Username, password string, addr string) (string, error) {
	if err := s.lockout.Check(username.String()); err != nil {
		s.record("", EventLoginLocked, addr)
		return "", err
	}

	acct, ok, err := s.accounts.AccountByName(username)
	if err != nil {
		return "", err
	}
	if ok {
		ok, err = s.check(password, acct.PasswordHash)
		if err != nil {
			s.log.Errorf("Corrupt password hash for %s: %v", acct.ID, err)
			return "", err
		}
	} else if h := s.placeholderHash(); h != "" {
		_, _ = s.check(password, h)
	}
	if !ok {
		s.metrics.FailedLogin()
		if s.lockout.Fail(username.String()) {
			s.log.Warningf("Locked account %s after repeated failures", username)
		}
		s.record(acct.ID, EventLoginFailure, addr)
		return "", ErrInvalidCredentials
	}

	s.lockout.Succeed(username.String())
	s.record(acct.ID, EventLoginSuccess, addr)
	return s.tokens.IssueToken(acct)
}

// PublicKey returns the registered signing key of id.
func (s *Service) PublicKey(id domain.UserID) (domain.Ed25519Public, bool, error) {
	acct, ok, err := s.accounts.AccountByID(id)
	if err != nil || !ok {
		return domain.Ed25519Public{}, ok, err
	}
	return acct.PublicKey, true, nil
}

func (s *Service) record(id domain.UserID, kind, addr string) {
	if s.sink == nil {
		return
	}
	s.sink.RecordEvent(domain.SecurityEvent{
		UserID:    id,
		Type:      kind,
		Address:   addr,
		Timestamp: s.now(),
	})
}

// Compile-time assertion that Service implements domain.Authenticator.
var _ domain.Authenticator = (*Service)(nil)
