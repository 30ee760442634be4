package identity

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"

	"cipherline/internal/admission"
	"cipherline/internal/domain"
	"cipherline/internal/instrument"
)

var testHash = HashParams{Memory: 1024, Time: 1, Threads: 1}

const goodPassword = "Correct-Horse-9"

type memAccounts struct {
	sync.Mutex
	byName map[domain.Username]domain.Account
}

func (m *memAccounts) CreateAccount(a domain.Account) error {
	m.Lock()
	defer m.Unlock()
	m.byName[a.Username] = a
	return nil
}

func (m *memAccounts) AccountByName(u domain.Username) (domain.Account, bool, error) {
	m.Lock()
	defer m.Unlock()
	a, ok := m.byName[u]
	return a, ok, nil
}

func (m *memAccounts) AccountByID(id domain.UserID) (domain.Account, bool, error) {
	m.Lock()
	defer m.Unlock()
	for _, a := range m.byName {
		if a.ID == id {
			return a, true, nil
		}
	}
	return domain.Account{}, false, nil
}

func newTestService(t *testing.T) (*Service, *TokenAuthority, *admission.Lockout, *time.Time) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	tokens, err := NewTokenAuthority([]byte("secret"), time.Hour)
	require.NoError(t, err)
	tokens.now = func() time.Time { return now }
	lock := admission.NewLockout(5, 15*time.Minute)
	lock.SetClock(func() time.Time { return now })

	svc := New(&memAccounts{byName: map[domain.Username]domain.Account{}}, tokens, lock,
		instrument.New(), nil, logging.MustGetLogger("identity"), testHash)
	svc.now = func() time.Time { return now }
	return svc, tokens, lock, &now
}

func TestPasswordPolicy(t *testing.T) {
	require.True(t, isSecurePassphrase(goodPassword))
	for _, p := range []string{"short1!A", "alllowercase-123", "ALLUPPERCASE-123", "NoDigitsHere-!!", "NoSymbols12345"} {
		require.False(t, isSecurePassphrase(p), p)
	}
}

func TestHashPassword(t *testing.T) {
	require := require.New(t)
	h, err := hashPassword(goodPassword, testHash)
	require.NoError(err)
	require.True(strings.HasPrefix(h, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := checkPassword(goodPassword, h)
	require.NoError(err)
	require.True(ok)

	ok, err = checkPassword("wrong", h)
	require.NoError(err)
	require.False(ok)

	_, err = checkPassword(goodPassword, "$bcrypt$xx")
	require.Error(err)
}

func TestTokens(t *testing.T) {
	require := require.New(t)
	now := time.Unix(1_700_000_000, 0)
	a, err := NewTokenAuthority([]byte("k"), time.Hour)
	require.NoError(err)
	a.now = func() time.Time { return now }

	acct := domain.Account{ID: "u1", Username: "alice", PublicKey: domain.Ed25519Public{5}}
	tok, err := a.IssueToken(acct)
	require.NoError(err)

	c, err := a.VerifyToken(tok)
	require.NoError(err)
	require.Equal(domain.UserID("u1"), c.UserID)
	require.Equal(domain.Ed25519Public{5}, c.PublicKey)
	require.Equal("alice", a.ClaimedAccount(tok))

	// Tampered payload.
	other, _ := a.IssueToken(domain.Account{ID: "u2", Username: "mallory"})
	forged := strings.Split(other, ".")[0] + "." + strings.Split(tok, ".")[1]
	_, err = a.VerifyToken(forged)
	require.ErrorIs(err, ErrInvalidToken)

	// Different secret.
	b, _ := NewTokenAuthority([]byte("other"), time.Hour)
	_, err = b.VerifyToken(tok)
	require.ErrorIs(err, ErrInvalidToken)

	_, err = a.VerifyToken("garbage")
	require.ErrorIs(err, ErrInvalidToken)
	require.Equal("", a.ClaimedAccount("garbage"))

	now = now.Add(time.Hour)
	_, err = a.VerifyToken(tok)
	require.ErrorIs(err, ErrTokenExpired)
}

func TestTokens_LongSecret(t *testing.T) {
	require := require.New(t)
	a, err := NewTokenAuthority([]byte(strings.Repeat("s", 100)), time.Hour)
	require.NoError(err)

	tok, err := a.IssueToken(domain.Account{ID: "u1", Username: "alice"})
	require.NoError(err)
	c, err := a.VerifyToken(tok)
	require.NoError(err)
	require.Equal(domain.UserID("u1"), c.UserID)
}

func TestRegister(t *testing.T) {
	require := require.New(t)
	svc, _, _, _ := newTestService(t)

	acct, err := svc.Register("alice", goodPassword, domain.Ed25519Public{1})
	require.NoError(err)
	require.NotEmpty(acct.ID)
	require.NotContains(acct.PasswordHash, goodPassword)

	_, err = svc.Register("alice", goodPassword, domain.Ed25519Public{1})
	require.ErrorIs(err, ErrUsernameTaken)
	_, err = svc.Register("a", goodPassword, domain.Ed25519Public{1})
	require.ErrorIs(err, ErrInvalidUsername)
	_, err = svc.Register("bob", "weak", domain.Ed25519Public{1})
	require.ErrorIs(err, ErrWeakPassphrase)
	_, err = svc.Register("bob", goodPassword, domain.Ed25519Public{})
	require.Error(err)

	pub, ok, err := svc.PublicKey(acct.ID)
	require.NoError(err)
	require.True(ok)
	require.Equal(domain.Ed25519Public{1}, pub)
}

func TestLogin_LockoutScenario(t *testing.T) {
	require := require.New(t)
	svc, tokens, _, now := newTestService(t)

	_, err := svc.Register("alice", goodPassword, domain.Ed25519Public{1})
	require.NoError(err)

	for i := 0; i < 5; i++ {
		_, err := svc.Login("alice", "Wrong-Password-1", "10.0.0.1")
		require.ErrorIs(err, ErrInvalidCredentials)
	}
	require.Equal(uint64(5), svc.metrics.FailedLogins())

	// Locked: even the right password is refused.
	_, err = svc.Login("alice", goodPassword, "10.0.0.1")
	require.ErrorIs(err, admission.ErrAccountLocked)

	*now = now.Add(15 * time.Minute)
	tok, err := svc.Login("alice", goodPassword, "10.0.0.1")
	require.NoError(err)
	claims, err := tokens.VerifyToken(tok)
	require.NoError(err)
	require.Equal(domain.Username("alice"), claims.Username)
	require.Equal(0, svc.lockout.Failures("alice"))
}

func TestLogin_UnknownUserCountsAsFailure(t *testing.T) {
	require := require.New(t)
	svc, _, _, _ := newTestService(t)

	var checked []string
	svc.check = func(password, encoded string) (bool, error) {
		checked = append(checked, encoded)
		return checkPassword(password, encoded)
	}

	_, err := svc.Login("ghost", goodPassword, "10.0.0.1")
	require.ErrorIs(err, ErrInvalidCredentials)
	require.Equal(1, svc.lockout.Failures("ghost"))

	// The unknown name still pays for one hash at the service's cost.
	require.Len(checked, 1)
	require.True(strings.HasPrefix(checked[0], "$argon2id$v=19$m=1024,t=1,p=1$"))
}
