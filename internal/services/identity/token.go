package identity

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"cipherline/internal/crypto"
	"cipherline/internal/domain"
)

var (
	ErrInvalidToken = errors.New("identity: invalid token")
	ErrTokenExpired = errors.New("identity: token expired")
)

var b64 = base64.RawURLEncoding

// TokenAuthority issues and verifies compact "payload.signature" tokens
// tagged with keyed BLAKE2b.
type TokenAuthority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenAuthority signs with secret. An empty secret is replaced by 32
// random bytes, so tokens do not survive a restart. Secrets longer than a
// BLAKE2b key are hashed down to one.
func NewTokenAuthority(secret []byte, ttl time.Duration) (*TokenAuthority, error) {
	switch {
	case len(secret) == 0:
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	case len(secret) > blake2b.Size:
		sum := blake2b.Sum512(secret)
		secret = sum[:]
	}
	return &TokenAuthority{secret: secret, ttl: ttl, now: time.Now}, nil
}

// IssueToken mints a token for account.
func (a *TokenAuthority) IssueToken(account domain.Account) (string, error) {
	payload, err := json.Marshal(domain.Claims{
		UserID:    account.ID,
		Username:  account.Username,
		PublicKey: account.PublicKey,
		ExpiresAt: a.now().Add(a.ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	p := b64.EncodeToString(payload)
	tag, err := crypto.MAC([]byte(p), a.secret)
	if err != nil {
		return "", err
	}
	return p + "." + b64.EncodeToString(tag), nil
}

// VerifyToken checks the signature and expiry and returns the claims.
func (a *TokenAuthority) VerifyToken(token string) (domain.Claims, error) {
	p, sig, ok := strings.Cut(token, ".")
	if !ok {
		return domain.Claims{}, ErrInvalidToken
	}
	got, err := b64.DecodeString(sig)
	if err != nil || !crypto.VerifyMAC([]byte(p), got, a.secret) {
		return domain.Claims{}, ErrInvalidToken
	}
	c, err := decodeClaims(p)
	if err != nil {
		return domain.Claims{}, err
	}
	if a.now().Unix() >= c.ExpiresAt {
		return domain.Claims{}, ErrTokenExpired
	}
	return c, nil
}

// ClaimedAccount returns the username a token names, without verifying it.
func (a *TokenAuthority) ClaimedAccount(token string) string {
	p, _, _ := strings.Cut(token, ".")
	c, err := decodeClaims(p)
	if err != nil {
		return ""
	}
	return c.Username.String()
}

func decodeClaims(p string) (domain.Claims, error) {
	var c domain.Claims
	raw, err := b64.DecodeString(p)
	if err != nil {
		return c, ErrInvalidToken
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, ErrInvalidToken
	}
	return c, nil
}

var (
	_ domain.TokenVerifier = (*TokenAuthority)(nil)
	_ domain.TokenIssuer   = (*TokenAuthority)(nil)
)
