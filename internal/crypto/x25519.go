package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"

	"cipherline/internal/domain"
)

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(pub[:], pb)
	return
}

// PublicX25519 recomputes the public key for priv.
func PublicX25519(priv domain.X25519Private) (pub domain.X25519Public, err error) {
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], pb)
	return pub, nil
}

// KeyExchange computes X25519(localPriv, remotePub) and hashes the shared
// secret with BLAKE2b-256 into a session key. Both sides derive the same key.
func KeyExchange(localPriv domain.X25519Private, remotePub domain.X25519Public) (key domain.SymmetricKey, err error) {
	var zero [32]byte
	if subtle.ConstantTimeCompare(remotePub[:], zero[:]) == 1 {
		return key, ErrPublicKey
	}
	// X25519 rejects low-order points by returning an all-zero output error.
	secret, err := curve25519.X25519(localPriv.Slice(), remotePub.Slice())
	if err != nil {
		return key, ErrPublicKey
	}
	key = blake2b.Sum256(secret)
	Wipe(secret)
	return key, nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
