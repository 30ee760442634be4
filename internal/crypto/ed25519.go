package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"cipherline/internal/domain"
)

// GenerateEd25519 returns a new Ed25519 signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, err
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	return priv, pub, nil
}

// Sign signs data with priv and returns the 64-byte signature.
func Sign(data []byte, priv domain.Ed25519Private) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), data)
}

// Verify reports whether sig is a valid signature of data by pub.
func Verify(data, sig []byte, pub domain.Ed25519Public) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), data, sig)
}
