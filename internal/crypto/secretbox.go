package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/secretbox"

	"cipherline/internal/domain"
)

const (
	NonceBytes = 24
	TagBytes   = secretbox.Overhead
)

// Encrypt seals plaintext under key with a fresh random nonce. The
// Poly1305 tag is returned separately from the ciphertext.
func Encrypt(plaintext []byte, key domain.SymmetricKey) (ciphertext, nonce, tag []byte, err error) {
	var n [NonceBytes]byte
	if _, err = rand.Read(n[:]); err != nil {
		return nil, nil, nil, err
	}
	k := [KeyBytes]byte(key)
	sealed := secretbox.Seal(nil, plaintext, &n, &k)

	// secretbox output is tag || ciphertext.
	tag = append([]byte(nil), sealed[:TagBytes]...)
	ciphertext = append([]byte(nil), sealed[TagBytes:]...)
	return ciphertext, n[:], tag, nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(ciphertext, nonce, tag []byte, key domain.SymmetricKey) ([]byte, error) {
	if len(nonce) != NonceBytes {
		return nil, ErrNonceLength
	}
	if len(tag) != TagBytes {
		return nil, ErrMalformedCiphertext
	}
	var n [NonceBytes]byte
	copy(n[:], nonce)
	k := [KeyBytes]byte(key)

	box := make([]byte, 0, TagBytes+len(ciphertext))
	box = append(box, tag...)
	box = append(box, ciphertext...)
	pt, ok := secretbox.Open(nil, box, &n, &k)
	if !ok {
		return nil, ErrDecrypt
	}
	return pt, nil
}
