package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"cipherline/internal/crypto"
)

// keyFileVersion is the current on-disk format of a sealed key file.
const keyFileVersion = 1

// ErrWrongPassphrase is returned when the passphrase is incorrect or the
// sealed file has been modified.
var ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted key file")

// sealed is the on-disk JSON structure holding the ciphertext and KDF parameters.
type sealed struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// seal derives a key from passphrase and encrypts raw into a JSON document.
func seal(passphrase string, raw []byte, params crypto.KDFParams) ([]byte, error) {
	var salt [crypto.SaltBytes]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := crypto.DeriveKey([]byte(passphrase), salt[:], params)
	if err != nil {
		return nil, err
	}
	defer crypto.WipeKey(&key)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; the salt makes every key unique
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(sealed{
		V:      keyFileVersion,
		Salt:   salt[:],
		N:      params.N,
		R:      params.R,
		P:      params.P,
		Cipher: ct,
	})
}

// unseal opens a document produced by seal.
func unseal(passphrase string, b []byte) ([]byte, error) {
	var s sealed
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("store: parse key file: %w", err)
	}
	if s.V > keyFileVersion {
		return nil, fmt.Errorf("store: unsupported key file version %d", s.V)
	}

	key, err := crypto.DeriveKey([]byte(passphrase), s.Salt, crypto.KDFParams{N: s.N, R: s.R, P: s.P})
	if errors.Is(err, crypto.ErrSaltLength) {
		return nil, fmt.Errorf("store: parse key file: %w", err)
	}
	if err != nil {
		return nil, err
	}
	defer crypto.WipeKey(&key)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], s.Cipher, s.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
