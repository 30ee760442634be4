package crypto

import (
	"golang.org/x/crypto/scrypt"

	"cipherline/internal/domain"
)

const (
	KeyBytes  = 32
	SaltBytes = 16
)

// KDFParams are the scrypt cost parameters.
type KDFParams struct {
	N int
	R int
	P int
}

// DefaultKDFParams is N=2^16, r=8, p=1.
func DefaultKDFParams() KDFParams { return KDFParams{N: 1 << 16, R: 8, P: 1} }

// DeriveKey stretches password into a 32-byte key bound to salt.
func DeriveKey(password []byte, salt []byte, params KDFParams) (key domain.SymmetricKey, err error) {
	if len(salt) != SaltBytes {
		return key, ErrSaltLength
	}
	k, err := scrypt.Key(password, salt, params.N, params.R, params.P, KeyBytes)
	if err != nil {
		return key, err
	}
	copy(key[:], k)
	Wipe(k)
	return key, nil
}
