package crypto

import (
	"runtime"

	"cipherline/internal/domain"
)

// Wipe zeroes b. It is best-effort: copies made elsewhere are untouched.
//
//go:noinline
func Wipe(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// WipeKey zeroes a session key in place.
func WipeKey(k *domain.SymmetricKey) {
	Wipe(k[:])
}
