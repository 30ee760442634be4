package crypto

import (
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"
)

// MAC computes a keyed BLAKE2b-512 tag over message. Keys may be 1..64 bytes.
func MAC(message, key []byte) ([]byte, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, ErrKeyLength
	}
	h, err := blake2b.New512(key)
	if err != nil {
		return nil, err
	}
	h.Write(message)
	return h.Sum(nil), nil
}

// VerifyMAC checks tag in constant time.
func VerifyMAC(message, tag, key []byte) bool {
	want, err := MAC(message, key)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, tag) == 1
}
