package crypto

import (
	"encoding/base64"
	"fmt"
)

// B64 returns standard base64 encoding without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// DecodeKey32 decodes a base64 string holding exactly 32 bytes.
func DecodeKey32(s string) (out [32]byte, err error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("decode key: %w", err)
	}
	if len(b) != len(out) {
		return out, ErrKeyLength
	}
	copy(out[:], b)
	return out, nil
}
