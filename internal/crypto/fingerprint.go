package crypto

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"cipherline/internal/domain"
)

const fingerprintBytes = 10

// Fingerprint is the first 10 bytes of BLAKE2b-256(pub), printed as five
// colon separated groups of four hex digits.
func Fingerprint(pub domain.Ed25519Public) domain.Fingerprint {
	sum := blake2b.Sum256(pub[:])
	h := hex.EncodeToString(sum[:fingerprintBytes])
	groups := make([]string, 0, len(h)/4)
	for i := 0; i < len(h); i += 4 {
		groups = append(groups, h[i:i+4])
	}
	return domain.Fingerprint(strings.Join(groups, ":"))
}
